package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// RequestTimeout bounds a whole HTTP request, including the calls made to DIAN
const RequestTimeout = 90 * time.Second

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=120s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	AllowedOrigins        []string      `env:"ALLOWED_ORIGINS,separator=|"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestSize        int           `env:"MAX_REQUEST_SIZE,default=1048576"`

	// database settings
	DatabaseURL         string        `env:"DATABASE_URL,required=true"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`
	RunMigrations       bool          `env:"RUN_MIGRATIONS,default=true"`
}

// DianEnvironment holds the DIAN web service settings.
//
// All values are optional when loaded; each operation checks the settings it needs with the
// Require* methods so that, for example, a CUFE can be computed without a certificate.
type DianEnvironment struct {
	APIURL              string `env:"DIAN_API_URL"`
	AuthURL             string `env:"DIAN_AUTH_URL"`
	SoftwareID          string `env:"DIAN_SOFTWARE_ID"`
	SoftwarePin         string `env:"DIAN_SOFTWARE_PIN"`
	ProviderID          string `env:"DIAN_PROVIDER_ID"`
	TestSetID           string `env:"DIAN_TEST_SET_ID"`
	CertificatePath     string `env:"DIAN_CERTIFICATE_PATH"`
	CertificatePassword string `env:"DIAN_CERTIFICATE_PASSWORD"`

	// Environment is "production" or "test" (habilitation)
	Environment string `env:"DIAN_ENVIRONMENT,default=test"`

	HTTPTimeout       time.Duration `env:"DIAN_HTTP_TIMEOUT,default=30s"`
	TokenSafetyMargin time.Duration `env:"DIAN_TOKEN_SAFETY_MARGIN,default=300s"`
	StatusCacheTTL    time.Duration `env:"DIAN_STATUS_CACHE_TTL,default=300s"`
	StatusCacheSize   int           `env:"DIAN_STATUS_CACHE_SIZE,default=100"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validDianEnvs = map[string]bool{
	"production": true,
	"test":       true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewDianConfig loads the DIAN_* environment variables.
func NewDianConfig() (*DianEnvironment, error) {
	var cfg DianEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateDianConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be 0 (disabled) or greater")
	}
	if cfg.MaxRequestSize < 1 {
		return fmt.Errorf("MAX_REQUEST_SIZE must be at least 1")
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	return nil
}

func validateDianConfig(cfg *DianEnvironment) error {
	if !validDianEnvs[cfg.Environment] {
		return fmt.Errorf("invalid DIAN_ENVIRONMENT: %s (expected production or test)", cfg.Environment)
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("DIAN_HTTP_TIMEOUT must be greater than 0")
	}
	if cfg.TokenSafetyMargin < 0 {
		return fmt.Errorf("DIAN_TOKEN_SAFETY_MARGIN must be 0 or greater")
	}
	if cfg.StatusCacheTTL <= 0 {
		return fmt.Errorf("DIAN_STATUS_CACHE_TTL must be greater than 0")
	}
	if cfg.StatusCacheSize < 1 {
		return fmt.Errorf("DIAN_STATUS_CACHE_SIZE must be at least 1")
	}
	return nil
}

// IsProduction reports whether documents go to the production DIAN environment.
func (c *DianEnvironment) IsProduction() bool {
	return c.Environment == "production"
}

// RequireFingerprint checks the settings needed to compute a CUFE.
func (c *DianEnvironment) RequireFingerprint() error {
	return missing("fingerprint",
		setting{"DIAN_SOFTWARE_ID", c.SoftwareID},
		setting{"DIAN_SOFTWARE_PIN", c.SoftwarePin},
	)
}

// RequireSigning checks the settings needed to load the signing certificate.
func (c *DianEnvironment) RequireSigning() error {
	return missing("signing",
		setting{"DIAN_CERTIFICATE_PATH", c.CertificatePath},
		setting{"DIAN_CERTIFICATE_PASSWORD", c.CertificatePassword},
	)
}

// RequireAuth checks the settings needed to obtain a DIAN bearer token.
func (c *DianEnvironment) RequireAuth() error {
	return missing("authentication",
		setting{"DIAN_AUTH_URL", c.AuthURL},
		setting{"DIAN_SOFTWARE_ID", c.SoftwareID},
		setting{"DIAN_CERTIFICATE_PATH", c.CertificatePath},
		setting{"DIAN_CERTIFICATE_PASSWORD", c.CertificatePassword},
	)
}

// RequireSubmission checks the settings needed to submit, query and download documents.
// The test set id is only needed for test submissions and is checked when one is made.
func (c *DianEnvironment) RequireSubmission() error {
	return missing("submission",
		setting{"DIAN_API_URL", c.APIURL},
		setting{"DIAN_AUTH_URL", c.AuthURL},
		setting{"DIAN_SOFTWARE_ID", c.SoftwareID},
		setting{"DIAN_SOFTWARE_PIN", c.SoftwarePin},
		setting{"DIAN_CERTIFICATE_PATH", c.CertificatePath},
		setting{"DIAN_CERTIFICATE_PASSWORD", c.CertificatePassword},
	)
}

type setting struct {
	name  string
	value string
}

func missing(operation string, settings ...setting) error {
	var names []string
	for _, s := range settings {
		if strings.TrimSpace(s.value) == "" {
			names = append(names, s.name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("%s is not configured, missing: %s", operation, strings.Join(names, ", "))
}
