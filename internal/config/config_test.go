package config

import (
	"strings"
	"testing"
	"time"
)

func validServerConfig() ServerEnvironment {
	return ServerEnvironment{
		Environment:      "dev",
		Port:             8080,
		RateLimitRPS:     100,
		MaxRequestSize:   1 << 20,
		DatabaseURL:      "postgres://localhost/dian",
		DBMaxConnections: 4,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ServerEnvironment)
		wantErr string
	}{
		{"valid", func(cfg *ServerEnvironment) {}, ""},
		{"port too low", func(cfg *ServerEnvironment) { cfg.Port = 0 }, "PORT"},
		{"port too high", func(cfg *ServerEnvironment) { cfg.Port = 70000 }, "PORT"},
		{"unknown environment", func(cfg *ServerEnvironment) { cfg.Environment = "qa" }, "ENVIRONMENT"},
		{"negative rate limit", func(cfg *ServerEnvironment) { cfg.RateLimitRPS = -1 }, "RATE_LIMIT_RPS"},
		{"rate limit disabled", func(cfg *ServerEnvironment) { cfg.RateLimitRPS = 0 }, ""},
		{"no request size", func(cfg *ServerEnvironment) { cfg.MaxRequestSize = 0 }, "MAX_REQUEST_SIZE"},
		{"no connections", func(cfg *ServerEnvironment) { cfg.DBMaxConnections = 0 }, "DB_MAX_CONNECTIONS"},
		{"min above max", func(cfg *ServerEnvironment) { cfg.DBMinConnections = 5 }, "DB_MIN_CONNECTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServerConfig()
			tt.mutate(&cfg)

			err := validateConfig(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewServerConfig_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dian")
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("READ_TIMEOUT", "5s")

	cfg, err := NewServerConfig()
	if err != nil {
		t.Fatalf("NewServerConfig() failed: %v", err)
	}
	if cfg.Port != 9090 || cfg.Environment != "test" {
		t.Errorf("got port %d environment %s", cfg.Port, cfg.Environment)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.Host != "0.0.0.0" || cfg.DBMaxConnections != 4 {
		t.Errorf("defaults not applied: host %s, max connections %d", cfg.Host, cfg.DBMaxConnections)
	}
}

func TestNewDianConfig_Defaults(t *testing.T) {
	t.Setenv("DIAN_SOFTWARE_ID", "SW001")

	cfg, err := NewDianConfig()
	if err != nil {
		t.Fatalf("NewDianConfig() failed: %v", err)
	}
	if cfg.SoftwareID != "SW001" {
		t.Errorf("SoftwareID = %q", cfg.SoftwareID)
	}
	if cfg.Environment != "test" || cfg.IsProduction() {
		t.Errorf("Environment = %q, want test", cfg.Environment)
	}
	if cfg.StatusCacheTTL != 300*time.Second || cfg.StatusCacheSize != 100 {
		t.Errorf("status cache defaults = %v/%d, want 300s/100", cfg.StatusCacheTTL, cfg.StatusCacheSize)
	}
	if cfg.TokenSafetyMargin != 300*time.Second || cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("timing defaults = %v/%v", cfg.TokenSafetyMargin, cfg.HTTPTimeout)
	}
}

func TestNewDianConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown environment", "DIAN_ENVIRONMENT", "staging"},
		{"zero cache size", "DIAN_STATUS_CACHE_SIZE", "0"},
		{"zero cache ttl", "DIAN_STATUS_CACHE_TTL", "0s"},
		{"zero http timeout", "DIAN_HTTP_TIMEOUT", "0s"},
		{"negative margin", "DIAN_TOKEN_SAFETY_MARGIN", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := NewDianConfig(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error mentioning %s, got %v", tt.key, err)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	full := DianEnvironment{
		APIURL:              "https://vpfe-hab.dian.gov.co/api",
		AuthURL:             "https://vpfe-hab.dian.gov.co/oauth/token",
		SoftwareID:          "SW001",
		SoftwarePin:         "1234",
		CertificatePath:     "/etc/dian/cert.p12",
		CertificatePassword: "secret",
	}
	empty := DianEnvironment{}

	tests := []struct {
		name        string
		check       func(c *DianEnvironment) error
		wantMissing []string
	}{
		{"fingerprint", (*DianEnvironment).RequireFingerprint, []string{"DIAN_SOFTWARE_ID", "DIAN_SOFTWARE_PIN"}},
		{"signing", (*DianEnvironment).RequireSigning, []string{"DIAN_CERTIFICATE_PATH", "DIAN_CERTIFICATE_PASSWORD"}},
		{"auth", (*DianEnvironment).RequireAuth, []string{"DIAN_AUTH_URL", "DIAN_SOFTWARE_ID", "DIAN_CERTIFICATE_PATH"}},
		{"submission", (*DianEnvironment).RequireSubmission, []string{"DIAN_API_URL", "DIAN_AUTH_URL", "DIAN_SOFTWARE_PIN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(&full); err != nil {
				t.Errorf("complete configuration rejected: %v", err)
			}

			err := tt.check(&empty)
			if err == nil {
				t.Fatal("expected error for empty configuration")
			}
			for _, name := range tt.wantMissing {
				if !strings.Contains(err.Error(), name) {
					t.Errorf("error %q does not name %s", err, name)
				}
			}
		})
	}

	// the test set id is not needed to start submitting
	if err := full.RequireSubmission(); err != nil {
		t.Errorf("RequireSubmission() without test set id: %v", err)
	}
}
