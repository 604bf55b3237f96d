package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/facturae-co/dian-gateway/app/internal/config"
	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/database"
	"github.com/facturae-co/dian-gateway/app/internal/dian"
	"github.com/facturae-co/dian-gateway/app/internal/logger"
	"github.com/facturae-co/dian-gateway/app/internal/server"
	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/facturae-co/dian-gateway/app/internal/version"
	"github.com/facturae-co/dian-gateway/app/internal/xades"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

//	@title			dian-server
//	@description	dian-server issues Colombian electronic invoices: it computes the CUFE, builds and signs the
//	@description	UBL 2.1 document, stores it and submits it to the DIAN web service.
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `415` Request body is not JSON
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description	- `503` DIAN settings needed for the endpoint are missing
//	@description
//	@description	## Request Limits
//	@description	All endpoints are protected by:
//	@description	- **Rate limiting**: Configurable requests per second (see env vars) - default 100 rps (set to 0 to disable)
//	@description	- **Request size limits**: Configurable (see env vars) - default 1MB
//	@description
//	@description	## Authentication & Authorization
//	@description
//	@description	The API does not authenticate callers and is meant to run behind a gateway that does.
//	@description	Calls to DIAN use a bearer token obtained with the configured signing certificate.
//	@license.name	MIT

//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Invoices
//	@tag.description	Invoice issuing, status and download

//	@tag.name			Common
//	@tag.description	Server API endpoints (health, readiness, version)

func main() {
	cmd := &cobra.Command{
		Use:   "dian-server",
		Short: "DIAN electronic invoicing server",
		Long:  `dian-server exposes the invoice issuing API and submits signed invoices to DIAN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	dianCfg, err := config.NewDianConfig()
	if err != nil {
		log.Printf("failed to load DIAN configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.Bool("RUN_MIGRATIONS", cfg.RunMigrations),
		slog.String("DIAN_ENVIRONMENT", dianCfg.Environment),
		slog.String("DIAN_API_URL", dianCfg.APIURL),
		slog.String("DIAN_AUTH_URL", dianCfg.AuthURL),
		slog.String("DIAN_SOFTWARE_ID", dianCfg.SoftwareID),
		slog.String("DIAN_CERTIFICATE_PATH", dianCfg.CertificatePath),
	)

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer dbCancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		appLogger.Error("Failed to parse database URL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(dbCtx, poolConfig)
	if err != nil {
		appLogger.Error("Unable to create connection pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err = pool.Ping(dbCtx); err != nil {
		appLogger.Error("Error pinging database via pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("connected to PostgreSQL")

	if cfg.RunMigrations {
		if err := database.Migrate(dbCtx, pool); err != nil {
			appLogger.Error("Database migration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("database schema is up to date")
	}

	// get the sqlc generated database queries
	queries := database.New(pool)
	store := database.NewInvoiceStore(queries)

	svc, certificates, err := newServices(dianCfg, store, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialise DIAN services", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := server.NewServer(
		pool,
		store,
		cfg,
		dianCfg,
		svc,
		certificates,
		appLogger,
	)

	defer server.DatabaseShutdown()

	// start the server
	if err := server.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}

// newServices wires the certificate store, token manager, DIAN client and signer.
//
// When the DIAN settings are incomplete the server still starts without the invoice service;
// the missing settings are logged and reported by the invoice endpoints.
func newServices(cfg *config.DianEnvironment, repo services.Repository, appLogger *slog.Logger) (*services.Services, *crypto.CertificateStore, error) {
	if err := cfg.RequireSubmission(); err != nil {
		appLogger.Warn("invoice service disabled", slog.String("reason", err.Error()))
		return nil, nil, nil
	}

	certificates := crypto.NewCertificateStore(appLogger)
	if err := certificates.LoadFile(cfg.CertificatePath, cfg.CertificatePassword); err != nil {
		return nil, nil, err
	}

	tokens, err := dian.NewTokenManager(dian.TokenManagerConfig{
		AuthURL:         cfg.AuthURL,
		SoftwareID:      cfg.SoftwareID,
		Password:        cfg.CertificatePassword,
		ExchangeTimeout: cfg.HTTPTimeout,
		SafetyMargin:    cfg.TokenSafetyMargin,
	}, certificates, appLogger)
	if err != nil {
		return nil, nil, err
	}

	client, err := dian.NewClient(dian.ClientConfig{
		APIURL:          cfg.APIURL,
		SoftwareID:      cfg.SoftwareID,
		TestSetID:       cfg.TestSetID,
		RequestTimeout:  cfg.HTTPTimeout,
		StatusCacheTTL:  cfg.StatusCacheTTL,
		StatusCacheSize: cfg.StatusCacheSize,
	}, tokens, appLogger)
	if err != nil {
		return nil, nil, err
	}

	svc, err := services.NewServices(cfg, repo, xades.NewSigner(certificates), client, appLogger)
	if err != nil {
		return nil, nil, err
	}
	return svc, certificates, nil
}
