package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/facturae-co/dian-gateway/app/internal/api"
	apihandlers "github.com/facturae-co/dian-gateway/app/internal/api/handlers"
	"github.com/facturae-co/dian-gateway/app/internal/config"
	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/logger"
	"github.com/facturae-co/dian-gateway/app/internal/server/handlers"
	custommiddleware "github.com/facturae-co/dian-gateway/app/internal/server/middleware"
	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/facturae-co/dian-gateway/app/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Server struct {
	pool         *pgxpool.Pool
	db           handlers.Pinger
	config       *config.ServerEnvironment
	dianConfig   *config.DianEnvironment
	services     *services.Services
	certificates *crypto.CertificateStore
	logger       *slog.Logger
	router       *chi.Mux
}

// NewServer creates the HTTP server and registers its routes.
//
// svc may be nil when the DIAN settings are incomplete: the invoice endpoints then answer 503
// and the remaining endpoints keep working. certificates may be nil for the same reason.
func NewServer(
	pool *pgxpool.Pool,
	db handlers.Pinger,
	cfg *config.ServerEnvironment,
	dianCfg *config.DianEnvironment,
	svc *services.Services,
	certificates *crypto.CertificateStore,
	logger *slog.Logger,
) *Server {
	server := &Server{
		pool:         pool,
		db:           db,
		config:       cfg,
		dianConfig:   dianCfg,
		services:     svc,
		certificates: certificates,
		logger:       logger,
		router:       chi.NewRouter(),
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logger.RequestLogging(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(config.RequestTimeout))
	s.router.Use(custommiddleware.SecurityHeaders(s.config.Environment))
	s.router.Use(custommiddleware.CORS(s.config.AllowedOrigins))
	s.router.Use(custommiddleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
}

func (s *Server) registerRoutes() {
	var certificateLoaded func() bool
	if s.certificates != nil {
		certificateLoaded = s.certificates.Loaded
	}

	s.router.Get("/health/live", handlers.HandleHealth)
	s.router.Get("/health/ready", handlers.HandleReadiness(s.db, certificateLoaded))
	s.router.Get("/version", handlers.HandleVersion(version.Get()))

	cufeHandler := apihandlers.NewCUFEHandler(
		s.dianConfig.SoftwareID,
		s.dianConfig.SoftwarePin,
		s.dianConfig.RequireFingerprint(),
	)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(custommiddleware.RequestSizeLimit(int64(s.config.MaxRequestSize)))
		r.Use(custommiddleware.RequireJSON)

		r.Post("/cufe", cufeHandler.HandleGenerateCUFE)

		r.Route("/invoices", func(r chi.Router) {
			if s.services == nil || s.services.Invoices == nil {
				unavailable := s.handleNotConfigured(s.dianConfig.RequireSubmission())
				r.HandleFunc("/*", unavailable)
				r.HandleFunc("/", unavailable)
				return
			}

			invoiceHandler := apihandlers.NewInvoiceHandler(s.services.Invoices)
			r.Post("/", invoiceHandler.HandleCreateInvoice)
			r.Get("/", invoiceHandler.HandleListInvoices)
			r.Get("/{id}", invoiceHandler.HandleGetInvoice)
			r.Post("/{id}/submit", invoiceHandler.HandleSubmitInvoice)
			r.Get("/{id}/status", invoiceHandler.HandleInvoiceStatus)
			r.Get("/{id}/download", invoiceHandler.HandleDownloadInvoice)
		})
	})
}

func (s *Server) handleNotConfigured(cause error) http.HandlerFunc {
	if cause == nil {
		cause = fmt.Errorf("invoice service not initialised")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		api.RespondWithErrorResponse(w, r, api.WrapNotConfiguredError(cause, "invoice service unavailable"))
	}
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("dian_environment", s.dianConfig.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
