package services

import (
	"log/slog"

	"github.com/facturae-co/dian-gateway/app/internal/config"
)

// Services aggregates the application services used by the HTTP server.
type Services struct {
	Invoices *InvoiceService
	// Future: credit notes, payroll documents
}

// NewServices creates the service implementations from configuration.
// This is the single entry point for wiring the repository and the DIAN collaborators.
func NewServices(cfg *config.DianEnvironment, repo Repository, signer DocumentSigner, authority Authority, logger *slog.Logger) (*Services, error) {
	invoices, err := NewInvoiceService(InvoiceServiceConfig{
		SoftwareID:  cfg.SoftwareID,
		SoftwarePin: cfg.SoftwarePin,
		ProviderID:  cfg.ProviderID,
		TestOnly:    !cfg.IsProduction(),
	}, repo, signer, authority, logger)
	if err != nil {
		return nil, err
	}

	return &Services{Invoices: invoices}, nil
}
