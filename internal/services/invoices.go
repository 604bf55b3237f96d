package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/cufe"
	"github.com/facturae-co/dian-gateway/app/internal/database"
	"github.com/facturae-co/dian-gateway/app/internal/dian"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/ubl"
	"github.com/facturae-co/dian-gateway/app/internal/xades"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when no invoice has the requested id.
	ErrNotFound = errors.New("invoice not found")

	// ErrDuplicate is returned when an invoice number has already been issued.
	ErrDuplicate = errors.New("invoice number already issued")

	// ErrNoFingerprint is returned for authority lookups on an invoice without a CUFE.
	ErrNoFingerprint = errors.New("invoice has no CUFE")

	// ErrAlreadySent is returned when a submission is requested for an invoice that left draft.
	ErrAlreadySent = errors.New("invoice has already been sent")

	// ErrConflict is returned when an invoice kept changing while an update was being applied.
	ErrConflict = errors.New("invoice was changed concurrently")
)

// statusAttempts bounds how often a status result is re-applied after the record moved on.
const statusAttempts = 3

// Repository stores invoice records.
//
// Implementations return database.ErrNotFound for unknown ids and database.ErrDuplicate for
// repeated invoice numbers. UpdateInvoice only writes while the stored status equals from and
// returns database.ErrStateConflict otherwise.
type Repository interface {
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.State) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, limit, offset int32) ([]*invoice.Invoice, error)
}

// DocumentSigner signs a document in place of its signature placeholder.
type DocumentSigner interface {
	SignDocument(document []byte, documentID string) ([]byte, *xades.SignatureBlock, error)
}

// Authority is the DIAN web service used for submission, status and download.
type Authority interface {
	Submit(ctx context.Context, signed []byte, fingerprint string, isTest bool) (*dian.SubmissionResponse, error)
	GetStatus(ctx context.Context, fingerprint string) (*dian.StatusResponse, error)
	Download(ctx context.Context, fingerprint string) ([]byte, error)
}

// InvoiceServiceConfig holds the software credentials used to fingerprint and build documents.
type InvoiceServiceConfig struct {
	SoftwareID  string
	SoftwarePin string

	// ProviderID is the software provider NIT (defaults to the supplier NIT)
	ProviderID string

	// TestOnly marks every issued document as a test set document
	TestOnly bool

	Now func() time.Time
}

// FingerprintResult is the CUFE of a set of fields plus the values derived from it.
type FingerprintResult struct {
	CUFE                 string `json:"cufe"`
	SoftwareSecurityCode string `json:"softwareSecurityCode"`
	QRData               string `json:"qrData"`
}

// StatusResult is an invoice after an authority status has been applied to it.
type StatusResult struct {
	Invoice *invoice.Invoice     `json:"invoice"`
	Status  *dian.StatusResponse `json:"authorityStatus"`
}

// InvoiceService issues invoices: fingerprint, build, sign, persist, submit and track.
type InvoiceService struct {
	cfg       InvoiceServiceConfig
	repo      Repository
	signer    DocumentSigner
	authority Authority
	logger    *slog.Logger

	// submissions runs at most one submission per invoice id at a time
	submissions singleflight.Group
}

type submitOutcome struct {
	inv *invoice.Invoice
	err error
}

func NewInvoiceService(cfg InvoiceServiceConfig, repo Repository, signer DocumentSigner, authority Authority, logger *slog.Logger) (*InvoiceService, error) {
	if cfg.SoftwareID == "" || cfg.SoftwarePin == "" {
		return nil, errors.New("software id and pin are required")
	}
	if repo == nil || signer == nil || authority == nil {
		return nil, errors.New("repository, signer and authority are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceService{
		cfg:       cfg,
		repo:      repo,
		signer:    signer,
		authority: authority,
		logger:    logger,
	}, nil
}

// Fingerprint validates fields and returns their CUFE without storing anything.
func (s *InvoiceService) Fingerprint(fields invoice.DocumentFields) (*FingerprintResult, error) {
	return Fingerprint(fields, s.cfg.SoftwareID, s.cfg.SoftwarePin)
}

// Fingerprint validates fields and computes the CUFE with the given software credentials.
func Fingerprint(fields invoice.DocumentFields, softwareID, softwarePin string) (*FingerprintResult, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	fp := cufe.Generate(fields, softwareID, softwarePin)
	return &FingerprintResult{
		CUFE:                 fp,
		SoftwareSecurityCode: cufe.SoftwareSecurityCode(softwareID, softwarePin, fields.Number),
		QRData:               cufe.QRData(fields, fp, searchURL(fields)),
	}, nil
}

// CreateAndSend issues a new invoice and submits it to the authority.
//
// The signed draft is stored before submission. If the submission fails the stored draft is
// returned together with the error, and it can be retried with Submit.
func (s *InvoiceService) CreateAndSend(ctx context.Context, fields invoice.DocumentFields) (*invoice.Invoice, error) {
	if s.cfg.TestOnly {
		fields.Test = true
	}
	fp, err := s.Fingerprint(fields)
	if err != nil {
		return nil, err
	}

	inv := invoice.New(fields, s.cfg.Now())
	inv.CUFE = fp.CUFE
	inv.QRData = fp.QRData

	if err := s.sign(inv); err != nil {
		return nil, err
	}

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.logger.Info("invoice created",
		slog.String("invoice_id", inv.ID.String()),
		slog.String("invoice_number", fields.Number),
		slog.String("cufe", inv.CUFE),
	)

	return s.submitOnce(ctx, inv.ID, func(ctx context.Context) (*invoice.Invoice, error) {
		return s.submit(ctx, inv)
	})
}

// Submit sends a stored draft invoice to the authority.
//
// Concurrent calls for the same invoice share one submission.
func (s *InvoiceService) Submit(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return s.submitOnce(ctx, id, func(ctx context.Context) (*invoice.Invoice, error) {
		inv, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.Status != invoice.StateDraft {
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadySent, id, inv.Status)
		}
		if inv.SignedXML == "" {
			if err := s.sign(inv); err != nil {
				return nil, err
			}
		}
		return s.submit(ctx, inv)
	})
}

// submitOnce runs fn unless a submission of id is already in flight, in which case the caller
// gets that submission's outcome. fn keeps running when the caller gives up waiting.
func (s *InvoiceService) submitOnce(ctx context.Context, id uuid.UUID, fn func(context.Context) (*invoice.Invoice, error)) (*invoice.Invoice, error) {
	ch := s.submissions.DoChan(id.String(), func() (any, error) {
		inv, err := fn(context.WithoutCancel(ctx))
		return submitOutcome{inv: inv, err: err}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		out := res.Val.(submitOutcome)
		if out.inv == nil {
			return nil, out.err
		}
		inv := *out.inv
		return &inv, out.err
	}
}

// CheckStatus queries the authority for the invoice status and records the result.
//
// The status is applied to the stored state at the time of the write: when the record moved on
// while the authority was queried, it is read again and the same status applied to it.
func (s *InvoiceService) CheckStatus(ctx context.Context, id uuid.UUID) (*StatusResult, error) {
	inv, err := s.getWithFingerprint(ctx, id)
	if err != nil {
		return nil, err
	}

	status, err := s.authority.GetStatus(ctx, inv.CUFE)
	if err != nil {
		return nil, err
	}

	var previous invoice.State
	for attempt := 1; ; attempt++ {
		previous, err = s.applyStatus(ctx, inv, status)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrStateConflict) {
			return nil, err
		}
		if attempt == statusAttempts {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		s.logger.Debug("invoice changed during status check, applying again",
			slog.String("invoice_id", id.String()),
			slog.Int("attempt", attempt),
		)
		if inv, err = s.getWithFingerprint(ctx, id); err != nil {
			return nil, err
		}
	}

	if previous != inv.Status {
		s.logger.Info("invoice status changed",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("from", string(previous)),
			slog.String("to", string(inv.Status)),
			slog.String("authority_status", status.NormalizedStatus()),
		)
	}

	return &StatusResult{Invoice: inv, Status: status}, nil
}

// applyStatus moves inv according to status and stores it, conditional on the state it was read in.
func (s *InvoiceService) applyStatus(ctx context.Context, inv *invoice.Invoice, status *dian.StatusResponse) (invoice.State, error) {
	now := s.cfg.Now()
	previous := inv.Status
	if next := status.Apply(previous); next != previous {
		if err := inv.Transition(next, now); err != nil {
			return previous, err
		}
	}
	inv.RecordAuthorityResponse(status.Raw, now)

	if err := s.repo.UpdateInvoice(ctx, inv, previous); err != nil {
		if errors.Is(err, database.ErrStateConflict) {
			return previous, err
		}
		return previous, mapRepositoryError(err)
	}
	return previous, nil
}

// Download returns the processed document held by the authority for the invoice.
func (s *InvoiceService) Download(ctx context.Context, id uuid.UUID) ([]byte, *invoice.Invoice, error) {
	inv, err := s.getWithFingerprint(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.authority.Download(ctx, inv.CUFE)
	if err != nil {
		return nil, nil, err
	}
	return data, inv, nil
}

// Get returns a stored invoice.
func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return inv, nil
}

// List returns stored invoices, newest first.
func (s *InvoiceService) List(ctx context.Context, limit, offset int32) ([]*invoice.Invoice, error) {
	invoices, err := s.repo.ListInvoices(ctx, limit, offset)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return invoices, nil
}

// sign builds the UBL document for inv and signs it.
func (s *InvoiceService) sign(inv *invoice.Invoice) error {
	document, err := ubl.Build(inv.Fields, inv.CUFE, ubl.Options{
		SoftwareID:  s.cfg.SoftwareID,
		SoftwarePin: s.cfg.SoftwarePin,
		ProviderID:  s.cfg.ProviderID,
	})
	if err != nil {
		return fmt.Errorf("failed to build invoice document: %w", err)
	}
	if err := ubl.ValidateSchema(document); err != nil {
		return fmt.Errorf("invoice document failed validation: %w", err)
	}

	signed, block, err := s.signer.SignDocument(document, inv.Fields.Number)
	if err != nil {
		return err
	}

	inv.DocumentXML = string(document)
	inv.SignedXML = string(signed)

	s.logger.Debug("invoice signed",
		slog.String("invoice_number", inv.Fields.Number),
		slog.String("signature_id", block.ID),
		slog.Time("signing_time", block.SigningTime),
	)
	return nil
}

// submit sends a signed draft and records the verdict.
func (s *InvoiceService) submit(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	resp, err := s.authority.Submit(ctx, []byte(inv.SignedXML), inv.CUFE, inv.Fields.Test)
	if err != nil {
		s.logger.Warn("invoice submission failed",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("cufe", inv.CUFE),
			slog.String("error", err.Error()),
		)
		return inv, err
	}

	now := s.cfg.Now()
	previous := inv.Status
	if err := inv.Transition(invoice.StateSent, now); err != nil {
		return inv, err
	}
	if err := inv.Transition(resp.LifecycleState(), now); err != nil {
		return inv, err
	}
	inv.RecordAuthorityResponse(resp.Raw, now)

	if err := s.repo.UpdateInvoice(ctx, inv, previous); err != nil {
		s.logger.Error("submitted invoice could not be recorded",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("cufe", inv.CUFE),
			slog.String("error", err.Error()),
		)
		return inv, mapRepositoryError(err)
	}

	s.logger.Info("invoice submitted",
		slog.String("invoice_id", inv.ID.String()),
		slog.String("file_name", resp.FileName),
		slog.String("status", string(inv.Status)),
	)
	return inv, nil
}

func (s *InvoiceService) getWithFingerprint(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.CUFE == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoFingerprint, id)
	}
	return inv, nil
}

func searchURL(fields invoice.DocumentFields) string {
	if fields.Test {
		return cufe.SearchURLTest
	}
	return cufe.SearchURLProduction
}

func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, database.ErrStateConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
