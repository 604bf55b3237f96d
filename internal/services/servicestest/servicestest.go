// Package servicestest provides an in-memory invoice repository and a fake DIAN authority for tests.
package servicestest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/facturae-co/dian-gateway/app/internal/database"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/google/uuid"
)

// MemoryRepository keeps invoices in a map. Records are copied on the way in and out so callers
// cannot modify stored state by accident.
type MemoryRepository struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]invoice.Invoice
	Err      error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invoices: make(map[uuid.UUID]invoice.Invoice)}
}

func (m *MemoryRepository) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, existing := range m.invoices {
		if existing.Fields.Number == inv.Fields.Number {
			return fmt.Errorf("%w: %s", database.ErrDuplicate, inv.Fields.Number)
		}
	}
	m.invoices[inv.ID] = *inv
	return nil
}

func (m *MemoryRepository) UpdateInvoice(_ context.Context, inv *invoice.Invoice, from invoice.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, inv.ID)
	}
	if stored.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", database.ErrStateConflict, inv.ID, stored.Status, from)
	}
	m.invoices[inv.ID] = *inv
	return nil
}

func (m *MemoryRepository) GetInvoice(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	inv, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	return &inv, nil
}

func (m *MemoryRepository) ListInvoices(_ context.Context, limit, offset int32) ([]*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	all := make([]*invoice.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		all = append(all, &inv)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Fields.Number > all[j].Fields.Number
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if int(offset) >= len(all) {
		return []*invoice.Invoice{}, nil
	}
	end := int(offset) + int(limit)
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Put stores inv directly, bypassing the duplicate check.
func (m *MemoryRepository) Put(inv *invoice.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = *inv
}

// Len returns the number of stored invoices.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

// Authority is a fake DIAN API. Responses can be changed between requests.
type Authority struct {
	Server *httptest.Server

	mu             sync.Mutex
	submitStatus   int
	submitBody     string
	statusBody     string
	downloadBody   []byte
	lastSubmission map[string]any
	statusHold     chan struct{}
	statusArrived  chan struct{}

	Submissions atomic.Int32
	Queries     atomic.Int32
	Downloads   atomic.Int32
}

// NewAuthority starts a fake authority that approves every submission.
func NewAuthority(t *testing.T) *Authority {
	t.Helper()

	a := &Authority{
		submitStatus: http.StatusOK,
		submitBody:   `{"isValid":true,"statusCode":"00","statusDescription":"Procesado Correctamente"}`,
		statusBody:   `{"status":"ACCEPTED","statusDescription":"Documento validado por la DIAN"}`,
		downloadBody: []byte("%PDF-1.4 representacion grafica"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoice/send", func(w http.ResponseWriter, r *http.Request) {
		a.Submissions.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		a.mu.Lock()
		a.lastSubmission = body
		status, resp := a.submitStatus, a.submitBody
		a.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	})
	mux.HandleFunc("GET /invoice/status/{cufe}", func(w http.ResponseWriter, r *http.Request) {
		a.Queries.Add(1)
		a.mu.Lock()
		resp, hold, arrived := a.statusBody, a.statusHold, a.statusArrived
		a.mu.Unlock()

		if hold != nil {
			arrived <- struct{}{}
			<-hold
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	})
	mux.HandleFunc("GET /invoice/download/{cufe}", func(w http.ResponseWriter, r *http.Request) {
		a.Downloads.Add(1)
		a.mu.Lock()
		resp := a.downloadBody
		a.mu.Unlock()

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(resp)
	})

	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Server.Close)
	return a
}

// URL returns the base URL of the fake API.
func (a *Authority) URL() string { return a.Server.URL }

// RespondToSubmit sets the status code and body returned by the next submissions.
func (a *Authority) RespondToSubmit(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitStatus, a.submitBody = status, body
}

// RespondToStatus sets the status body returned by the next queries.
func (a *Authority) RespondToStatus(body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusBody = body
}

// HoldStatus makes status queries wait until release is called. arrived receives once for
// every query that reached the fake, so a test can act while a query is in flight.
func (a *Authority) HoldStatus(t *testing.T) (arrived <-chan struct{}, release func()) {
	t.Helper()

	hold := make(chan struct{})
	ch := make(chan struct{}, 16)
	a.mu.Lock()
	a.statusHold, a.statusArrived = hold, ch
	a.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			a.mu.Lock()
			a.statusHold = nil
			a.mu.Unlock()
			close(hold)
		})
	}
	t.Cleanup(release)
	return ch, release
}

// LastSubmission returns the decoded body of the most recent submission.
func (a *Authority) LastSubmission() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSubmission
}

// StaticTokens is a TokenSource that always returns the same bearer token.
type StaticTokens struct {
	Value       string
	Invalidated atomic.Int32
}

func (s *StaticTokens) GetToken(context.Context) (string, error) {
	if strings.TrimSpace(s.Value) == "" {
		return "test-token", nil
	}
	return s.Value, nil
}

func (s *StaticTokens) InvalidateToken(string) { s.Invalidated.Add(1) }

// Fields returns a valid set of document fields with the given invoice number.
func Fields(number string) invoice.DocumentFields {
	return invoice.DocumentFields{
		Number:       number,
		IssueDate:    "2024-01-15",
		IssueTime:    "10:30:00",
		InvoiceTotal: invoice.NewAmount(100000, 0),
		TaxValue:     invoice.NewAmount(19000, 0),
		GrandTotal:   invoice.NewAmount(119000, 0),
		Supplier:     invoice.Party{ID: "900123456", Name: "Proveedor SAS"},
		Customer:     invoice.Party{ID: "1000200300", SchemeID: "13", Name: "Cliente Final", Type: "2"},
		Taxes: []invoice.TaxLine{
			{Code: invoice.TaxCodeIVA, Percent: "19.00", TaxableAmount: invoice.NewAmount(100000, 0), TaxAmount: invoice.NewAmount(19000, 0)},
		},
		Lines: []invoice.LineItem{
			{Description: "Servicio de consultoria", Quantity: "1", UnitPrice: invoice.NewAmount(100000, 0), LineTotal: invoice.NewAmount(100000, 0)},
		},
		Test: true,
	}
}
