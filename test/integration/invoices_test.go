//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/facturae-co/dian-gateway/app/internal/database"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/services/servicestest"
	"github.com/google/uuid"
)

type invoiceResponse struct {
	ID                string          `json:"id"`
	CUFE              string          `json:"cufe"`
	Status            string          `json:"status"`
	AuthorityResponse json.RawMessage `json:"authorityResponse"`
}

func postInvoice(t *testing.T, baseURL, number string) *http.Response {
	t.Helper()

	body, err := json.Marshal(servicestest.Fields(number))
	if err != nil {
		t.Fatalf("failed to marshal fields: %v", err)
	}
	resp, err := http.Post(baseURL+"/v1/invoices", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestInvoices_IssueAndStore(t *testing.T) {
	testEnv := startInProcessServer(t)
	defer testEnv.shutdown()

	resp := postInvoice(t, testEnv.baseURL, "SETP990000001")
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status 201, got %d. Response: %s", resp.StatusCode, string(body))
	}

	var created invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Status != "approved" {
		t.Errorf("expected status approved, got %s", created.Status)
	}

	// the stored row carries the signed document and the authority response
	row, err := testEnv.queries.GetInvoice(context.Background(), uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("failed to read the stored invoice: %v", err)
	}
	if row.Status != "approved" || row.Cufe != created.CUFE {
		t.Errorf("stored row does not match the response: status %s", row.Status)
	}
	if !bytes.Contains([]byte(row.SignedXml), []byte("ds:Signature")) {
		t.Error("stored row has no signed document")
	}
	if len(row.AuthorityResponse) == 0 {
		t.Error("stored row has no authority response")
	}

	// duplicate numbers are rejected by the unique constraint
	resp = postInvoice(t, testEnv.baseURL, "SETP990000001")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409 for a duplicate number, got %d", resp.StatusCode)
	}

	// status and download go through the DIAN client
	statusResp, err := http.Get(testEnv.baseURL + "/v1/invoices/" + created.ID + "/status")
	if err != nil {
		t.Fatalf("failed to query status: %v", err)
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", statusResp.StatusCode)
	}

	downloadResp, err := http.Get(testEnv.baseURL + "/v1/invoices/" + created.ID + "/download")
	if err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	defer downloadResp.Body.Close()
	if downloadResp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", downloadResp.StatusCode)
	}
}

func TestInvoices_DraftSurvivesFailedSubmission(t *testing.T) {
	testEnv := startInProcessServer(t)
	defer testEnv.shutdown()

	testEnv.authority.RespondToSubmit(http.StatusServiceUnavailable, `{"error":"mantenimiento"}`)

	resp := postInvoice(t, testEnv.baseURL, "SETP990000002")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		t.Fatal("expected a Location header for the draft")
	}

	testEnv.authority.RespondToSubmit(http.StatusOK, `{"isValid":true}`)

	submitResp, err := http.Post(testEnv.baseURL+location+"/submit", "application/json", nil)
	if err != nil {
		t.Fatalf("failed to submit draft: %v", err)
	}
	defer submitResp.Body.Close()

	var submitted invoiceResponse
	if err := json.NewDecoder(submitResp.Body).Decode(&submitted); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if submitResp.StatusCode != http.StatusOK || submitted.Status != "approved" {
		t.Errorf("expected the draft to be approved, got %d %s", submitResp.StatusCode, submitted.Status)
	}

	listResp, err := http.Get(testEnv.baseURL + "/v1/invoices?limit=10")
	if err != nil {
		t.Fatalf("failed to list invoices: %v", err)
	}
	defer listResp.Body.Close()

	var list struct {
		Invoices []invoiceResponse `json:"invoices"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Invoices) != 1 {
		t.Errorf("expected 1 invoice, got %d", len(list.Invoices))
	}
}

func TestInvoices_ConcurrentResubmitSendsOnce(t *testing.T) {
	testEnv := startInProcessServer(t)
	defer testEnv.shutdown()

	testEnv.authority.RespondToSubmit(http.StatusServiceUnavailable, `{"error":"mantenimiento"}`)
	resp := postInvoice(t, testEnv.baseURL, "SETP990000003")
	location := resp.Header.Get("Location")
	if location == "" {
		t.Fatalf("expected a Location header for the draft, got status %d", resp.StatusCode)
	}

	testEnv.authority.RespondToSubmit(http.StatusOK, `{"isValid":true}`)
	before := testEnv.authority.Submissions.Load()

	const callers = 6
	codes := make(chan int, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := http.Post(testEnv.baseURL+location+"/submit", "application/json", nil)
			if err != nil {
				t.Errorf("failed to submit draft: %v", err)
				return
			}
			r.Body.Close()
			codes <- r.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK && code != http.StatusConflict {
			t.Errorf("unexpected status %d", code)
		}
	}
	if got := testEnv.authority.Submissions.Load() - before; got != 1 {
		t.Errorf("expected 1 authority submission, got %d", got)
	}
}

func TestInvoiceStore_UpdateIsConditionalOnStatus(t *testing.T) {
	testEnv := startInProcessServer(t)
	defer testEnv.shutdown()
	ctx := context.Background()

	resp := postInvoice(t, testEnv.baseURL, "SETP990000004")
	var created invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	store := database.NewInvoiceStore(testEnv.queries)
	inv, err := store.GetInvoice(ctx, uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("failed to read the stored invoice: %v", err)
	}
	if inv.Status != invoice.StateApproved {
		t.Fatalf("expected approved, got %s", inv.Status)
	}

	// a writer that still believes the invoice is a draft must not overwrite it
	stale := *inv
	stale.Status = invoice.StateDraft
	err = store.UpdateInvoice(ctx, &stale, invoice.StateDraft)
	if !errors.Is(err, database.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	reread, err := store.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("failed to read the stored invoice: %v", err)
	}
	if reread.Status != invoice.StateApproved {
		t.Errorf("stored status = %s, want approved", reread.Status)
	}

	missing := *inv
	missing.ID = uuid.New()
	if err := store.UpdateInvoice(ctx, &missing, invoice.StateApproved); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown id, got %v", err)
	}
}
