package services_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/crypto/cryptotest"
	"github.com/facturae-co/dian-gateway/app/internal/cufe"
	"github.com/facturae-co/dian-gateway/app/internal/database"
	"github.com/facturae-co/dian-gateway/app/internal/dian"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/facturae-co/dian-gateway/app/internal/services/servicestest"
	"github.com/facturae-co/dian-gateway/app/internal/xades"
	"github.com/google/uuid"
)

var testNow = time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC)

type testEnv struct {
	service   *services.InvoiceService
	repo      *servicestest.MemoryRepository
	authority *servicestest.Authority
	tokens    *servicestest.StaticTokens
}

func newTestEnv(t *testing.T, configure ...func(*services.InvoiceServiceConfig)) *testEnv {
	t.Helper()

	authority := servicestest.NewAuthority(t)
	tokens := &servicestest.StaticTokens{}
	client, err := dian.NewClient(dian.ClientConfig{
		APIURL:     authority.URL(),
		SoftwareID: "SW001",
		TestSetID:  "test-set-123",
	}, tokens, nil)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	signer := xades.NewSigner(cryptotest.NewStore(t), xades.WithClock(func() time.Time { return testNow }))
	repo := servicestest.NewMemoryRepository()

	cfg := services.InvoiceServiceConfig{
		SoftwareID:  "SW001",
		SoftwarePin: "1234",
		Now:         func() time.Time { return testNow },
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	service, err := services.NewInvoiceService(cfg, repo, signer, client, nil)
	if err != nil {
		t.Fatalf("NewInvoiceService() failed: %v", err)
	}

	return &testEnv{service: service, repo: repo, authority: authority, tokens: tokens}
}

func TestCreateAndSend_Approved(t *testing.T) {
	env := newTestEnv(t)
	fields := servicestest.Fields("SETP990000001")

	inv, err := env.service.CreateAndSend(context.Background(), fields)
	if err != nil {
		t.Fatalf("CreateAndSend() failed: %v", err)
	}

	if inv.Status != invoice.StateApproved {
		t.Errorf("Status = %s, want approved", inv.Status)
	}
	if want := cufe.Generate(fields, "SW001", "1234"); inv.CUFE != want {
		t.Errorf("CUFE = %s, want %s", inv.CUFE, want)
	}
	if !strings.Contains(inv.QRData, "CUFE:"+inv.CUFE) || !strings.Contains(inv.QRData, cufe.SearchURLTest) {
		t.Errorf("QRData does not reference the CUFE on the test catalogue:\n%s", inv.QRData)
	}
	if inv.AuthorityResponseAt == nil || !inv.AuthorityResponseAt.Equal(testNow) {
		t.Errorf("AuthorityResponseAt = %v, want %v", inv.AuthorityResponseAt, testNow)
	}
	if !strings.HasPrefix(string(inv.AuthorityResponse), `{"isValid":true`) {
		t.Errorf("AuthorityResponse = %s", inv.AuthorityResponse)
	}

	// the signature in the stored document verifies against the unsigned document
	if _, err := xades.VerifyDocument([]byte(inv.SignedXML), fields.Number); err != nil {
		t.Errorf("stored signed document does not verify: %v", err)
	}

	// the authority received the signed document and the test set
	submission := env.authority.LastSubmission()
	data, _ := base64.StdEncoding.DecodeString(submission["fileData"].(string))
	if string(data) != inv.SignedXML {
		t.Error("submitted fileData is not the stored signed document")
	}
	if submission["testSetId"] != "test-set-123" {
		t.Errorf("testSetId = %v, want test-set-123", submission["testSetId"])
	}

	stored, err := env.service.Get(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if stored.Status != invoice.StateApproved || stored.SignedXML != inv.SignedXML {
		t.Errorf("stored record does not match the returned invoice")
	}
}

func TestCreateAndSend_TestOnly(t *testing.T) {
	env := newTestEnv(t, func(cfg *services.InvoiceServiceConfig) { cfg.TestOnly = true })
	fields := servicestest.Fields("SETP990000009")
	fields.Test = false

	inv, err := env.service.CreateAndSend(context.Background(), fields)
	if err != nil {
		t.Fatalf("CreateAndSend() failed: %v", err)
	}
	if !inv.Fields.Test {
		t.Error("Fields.Test = false, want documents marked as test")
	}
	if !strings.Contains(inv.QRData, cufe.SearchURLTest) {
		t.Errorf("QRData does not use the test catalogue:\n%s", inv.QRData)
	}
	if got := env.authority.LastSubmission()["testSetId"]; got != "test-set-123" {
		t.Errorf("testSetId = %v, want test-set-123", got)
	}
}

func TestCreateAndSend_Rejected(t *testing.T) {
	env := newTestEnv(t)
	env.authority.RespondToSubmit(http.StatusOK, `{"isValid":false,"statusCode":"99","errorMessages":["Regla: FAD06"]}`)

	inv, err := env.service.CreateAndSend(context.Background(), servicestest.Fields("SETP990000002"))
	if err != nil {
		t.Fatalf("CreateAndSend() failed: %v", err)
	}
	if inv.Status != invoice.StateRejected {
		t.Errorf("Status = %s, want rejected", inv.Status)
	}
}

func TestCreateAndSend_InvalidFields(t *testing.T) {
	env := newTestEnv(t)
	fields := servicestest.Fields("")
	fields.IssueDate = "15/01/2024"

	_, err := env.service.CreateAndSend(context.Background(), fields)

	var verr *invoice.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Errorf("expected 2 problems, got %v", verr.Problems)
	}
	if env.repo.Len() != 0 || env.authority.Submissions.Load() != 0 {
		t.Error("invalid fields must not be stored or submitted")
	}
}

func TestCreateAndSend_NumberUnsafeForSignatureID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateAndSend(context.Background(), servicestest.Fields("SETP&1"))

	var verr *invoice.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if env.repo.Len() != 0 {
		t.Error("invalid number must not be stored")
	}
}

func TestCreateAndSend_DuplicateNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.service.CreateAndSend(ctx, servicestest.Fields("SETP990000003")); err != nil {
		t.Fatalf("first CreateAndSend() failed: %v", err)
	}
	_, err := env.service.CreateAndSend(ctx, servicestest.Fields("SETP990000003"))
	if !errors.Is(err, services.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if got := env.authority.Submissions.Load(); got != 1 {
		t.Errorf("duplicate was submitted: %d submissions", got)
	}
}

func TestCreateAndSend_SubmissionFailureKeepsDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.authority.RespondToSubmit(http.StatusServiceUnavailable, `{"error":"mantenimiento"}`)

	inv, err := env.service.CreateAndSend(ctx, servicestest.Fields("SETP990000004"))
	if !dian.HasCode(err, dian.ErrCodeSubmission) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if dian.StatusCode(err) != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", dian.StatusCode(err))
	}
	if inv == nil {
		t.Fatal("expected the stored draft to be returned with the error")
	}

	stored, err := env.service.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if stored.Status != invoice.StateDraft || stored.SignedXML == "" {
		t.Errorf("stored = %s (signed %t), want signed draft", stored.Status, stored.SignedXML != "")
	}

	// retry once the authority is back
	env.authority.RespondToSubmit(http.StatusOK, `{"isValid":true}`)
	retried, err := env.service.Submit(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if retried.Status != invoice.StateApproved {
		t.Errorf("Status after retry = %s, want approved", retried.Status)
	}
	if retried.SignedXML != stored.SignedXML {
		t.Error("retry must submit the stored signed document")
	}

	_, err = env.service.Submit(ctx, inv.ID)
	if !errors.Is(err, services.ErrAlreadySent) {
		t.Errorf("expected ErrAlreadySent, got %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		initial    invoice.State
		statusBody string
		wantState  invoice.State
	}{
		{"draft accepted", invoice.StateDraft, `{"status":"ACCEPTED"}`, invoice.StateApproved},
		{"sent rejected", invoice.StateSent, `{"status":" rejected "}`, invoice.StateRejected},
		{"rejected then accepted", invoice.StateRejected, `{"status":"ACCEPTED"}`, invoice.StateApproved},
		{"processing leaves state", invoice.StateSent, `{"status":"PROCESSING"}`, invoice.StateSent},
		{"unknown status never regresses", invoice.StateApproved, `{"status":"PENDING"}`, invoice.StateApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.authority.RespondToStatus(tt.statusBody)

			fields := servicestest.Fields("SETP1")
			inv := invoice.New(fields, testNow.Add(-time.Hour))
			inv.CUFE = cufe.Generate(fields, "SW001", "1234")
			inv.Status = tt.initial
			env.repo.Put(inv)

			result, err := env.service.CheckStatus(context.Background(), inv.ID)
			if err != nil {
				t.Fatalf("CheckStatus() failed: %v", err)
			}
			if result.Invoice.Status != tt.wantState {
				t.Errorf("Status = %s, want %s", result.Invoice.Status, tt.wantState)
			}

			stored, _ := env.service.Get(context.Background(), inv.ID)
			if stored.Status != tt.wantState {
				t.Errorf("stored Status = %s, want %s", stored.Status, tt.wantState)
			}
			if len(stored.AuthorityResponse) == 0 {
				t.Error("authority response not recorded")
			}
		})
	}
}

func TestCheckStatus_DoesNotUndoConcurrentSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fields := servicestest.Fields("SETP990000010")
	inv := invoice.New(fields, testNow.Add(-time.Hour))
	inv.CUFE = cufe.Generate(fields, "SW001", "1234")
	env.repo.Put(inv)

	env.authority.RespondToStatus(`{"status":"PROCESSING"}`)
	arrived, release := env.authority.HoldStatus(t)

	type outcome struct {
		result *services.StatusResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := env.service.CheckStatus(ctx, inv.ID)
		done <- outcome{result, err}
	}()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("status query never reached the authority")
	}

	// the draft is submitted and approved while the status query is in flight
	submitted, err := env.service.Submit(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if submitted.Status != invoice.StateApproved {
		t.Fatalf("Status after submit = %s, want approved", submitted.Status)
	}

	release()
	out := <-done
	if out.err != nil {
		t.Fatalf("CheckStatus() failed: %v", out.err)
	}
	if out.result.Invoice.Status != invoice.StateApproved {
		t.Errorf("CheckStatus() Status = %s, want approved", out.result.Invoice.Status)
	}

	stored, err := env.service.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if stored.Status != invoice.StateApproved {
		t.Errorf("stored Status = %s, want approved", stored.Status)
	}
	if stored.SignedXML == "" {
		t.Error("signed document lost by the status update")
	}
}

func TestSubmit_ConcurrentCallsSubmitOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.authority.RespondToSubmit(http.StatusServiceUnavailable, `{"error":"mantenimiento"}`)
	draft, err := env.service.CreateAndSend(ctx, servicestest.Fields("SETP990000011"))
	if draft == nil || err == nil {
		t.Fatalf("expected a stored draft and a submission error, got %v, %v", draft, err)
	}
	env.authority.RespondToSubmit(http.StatusOK, `{"isValid":true}`)
	before := env.authority.Submissions.Load()

	const callers = 8
	var (
		wg          sync.WaitGroup
		approved    atomic.Int32
		alreadySent atomic.Int32
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			inv, err := env.service.Submit(ctx, draft.ID)
			switch {
			case err == nil && inv.Status == invoice.StateApproved:
				approved.Add(1)
			case errors.Is(err, services.ErrAlreadySent):
				alreadySent.Add(1)
			default:
				t.Errorf("Submit() = %v, %v", inv, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := env.authority.Submissions.Load() - before; got != 1 {
		t.Errorf("authority submissions = %d, want 1", got)
	}
	if approved.Load() == 0 || approved.Load()+alreadySent.Load() != callers {
		t.Errorf("approved = %d, already sent = %d, want %d callers answered", approved.Load(), alreadySent.Load(), callers)
	}

	stored, _ := env.service.Get(ctx, draft.ID)
	if stored.Status != invoice.StateApproved {
		t.Errorf("stored Status = %s, want approved", stored.Status)
	}
}

func TestMemoryRepository_ConditionalUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fields := servicestest.Fields("SETP990000012")
	inv := invoice.New(fields, testNow.Add(-time.Hour))
	inv.CUFE = cufe.Generate(fields, "SW001", "1234")
	inv.Status = invoice.StateSent
	env.repo.Put(inv)

	// a write conditional on a status the record no longer has is refused
	stale := *inv
	stale.Status = invoice.StateApproved
	if err := env.repo.UpdateInvoice(ctx, &stale, invoice.StateDraft); !errors.Is(err, database.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
	stored, _ := env.service.Get(ctx, inv.ID)
	if stored.Status != invoice.StateSent {
		t.Errorf("stored Status = %s after refused write, want sent", stored.Status)
	}
}

func TestLookups_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	noCUFE := invoice.New(servicestest.Fields("SETP2"), testNow)
	env.repo.Put(noCUFE)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"get unknown", func() error { _, err := env.service.Get(ctx, uuid.New()); return err }, services.ErrNotFound},
		{"status unknown", func() error { _, err := env.service.CheckStatus(ctx, uuid.New()); return err }, services.ErrNotFound},
		{"download unknown", func() error { _, _, err := env.service.Download(ctx, uuid.New()); return err }, services.ErrNotFound},
		{"status without CUFE", func() error { _, err := env.service.CheckStatus(ctx, noCUFE.ID); return err }, services.ErrNoFingerprint},
		{"download without CUFE", func() error { _, _, err := env.service.Download(ctx, noCUFE.ID); return err }, services.ErrNoFingerprint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if env.authority.Queries.Load() != 0 || env.authority.Downloads.Load() != 0 {
		t.Error("failed lookups must not reach the authority")
	}
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.service.CreateAndSend(ctx, servicestest.Fields("SETP990000005"))
	if err != nil {
		t.Fatalf("CreateAndSend() failed: %v", err)
	}

	data, got, err := env.service.Download(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF") {
		t.Errorf("unexpected download %q", data)
	}
	if got.ID != inv.ID {
		t.Errorf("Download() returned invoice %s, want %s", got.ID, inv.ID)
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, n := range []string{"SETP10", "SETP11", "SETP12"} {
		if _, err := env.service.CreateAndSend(ctx, servicestest.Fields(n)); err != nil {
			t.Fatalf("CreateAndSend(%s) failed: %v", n, err)
		}
	}

	all, err := env.service.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d invoices, want 3", len(all))
	}

	page, err := env.service.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("second page has %d invoices, want 1", len(page))
	}
}

func TestFingerprint(t *testing.T) {
	fields := servicestest.Fields("SETP1")

	result, err := services.Fingerprint(fields, "SW001", "1234")
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	if result.CUFE != cufe.Generate(fields, "SW001", "1234") {
		t.Error("CUFE does not match cufe.Generate")
	}
	if result.SoftwareSecurityCode != cufe.SoftwareSecurityCode("SW001", "1234", "SETP1") {
		t.Error("software security code does not match")
	}

	fields.Supplier.ID = ""
	if _, err := services.Fingerprint(fields, "SW001", "1234"); err == nil {
		t.Error("expected validation error")
	}
}

func TestNewInvoiceService_Config(t *testing.T) {
	repo := servicestest.NewMemoryRepository()
	signer := xades.NewSigner(cryptotest.NewStore(t))
	client, err := dian.NewClient(dian.ClientConfig{APIURL: "http://localhost", SoftwareID: "SW001"}, &servicestest.StaticTokens{}, nil)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	tests := []struct {
		name string
		cfg  services.InvoiceServiceConfig
	}{
		{"missing software id", services.InvoiceServiceConfig{SoftwarePin: "1234"}},
		{"missing pin", services.InvoiceServiceConfig{SoftwareID: "SW001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := services.NewInvoiceService(tt.cfg, repo, signer, client, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
