package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/config"
	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/crypto/cryptotest"
	"github.com/facturae-co/dian-gateway/app/internal/dian"
	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/facturae-co/dian-gateway/app/internal/services/servicestest"
	"github.com/facturae-co/dian-gateway/app/internal/xades"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

func testServerConfig() *config.ServerEnvironment {
	return &config.ServerEnvironment{
		Environment:           "test",
		Host:                  "127.0.0.1",
		Port:                  0,
		ServerShutdownTimeout: 5 * time.Second,
		MaxRequestSize:        1 << 20,
	}
}

func testDianConfig() *config.DianEnvironment {
	return &config.DianEnvironment{
		SoftwareID:  "SW001",
		SoftwarePin: "1234",
		Environment: "test",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *servicestest.Authority, *crypto.CertificateStore) {
	t.Helper()

	authority := servicestest.NewAuthority(t)
	client, err := dian.NewClient(dian.ClientConfig{
		APIURL:     authority.URL(),
		SoftwareID: "SW001",
		TestSetID:  "test-set-123",
	}, &servicestest.StaticTokens{}, nil)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	store := cryptotest.NewStore(t)
	svc, err := services.NewServices(testDianConfig(), servicestest.NewMemoryRepository(), xades.NewSigner(store), client, discardLogger())
	if err != nil {
		t.Fatalf("NewServices() failed: %v", err)
	}

	s := NewServer(nil, fakeDB{}, testServerConfig(), testDianConfig(), svc, store, discardLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, authority, store
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func fieldsJSON(t *testing.T, number string) string {
	t.Helper()
	data, err := json.Marshal(servicestest.Fields(number))
	if err != nil {
		t.Fatalf("failed to marshal fields: %v", err)
	}
	return string(data)
}

func TestServer_InvoiceLifecycle(t *testing.T) {
	ts, authority, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/invoices", fieldsJSON(t, "SETP990000001"))
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create: got status %d, want 201: %s", resp.StatusCode, body)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/v1/invoices/") {
		t.Fatalf("Location = %q", location)
	}

	var created struct {
		ID     string `json:"id"`
		CUFE   string `json:"cufe"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if created.Status != "approved" || len(created.CUFE) != 96 {
		t.Errorf("created invoice = %+v, want approved with a 96 character CUFE", created)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+location+"?xml=true", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: got status %d, want 200", resp.StatusCode)
	}
	var fetched struct {
		SignedXML string `json:"signedXml"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("failed to decode get response: %v", err)
	}
	if !strings.Contains(fetched.SignedXML, created.CUFE) {
		t.Error("signed document does not contain the CUFE")
	}

	resp = doRequest(t, http.MethodGet, ts.URL+location+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got status %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+location+"/download", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: got status %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("download Content-Type = %q, want application/pdf", got)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+location+"/submit", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resubmit: got status %d, want 409", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/invoices", "")
	var list struct {
		Invoices []json.RawMessage `json:"invoices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if len(list.Invoices) != 1 {
		t.Errorf("list returned %d invoices, want 1", len(list.Invoices))
	}

	if got := authority.Submissions.Load(); got != 1 {
		t.Errorf("authority received %d submissions, want 1", got)
	}
}

func TestServer_CUFE(t *testing.T) {
	ts, authority, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/cufe", fieldsJSON(t, "SETP990000002"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	var result services.FingerprintResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.CUFE) != 96 {
		t.Errorf("CUFE length = %d, want 96", len(result.CUFE))
	}
	if authority.Submissions.Load() != 0 {
		t.Error("computing a CUFE must not contact the authority")
	}
}

func TestServer_RequestChecks(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		contentType string
		wantStatus  int
	}{
		{"wrong content type", http.MethodPost, "/v1/cufe", `{}`, "text/plain", http.StatusUnsupportedMediaType},
		{"malformed body", http.MethodPost, "/v1/invoices", `{"number":`, "application/json", http.StatusBadRequest},
		{"invalid id", http.MethodGet, "/v1/invoices/not-a-uuid", "", "", http.StatusBadRequest},
		{"unknown invoice", http.MethodGet, "/v1/invoices/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "", "", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/v1/unknown", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reader io.Reader
			if tt.body != "" {
				reader = strings.NewReader(tt.body)
			}
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, reader)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("got status %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
		})
	}
}

func TestServer_NotConfigured(t *testing.T) {
	dianCfg := &config.DianEnvironment{Environment: "test"}
	s := NewServer(nil, fakeDB{}, testServerConfig(), dianCfg, nil, nil, discardLogger())

	for _, path := range []string{"/v1/invoices", "/v1/invoices/6ba7b810-9dad-11d1-80b4-00c04fd430c8/status"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: got status %d, want 503", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "DIAN_API_URL") {
			t.Errorf("GET %s: response does not name the missing settings: %s", path, rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/cufe", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("POST /v1/cufe: got status %d, want 503", rr.Code)
	}

	// infrastructure endpoints keep working
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health/live: got status %d, want 200", rr.Code)
	}
}

func TestServer_Readiness(t *testing.T) {
	store := cryptotest.NewStore(t)

	tests := []struct {
		name       string
		db         fakeDB
		certs      *crypto.CertificateStore
		wantStatus int
	}{
		{"ready", fakeDB{}, store, http.StatusOK},
		{"database down", fakeDB{err: errors.New("connection refused")}, store, http.StatusServiceUnavailable},
		{"certificate not loaded", fakeDB{}, crypto.NewCertificateStore(discardLogger()), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(nil, tt.db, testServerConfig(), testDianConfig(), nil, tt.certs, discardLogger())

			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rr.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer(nil, fakeDB{}, testServerConfig(), testDianConfig(), nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	s.DatabaseShutdown()
}
