package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"none", LevelNone},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, slog.LevelInfo, "prod")
	l.Debug("hidden")
	l.Info("shown", slog.String("cufe", "abc"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["cufe"] != "abc" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestContextRequestLogger_Default(t *testing.T) {
	if ContextRequestLogger(context.Background()) != slog.Default() {
		t.Error("expected the default logger outside a request")
	}
	// no holder in the context, must not panic
	ContextWithLogAttrs(context.Background(), slog.String("k", "v"))
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelDebug, "prod")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(RequestLogging(base))
	router.Get("/v1/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if ContextRequestLogger(r.Context()) == slog.Default() {
			t.Error("handler did not receive the request logger")
		}
		ContextWithLogAttrs(r.Context(), slog.String("invoice_id", chi.URLParam(r, "id")))
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/invoices/42", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}

	checks := map[string]any{
		"msg":        "request completed",
		"level":      "WARN",
		"method":     "GET",
		"path":       "/v1/invoices/42",
		"status":     float64(404),
		"invoice_id": "42",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s = %v, want %v", k, entry[k], want)
		}
	}
	if entry["request_id"] == "" || entry["request_id"] == nil {
		t.Error("request_id missing")
	}
}
