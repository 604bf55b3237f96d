package dian

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/cufe"
)

const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultStatusCacheTTL  = 300 * time.Second
	DefaultStatusCacheSize = 100

	// maxResponseSize bounds JSON responses; maxDownloadSize bounds downloaded artifacts
	maxResponseSize = 1 << 20
	maxDownloadSize = 32 << 20
)

const (
	opSubmit   = "submit"
	opStatus   = "status"
	opDownload = "download"
)

// TokenSource supplies bearer tokens. *TokenManager satisfies it.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)

	// InvalidateToken drops value if it is still the cached token.
	InvalidateToken(value string)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIURL     string
	SoftwareID string

	// TestSetID is sent with habilitation submissions
	TestSetID string

	// HTTPClient defaults to a client with RequestTimeout as its timeout
	HTTPClient *http.Client

	// RequestTimeout bounds each call (default 30s)
	RequestTimeout time.Duration

	// StatusCacheTTL is how long a status response is served from cache (default 300s)
	StatusCacheTTL time.Duration

	// StatusCacheSize is the maximum number of cached status responses (default 100)
	StatusCacheSize int

	// Now defaults to time.Now; it is used for submission file names
	Now func() time.Time
}

// Client calls the DIAN submission, status and download services.
// It is safe for concurrent use.
type Client struct {
	cfg    ClientConfig
	tokens TokenSource
	logger *slog.Logger

	statusCache *expirable.LRU[string, *StatusResponse]
}

// NewClient creates a Client. It fails when APIURL or SoftwareID is missing.
func NewClient(cfg ClientConfig, tokens TokenSource, logger *slog.Logger) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, NewConfigError("client", "API URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.APIURL); err != nil {
		return nil, NewConfigError("client", fmt.Sprintf("invalid API URL %q", cfg.APIURL))
	}
	if cfg.SoftwareID == "" {
		return nil, NewConfigError("client", "software id is required")
	}
	if tokens == nil {
		return nil, NewConfigError("client", "token source is required")
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = DefaultStatusCacheTTL
	}
	if cfg.StatusCacheSize <= 0 {
		cfg.StatusCacheSize = DefaultStatusCacheSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:         cfg,
		tokens:      tokens,
		logger:      logger,
		statusCache: expirable.NewLRU[string, *StatusResponse](cfg.StatusCacheSize, nil, cfg.StatusCacheTTL),
	}, nil
}

// Submit sends a signed document to the authority.
//
// When isTest is true the configured test set id is included in the request;
// otherwise the field is left out of the payload entirely.
func (c *Client) Submit(ctx context.Context, signed []byte, fingerprint string, isTest bool) (*SubmissionResponse, error) {
	if !cufe.IsValid(fingerprint) {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, 0, nil, "invalid CUFE")
	}
	if len(signed) == 0 {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, 0, nil, "signed document is empty")
	}

	payload := submitRequest{
		FileName:   c.fileName(fingerprint),
		FileData:   base64.StdEncoding.EncodeToString(signed),
		SoftwareID: c.cfg.SoftwareID,
	}
	if isTest {
		if c.cfg.TestSetID == "" {
			return nil, NewConfigError(opSubmit, "test set id is required for test submissions")
		}
		payload.TestSetID = c.cfg.TestSetID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, 0, err, "failed to encode request")
	}

	endpoint, err := url.JoinPath(c.cfg.APIURL, "invoice", "send")
	if err != nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, 0, err, "failed to build URL")
	}

	status, respBody, err := c.do(ctx, http.MethodPost, endpoint, body, maxResponseSize)
	if err != nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, status, err, "request failed")
	}
	if status < 200 || status > 299 {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, status, nil,
			fmt.Sprintf("authority rejected the submission: %s", snippet(respBody)))
	}

	// isValid must be present, not defaulted to false
	var shape struct {
		IsValid *bool `json:"isValid"`
	}
	if err := json.Unmarshal(respBody, &shape); err != nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, status, err, "malformed response")
	}
	if shape.IsValid == nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, status, nil, "response has no isValid field")
	}

	var result SubmissionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, status, err, "malformed response")
	}
	result.FileName = payload.FileName
	if result.Raw, err = crypto.CanonicalizeJSON(respBody); err != nil {
		return nil, newRequestError(ErrCodeSubmission, opSubmit, fingerprint, status, err, "failed to canonicalize response")
	}

	// a new verdict supersedes any cached status
	c.statusCache.Remove(fingerprint)

	c.logger.Info("document submitted",
		slog.String("cufe", fingerprint),
		slog.String("file_name", payload.FileName),
		slog.Bool("is_test", isTest),
		slog.Bool("is_valid", result.IsValid),
	)

	return &result, nil
}

// GetStatus returns the authority status of a document, served from cache within the TTL.
func (c *Client) GetStatus(ctx context.Context, fingerprint string) (*StatusResponse, error) {
	if !cufe.IsValid(fingerprint) {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, 0, nil, "invalid CUFE")
	}

	if cached, ok := c.statusCache.Get(fingerprint); ok {
		c.logger.Debug("status served from cache", slog.String("cufe", fingerprint))
		return cached.clone(), nil
	}

	endpoint, err := url.JoinPath(c.cfg.APIURL, "invoice", "status", fingerprint)
	if err != nil {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, 0, err, "failed to build URL")
	}

	status, respBody, err := c.do(ctx, http.MethodGet, endpoint, nil, maxResponseSize)
	if err != nil {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, status, err, "request failed")
	}
	if status < 200 || status > 299 {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, status, nil,
			fmt.Sprintf("authority rejected the status query: %s", snippet(respBody)))
	}

	var shape struct {
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &shape); err != nil {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, status, err, "malformed response")
	}
	if shape.Status == nil {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, status, nil, "response has no status field")
	}

	var result StatusResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, status, err, "malformed response")
	}
	if result.Raw, err = crypto.CanonicalizeJSON(respBody); err != nil {
		return nil, newRequestError(ErrCodeQuery, opStatus, fingerprint, status, err, "failed to canonicalize response")
	}

	c.statusCache.Add(fingerprint, result.clone())
	return &result, nil
}

// InvalidateStatus drops the cached status of a document.
func (c *Client) InvalidateStatus(fingerprint string) {
	c.statusCache.Remove(fingerprint)
}

// Download fetches the processed document as raw bytes. Downloads are not cached.
func (c *Client) Download(ctx context.Context, fingerprint string) ([]byte, error) {
	if !cufe.IsValid(fingerprint) {
		return nil, newRequestError(ErrCodeDownload, opDownload, fingerprint, 0, nil, "invalid CUFE")
	}

	endpoint, err := url.JoinPath(c.cfg.APIURL, "invoice", "download", fingerprint)
	if err != nil {
		return nil, newRequestError(ErrCodeDownload, opDownload, fingerprint, 0, err, "failed to build URL")
	}

	status, respBody, err := c.do(ctx, http.MethodGet, endpoint, nil, maxDownloadSize)
	if err != nil {
		return nil, newRequestError(ErrCodeDownload, opDownload, fingerprint, status, err, "request failed")
	}
	if status < 200 || status > 299 {
		return nil, newRequestError(ErrCodeDownload, opDownload, fingerprint, status, nil,
			fmt.Sprintf("authority rejected the download: %s", snippet(respBody)))
	}
	if len(respBody) == 0 {
		return nil, newRequestError(ErrCodeDownload, opDownload, fingerprint, status, nil, "authority returned an empty document")
	}

	checksum, err := crypto.Hash(respBody)
	if err != nil {
		return nil, newRequestError(ErrCodeDownload, opDownload, fingerprint, status, err, "failed to checksum document")
	}
	c.logger.Debug("document downloaded",
		slog.String("cufe", fingerprint),
		slog.Int("size", len(respBody)),
		slog.String("sha256", checksum),
	)
	return respBody, nil
}

func (c *Client) fileName(fingerprint string) string {
	return fmt.Sprintf("invoice_%s_%d.xml", fingerprint[:16], c.cfg.Now().UnixMilli())
}

// do sends an authenticated request and returns the status code and body.
// A 401 invalidates the token the request was sent with so the next call performs a fresh
// exchange; a token refreshed by another caller in the meantime is kept.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, limit int64) (int, []byte, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.InvalidateToken(token)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > limit {
		return resp.StatusCode, nil, fmt.Errorf("response exceeds %d bytes", limit)
	}

	return resp.StatusCode, data, nil
}
