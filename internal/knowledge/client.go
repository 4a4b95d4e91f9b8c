// Package knowledge is the client side of the coaching knowledge base: listing,
// uploading and deleting the PDF documents the agent grounds its answers in.
// Indexing and text extraction happen in the backend.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-widget/internal/models"
	"voice-widget/internal/observability/logging"
	"voice-widget/internal/observability/metrics"
)

// ErrRequest is wrapped by every failed knowledge-base API call.
var ErrRequest = errors.New("knowledge base request failed")

// Config holds knowledge-base client configuration.
type Config struct {
	BaseURL string        // backend API root
	Timeout time.Duration // per-request timeout; 0 disables
	Metrics *metrics.Metrics
}

// Client talks to the document endpoints of the backend.
type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewClient creates a knowledge-base client. A nil httpClient uses
// http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logging.WithComponent("knowledge"),
	}
}

// List returns every indexed document.
func (c *Client) List(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := c.do(ctx, "list", http.MethodGet, "/documents", nil, "", &docs)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Upload validates f and sends it as multipart field "file" to /uploadDoc.
// A file that fails validation is never sent.
func (c *Client) Upload(ctx context.Context, f File) (models.UploadResult, error) {
	if err := ValidateUpload(f); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			c.metrics.RecordUploadRejected(verr.Reason)
		}
		c.logger.Warn().Err(err).Str("filename", f.Name).Msg("Upload rejected")
		return models.UploadResult{}, err
	}

	body, contentType, err := encodeMultipart(f)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("encode upload: %w", err)
	}

	var result models.UploadResult
	if err := c.do(ctx, "upload", http.MethodPost, "/uploadDoc", body, contentType, &result); err != nil {
		return models.UploadResult{}, err
	}

	c.logger.Info().
		Str("docId", result.DocID).
		Str("filename", result.Filename).
		Int("bytes", f.Size()).
		Msg("Document uploaded")
	return result, nil
}

// Delete removes the document with the given ID.
func (c *Client) Delete(ctx context.Context, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: empty document id", ErrRequest)
	}
	return c.do(ctx, "delete", http.MethodDelete, "/documents/"+url.PathEscape(docID), nil, "", nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	defer func() { c.metrics.RecordDocumentRequest(op, err) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequest, op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequest, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s: unexpected status %d", ErrRequest, op, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", ErrRequest, op, err)
	}
	return nil
}

func encodeMultipart(f File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := f.ContentType
	if contentType == "" {
		contentType = PDFContentType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
