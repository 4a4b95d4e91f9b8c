package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voice-widget/internal/models"
)

// HTTPPoster posts records to the backend transcription endpoint.
type HTTPPoster struct {
	client   *http.Client
	endpoint string
}

// NewHTTPPoster creates a poster for {baseURL}/transcriptions.
// A nil client uses http.DefaultClient.
func NewHTTPPoster(baseURL string, client *http.Client) *HTTPPoster {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPoster{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + "/transcriptions",
	}
}

// Name implements Poster.
func (p *HTTPPoster) Name() string {
	return "http"
}

// Post implements Poster. Any non-2xx response is an error.
func (p *HTTPPoster) Post(ctx context.Context, rec models.TranscriptRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transcript record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post transcript: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post transcript: unexpected status %d", resp.StatusCode)
	}
	return nil
}
