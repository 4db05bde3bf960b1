package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Sink delivers one component payload to the downstream AIBOM engine.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, p Payload) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, p Payload) error { return f(ctx, p) }

// LogSink only logs payloads. It is the default when no downstream is
// configured.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, p Payload) error {
	slog.Info("Publisher: component", "aibom", p.TargetID, "type", p.ComponentType,
		"name", p.Name, "version", p.Version, "provider", p.Provider)
	return nil
}

// HTTPSink posts payloads to the AIBOM engine API:
//
//	POST {base}/aibom/{aibom_id}/components
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink rooted at the AIBOM API base URL
// (e.g. http://localhost:8600/v1).
func NewHTTPSink(baseURL string) *HTTPSink {
	return &HTTPSink{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{},
	}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/aibom/%s/components", s.baseURL, url.PathEscape(p.TargetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDownstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
