package episode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPSource fetches episodes from an episode store over HTTP:
//
//	GET {base}/v1/episodes/{agent_id}/{index}
//
// A 404 marks the end of the agent's stream.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSource creates a source rooted at baseURL. Each fetch is bounded by
// timeout (no bound when zero).
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, agentID string, index int) (*Episode, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	endpoint := fmt.Sprintf("%s/v1/episodes/%s/%s", s.baseURL, url.PathEscape(agentID), strconv.Itoa(index))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrEndOfStream
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ep Episode
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return nil, fmt.Errorf("%w: decode episode: %w", ErrSourceUnavailable, err)
	}
	if ep.AgentID == "" {
		ep.AgentID = agentID
	}
	return &ep, nil
}
