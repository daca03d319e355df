package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTP asks a remote service for admission and reports usage to it.
//
//	POST {url}/check  {"count": n}  -> Decision
//	POST {url}/usage  {"count": n}  -> 2xx
//
// Requests carry the token as a bearer credential.
type HTTP struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTP creates a remote authority. An empty url is accepted here and
// reported as ErrMisconfigured on use.
func NewHTTP(url, token string) *HTTP {
	return &HTTP{
		url:    strings.TrimRight(url, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTP) Name() string { return AuthorityHTTP }

func (h *HTTP) CanAdmit(ctx context.Context, n int) (Decision, error) {
	var d Decision
	if err := h.post(ctx, "/check", n, &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

func (h *HTTP) ReportUsage(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return h.post(ctx, "/usage", n, nil)
}

func (h *HTTP) post(ctx context.Context, path string, n int, out interface{}) error {
	if h.url == "" {
		return fmt.Errorf("%w: no quota URL configured", ErrMisconfigured)
	}

	body, err := json.Marshal(map[string]int{"count": n})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("quota call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("quota api error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
