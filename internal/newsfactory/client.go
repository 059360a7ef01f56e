// Package newsfactory talks to the external news factory service: a
// pass-through proxy for the CMS, a server-side client, and the importer that
// turns factory articles into pending_review drafts.
package newsfactory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the factory URL or key is missing.
var ErrNotConfigured = errors.New("뉴스 팩토리 서버 환경변수가 설정되지 않았습니다")

const (
	apiPrefix       = "/api/v1/"
	errorTextLength = 200
	defaultTimeout  = 30 * time.Second
)

// Config points at the factory API.
type Config struct {
	URL    string
	APIKey string
}

// Configured reports whether both URL and key are set.
func (c Config) Configured() bool {
	return c.URL != "" && c.APIKey != ""
}

// APIError is a non-2xx factory response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("NF API Error: %d", e.Status)
	}
	return fmt.Sprintf("NF API Error: %d — %s", e.Status, e.Body)
}

// Client calls the factory with the server-side API key.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient returns a Client.
func NewClient(cfg Config) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Configured reports whether the client can reach the factory.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// TargetURL maps a proxy path and raw query onto the factory API.
func (c *Client) TargetURL(path, rawQuery string) string {
	target := c.cfg.URL + apiPrefix + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// Fetch performs a JSON request against path (relative to /api/v1/) and
// decodes the response into out.
func (c *Client) Fetch(ctx context.Context, method, path string, body any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	path = strings.TrimPrefix(path, apiPrefix)
	rawQuery := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, rawQuery = path[:i], path[i+1:]
	}

	req, err := http.NewRequestWithContext(ctx, method, c.TargetURL(path, rawQuery), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: truncate(string(text), errorTextLength)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Proxy forwards r to the factory API under path, copying the upstream status,
// content type and body back to w.
func (c *Client) Proxy(w http.ResponseWriter, r *http.Request, path string) {
	if !c.Configured() {
		writeJSONError(w, http.StatusServiceUnavailable, ErrNotConfigured.Error())
		return
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, c.TargetURL(path, r.URL.RawQuery), body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "프록시 요청 실패: "+err.Error())
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "프록시 요청 실패: "+err.Error())
		return
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
