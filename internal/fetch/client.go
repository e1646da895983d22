// Package fetch implements the read-only third-party lookups the bot answers with.
//
// Every client is stateless: one call maps to one or two HTTP requests whose
// JSON answers are picked apart with gjson paths.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"errand-bot/pkg/errand"

	"github.com/tidwall/gjson"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "errand-bot/1.0"
	maxResponseBytes = 2 << 20
)

// ErrNotFound reports that the upstream service has no answer for the query.
var ErrNotFound = errand.ErrNoResult

// ErrNotConfigured reports that a client is missing its API credential.
var ErrNotConfigured = errand.ErrNotConfigured

// StatusError is returned for unexpected non-2xx upstream responses.
type StatusError struct {
	Service string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Status)
}

// Config holds endpoints and credentials shared by the fetch clients.
// Empty base URLs fall back to the public production endpoints.
type Config struct {
	Timeout   time.Duration
	UserAgent string

	DictionaryBaseURL  string
	GiphyBaseURL       string
	WikipediaBaseURL   string
	ProductHuntURL     string
	DevToBaseURL       string
	WakaTimeBaseURL    string
	GiphyAPIKey        string
	ProductHuntToken   string
	WakaTimeAPIKey     string
	HTTPClientOverride *http.Client
}

// transport is the HTTP plumbing shared by every client.
type transport struct {
	service    string
	httpClient *http.Client
	userAgent  string
}

func newTransport(service string, cfg Config) transport {
	httpClient := cfg.HTTPClientOverride
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return transport{
		service:    service,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// getJSON performs a GET and returns the parsed body.
func (t transport) getJSON(ctx context.Context, url string, headers map[string]string) (gjson.Result, error) {
	return t.doJSON(ctx, http.MethodGet, url, nil, headers)
}

// postJSON performs a POST with a JSON body and returns the parsed response.
func (t transport) postJSON(ctx context.Context, url string, body []byte, headers map[string]string) (gjson.Result, error) {
	merged := map[string]string{"Content-Type": "application/json"}
	for key, value := range headers {
		merged[key] = value
	}

	return t.doJSON(ctx, http.MethodPost, url, body, merged)
}

func (t transport) doJSON(
	ctx context.Context,
	method string,
	url string,
	body []byte,
	headers map[string]string,
) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: build request: %w", t.service, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: request: %w", t.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return gjson.Result{}, fmt.Errorf("%s: %w", t.service, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &StatusError{Service: t.service, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read body: %w", t.service, err)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s: malformed json response", t.service)
	}

	return gjson.ParseBytes(raw), nil
}

func baseURLOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}

	return strings.TrimRight(value, "/")
}
