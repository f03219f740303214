package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/flow"
)

// BodyKindUpstream is the body kind that forwards input to an HTTP service.
const BodyKindUpstream = "upstream"

// SettingUpstreamURL supplies the target when the body spec has no url.
const SettingUpstreamURL = "UPSTREAM_URL"

// ErrNoUpstreamURL is returned when neither the body nor the flow names a target.
var ErrNoUpstreamURL = errors.New("upstream body has no url")

// UpstreamError is returned when the upstream answers with an error status.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// UpstreamClient builds flow bodies that POST their input as JSON to an
// HTTP service and return the decoded JSON response.
type UpstreamClient struct {
	client *http.Client
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) *UpstreamClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &UpstreamClient{client: &http.Client{Transport: transport, Timeout: timeout}}
}

// Factory returns the body factory for BodyKindUpstream.
func (u *UpstreamClient) Factory() app.BodyFactory {
	return func(spec catalog.BodySpec) (flow.Body, error) {
		if spec.URL != "" {
			if err := checkURL(spec.URL); err != nil {
				return nil, err
			}
		}
		return &upstreamBody{client: u.client, url: spec.URL, headers: spec.Headers}, nil
	}
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse upstream url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("upstream url %q must be http or https", raw)
	}
	return nil
}

type upstreamBody struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// Invoke forwards input to the upstream.
func (b *upstreamBody) Invoke(ctx context.Context, input any, settings flow.Settings) (any, error) {
	target := b.url
	if target == "" {
		target = settings.String(SettingUpstreamURL)
		if target == "" {
			return nil, ErrNoUpstreamURL
		}
		if err := checkURL(target); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20)) // 50MB limit
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
