package resilience

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

const maxErrorBodyBytes = 2048

// Endpoint is a JSON-over-HTTP model or index server. Non-2xx replies come
// back as *HTTPStatusError and undecodable bodies as *DecodeError, so the
// classifiers can tell them apart without looking at messages.
type Endpoint struct {
	Service string
	BaseURL string
	Client  *http.Client
}

func NewEndpoint(service, baseURL string, timeout time.Duration) Endpoint {
	return Endpoint{
		Service: service,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// DecodeError reports a reply that could not be parsed. Model servers produce
// these when they restart mid-response.
type DecodeError struct {
	Service   string
	Operation string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: decode response: %v", e.Service, e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// Call sends payload (when non-nil) to BaseURL+path and decodes the reply into
// out (when non-nil).
func (ep Endpoint) Call(ctx context.Context, method, path string, payload, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s %s request: %w", ep.Service, operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", ep.Service, operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	client := ep.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", ep.Service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &HTTPStatusError{
			Service:    ep.Service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Service: ep.Service, Operation: operation, Err: err}
	}
	return nil
}

func (ep Endpoint) Post(ctx context.Context, path string, payload, out any, operation string) error {
	return ep.Call(ctx, http.MethodPost, path, payload, out, operation)
}
