package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MaxBodyBytes caps how much of a response body is buffered.
const MaxBodyBytes = 10 << 20

// ErrBodyTooLarge is returned by ReadResponse for a body over MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Response is a fully buffered HTTP response. Bodies are read eagerly so a
// response can be inspected and the request replayed on the same call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// ReadResponse drains and closes resp.Body into a Response. A body longer
// than MaxBodyBytes is an error, never a truncated Response.
func ReadResponse(resp *http.Response, started time.Time) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, MaxBodyBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(started),
	}, nil
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// ResolveURL joins ref onto base. Absolute references pass through unchanged.
func ResolveURL(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid service host %q: %w", base, err)
	}
	if !baseURL.IsAbs() {
		return "", fmt.Errorf("service host %q is not an absolute URL", base)
	}

	return baseURL.ResolveReference(refURL).String(), nil
}
