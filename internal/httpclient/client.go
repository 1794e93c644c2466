package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// HeaderInjector adds headers derived from the request context, such as
// W3C trace context.
type HeaderInjector func(ctx context.Context, headers http.Header)

type RequestBuilder struct {
	method   string
	target   string
	headers  http.Header
	body     BodySource
	injector HeaderInjector
}

// NewRequestBuilder validates the method, target and headers once so Build
// can be called for every iteration.
func NewRequestBuilder(method, target string, headers map[string]string, body BodySource) (*RequestBuilder, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	if body == nil {
		body = emptyBodySource{}
	}

	validated := http.Header{}
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(key, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		validated.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: validated,
		body:    body,
	}, nil
}

// NewJSONRequestBuilder builds requests that send payload as a JSON body.
func NewJSONRequestBuilder(method, target string, payload interface{}) (*RequestBuilder, error) {
	body, err := NewJSONBody(payload)
	if err != nil {
		return nil, err
	}
	return NewRequestBuilder(method, target, map[string]string{"Content-Type": "application/json"}, body)
}

// WithHeaderInjector sets an injector that runs on every built request.
func (b *RequestBuilder) WithHeaderInjector(inj HeaderInjector) *RequestBuilder {
	b.injector = inj
	return b
}

// Target returns the request URL.
func (b *RequestBuilder) Target() string {
	return b.target
}

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return b.body.NewReader()
	}

	if b.injector != nil {
		b.injector(ctx, req.Header)
	}

	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
