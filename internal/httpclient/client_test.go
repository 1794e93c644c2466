package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type checkoutPayload struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func TestJSONRequestBuilder(t *testing.T) {
	builder, err := NewJSONRequestBuilder("post", "http://example.com/checkout", checkoutPayload{UserID: "u", ProductID: "p", Quantity: 1})
	if err != nil {
		t.Fatalf("expected builder, got error: %v", err)
	}

	req, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}

	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.URL.String() != "http://example.com/checkout" {
		t.Fatalf("unexpected URL %s", req.URL.String())
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON content type, got %q", req.Header.Get("Content-Type"))
	}

	const want = `{"userId":"u","productId":"p","quantity":1}`
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if string(bodyBytes) != want {
		t.Fatalf("body = %s, want %s", bodyBytes, want)
	}
	if req.ContentLength != int64(len(want)) {
		t.Fatalf("ContentLength = %d, want %d", req.ContentLength, len(want))
	}

	// GetBody replays the same payload.
	again, err := req.GetBody()
	if err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	replayed, _ := io.ReadAll(again)
	if string(replayed) != want {
		t.Fatalf("replayed body = %s", replayed)
	}
}

func TestRequestBuilderRepeatedBuildsAreIndependent(t *testing.T) {
	builder, err := NewJSONRequestBuilder(http.MethodPost, "http://example.com/checkout", map[string]int{"quantity": 5})
	if err != nil {
		t.Fatalf("builder error: %v", err)
	}
	first, _ := builder.Build(context.Background())
	first.Header.Set("X-Mutated", "1")
	second, _ := builder.Build(context.Background())
	if second.Header.Get("X-Mutated") != "" {
		t.Fatal("headers leaked between built requests")
	}
	b1, _ := io.ReadAll(first.Body)
	b2, _ := io.ReadAll(second.Body)
	if string(b1) != string(b2) || len(b1) == 0 {
		t.Fatalf("bodies differ: %s vs %s", b1, b2)
	}
}

func TestRequestBuilderValidation(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
	}{
		{name: "empty target", target: "  "},
		{name: "empty header key", target: "http://x", headers: map[string]string{" ": "v"}},
		{name: "newline in key", target: "http://x", headers: map[string]string{"X-Bad\n": "v"}},
		{name: "carriage return before key", target: "http://x", headers: map[string]string{"\rX-Bad": "v"}},
		{name: "newline inside key", target: "http://x", headers: map[string]string{"X-\nBad": "v"}},
		{name: "newline in value", target: "http://x", headers: map[string]string{"X-Ok": "a\r\nb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRequestBuilder(http.MethodGet, tt.target, tt.headers, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRequestBuilderMethodFallback(t *testing.T) {
	builder, err := NewRequestBuilder("", "http://example.com/health", map[string]string{"accept": ""}, nil)
	if err != nil {
		t.Fatalf("builder error: %v", err)
	}
	req, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	if req.Method != http.MethodGet {
		t.Fatalf("method = %s, want GET", req.Method)
	}
	if _, ok := req.Header["Accept"]; !ok {
		t.Fatal("empty header value should still be set")
	}
	if req.ContentLength != 0 {
		t.Fatalf("ContentLength = %d, want 0", req.ContentLength)
	}
}

func TestRequestBuilderHeaderInjector(t *testing.T) {
	type key struct{}
	builder, err := NewJSONRequestBuilder(http.MethodPost, "http://example.com/checkout", nil)
	if err != nil {
		t.Fatalf("builder error: %v", err)
	}
	builder.WithHeaderInjector(func(ctx context.Context, h http.Header) {
		if v, ok := ctx.Value(key{}).(string); ok {
			h.Set("Traceparent", v)
		}
	})

	ctx := context.WithValue(context.Background(), key{}, "00-abc-def-01")
	req, err := builder.Build(ctx)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	if got := req.Header.Get("Traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Traceparent = %q", got)
	}
}

func TestNewJSONBodyRejectsUnencodable(t *testing.T) {
	if _, err := NewJSONBody(map[string]interface{}{"ch": make(chan int)}); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestReadBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Not enough stock"}`)
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := ReadBody(resp)
	if err != nil {
		t.Fatalf("ReadBody error: %v", err)
	}
	if !strings.Contains(string(body), "Not enough stock") {
		t.Fatalf("body = %s", body)
	}

	if _, err := ReadBody(nil); err == nil {
		t.Fatal("expected error for nil response")
	}
}

func TestClientTimeoutApplied(t *testing.T) {
	timeout := 50 * time.Millisecond
	client := NewClient(timeout)
	defer client.CloseIdleConnections()

	if client.Timeout != timeout {
		t.Fatalf("expected client timeout %s, got %s", timeout, client.Timeout)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(timeout * 3)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}

	elapsed := time.Since(start)
	if elapsed < timeout {
		t.Fatalf("request returned too quickly: %s < %s", elapsed, timeout)
	}
	if elapsed > timeout*5 {
		t.Fatalf("request took too long: %s", elapsed)
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Fatalf("expected timeout error, got %v", err)
		}
	}

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if transport.MaxIdleConns == 0 {
		t.Fatalf("expected transport to allow idle connections")
	}
	if transport.IdleConnTimeout == 0 {
		t.Fatalf("expected transport to set idle connection timeout")
	}
}
