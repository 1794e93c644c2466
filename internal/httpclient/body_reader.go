package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBody caps how much of a response body is kept for classification
// and logging.
const maxResponseBody = 1 << 20

type BodySource interface {
	NewReader() (io.ReadCloser, error)
	ContentLength() (int64, bool)
}

// NewJSONBody marshals payload once and replays the bytes for every request.
func NewJSONBody(payload interface{}) (BodySource, error) {
	if payload == nil {
		return emptyBodySource{}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode json body: %w", err)
	}
	return &inlineBodySource{data: data}, nil
}

type inlineBodySource struct {
	data []byte
}

func (s *inlineBodySource) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *inlineBodySource) ContentLength() (int64, bool) {
	return int64(len(s.data)), true
}

type emptyBodySource struct{}

func (emptyBodySource) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (emptyBodySource) ContentLength() (int64, bool) {
	return 0, true
}

// ReadBody reads at most 1 MiB of the response body and closes it. The rest
// is drained so the connection can be reused.
func ReadBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("response has no body")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return data, fmt.Errorf("read response body: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return data, nil
}
