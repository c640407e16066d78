package testkit

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockTransport is an http.RoundTripper that answers outgoing requests from
// a step's "httprequest" mocks. The runner installs a fresh one on
// Env.HTTPClient before every step.
type MockTransport struct {
	mu      sync.Mutex
	entries []httpMockEntry
	require bool
}

type httpMockEntry struct {
	step      MockStep
	callCount int
}

// NewMockTransport builds a MockTransport from the "httprequest" mocks in
// steps. With require set, an unmatched request fails instead of getting
// a 404.
func NewMockTransport(steps []MockStep, require bool) *MockTransport {
	mt := &MockTransport{require: require}
	for _, s := range steps {
		if s.Method == MethodHTTPRequest {
			mt.entries = append(mt.entries, httpMockEntry{step: s})
		}
	}
	return mt
}

// RoundTrip answers with the first matching mock, in definition order.
func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	for i := range mt.entries {
		e := &mt.entries[i]
		if !urlMatches(req.URL.String(), e.step.MatchURL) {
			continue
		}
		e.callCount++
		if e.step.ReturnData.Error != "" {
			return nil, errors.New(e.step.ReturnData.Error)
		}
		return buildHTTPResponse(req, e.step.ReturnData)
	}

	if mt.require {
		return nil, fmt.Errorf("testkit: unexpected outgoing HTTP call to %s", req.URL)
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Body:       io.NopCloser(strings.NewReader(`{"error":"no mock configured"}`)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// NotCalled returns the isMock=true entries that never matched a request.
func (mt *MockTransport) NotCalled() []MockStep {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var missing []MockStep
	for _, e := range mt.entries {
		if e.step.IsMock && e.callCount == 0 {
			missing = append(missing, e.step)
		}
	}
	return missing
}

func urlMatches(candidate, pattern string) bool {
	return pattern == "" || strings.HasPrefix(candidate, pattern)
}

func buildHTTPResponse(req *http.Request, rd MockReturnData) (*http.Response, error) {
	code := rd.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	body, err := decodeBody(rd.Body)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}, nil
}

// decodeBody accepts padded or unpadded base64.
func decodeBody(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("testkit: base64 decode mock body: %w", err)
		}
	}
	return b, nil
}
