// Package testutil drives HTTP handlers in tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type HTTPResult struct {
	Code    int
	Error   error
	Headers http.Header
	Body    []byte
}

type Header struct {
	Key   string
	Value string
}

func ContentTypeJSON() Header {
	return Header{Key: "Content-Type", Value: "application/json"}
}

func Bearer(token string) Header {
	return Header{Key: "Authorization", Value: "Bearer " + token}
}

// ExpectStatus fails the test unless the request succeeded with the expected code.
func ExpectStatus(t *testing.T, expected int, result HTTPResult) {
	t.Helper()

	if result.Error != nil {
		t.Fatalf("request error: %v", result.Error)
	}
	if result.Code != expected {
		t.Fatalf("expected status %d, got %d. Body: %s", expected, result.Code, string(result.Body))
	}
}

func Get(router http.Handler, url string, response any, headers ...Header) HTTPResult {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	return do(router, req, response, headers)
}

func Post(router http.Handler, url, body string, response any, headers ...Header) HTTPResult {
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	return do(router, req, response, headers)
}

// PostJSON marshals body and posts it with a JSON content type.
func PostJSON(router http.Handler, url string, body any, response any, headers ...Header) HTTPResult {
	raw, err := json.Marshal(body)
	if err != nil {
		return HTTPResult{Error: fmt.Errorf("failed to encode body: %w", err)}
	}

	return Post(router, url, string(raw), response, append(headers, ContentTypeJSON())...)
}

func do(router http.Handler, req *http.Request, response any, headers []Header) HTTPResult {
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}

	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if response != nil && res.Body.Len() > 0 {
		if err := json.Unmarshal(res.Body.Bytes(), response); err != nil {
			return HTTPResult{
				Code:    res.Code,
				Error:   fmt.Errorf("failed to decode JSON: %v\n%s", err, res.Body.String()),
				Headers: res.Header(),
				Body:    res.Body.Bytes(),
			}
		}
	}

	return HTTPResult{Code: res.Code, Headers: res.Header(), Body: res.Body.Bytes()}
}
