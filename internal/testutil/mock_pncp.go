// Package testutil provides testing utilities for the PNCP proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockPNCPResponse defines the behavior for a mock PNCP endpoint response.
type MockPNCPResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPNCP is a configurable mock PNCP server for testing.
type MockPNCP struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount  int
	pathCounts    map[string]int
	lastRawQuery  string
	lastUserAgent string
	lastAccept    string
}

// NewMockPNCP creates a new mock PNCP server.
func NewMockPNCP() *MockPNCP {
	mock := &MockPNCP{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.EscapedPath()]++
		mock.lastRawQuery = r.URL.RawQuery
		mock.lastUserAgent = r.Header.Get("User-Agent")
		mock.lastAccept = r.Header.Get("Accept")
		handler, exists := mock.handlers[r.URL.EscapedPath()]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPNCP) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPNCP) Close() {
	m.server.CloseClientConnections()
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPNCP) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRawQuery = ""
	m.lastUserAgent = ""
	m.lastAccept = ""
}

// SetHandler sets a custom handler for an escaped path.
func (m *MockPNCP) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for an escaped path.
func (m *MockPNCP) SetResponse(path string, resp MockPNCPResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockPNCP) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to an escaped path.
func (m *MockPNCP) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRawQuery returns the raw query string of the last request.
func (m *MockPNCP) LastRawQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRawQuery
}

// LastUserAgent returns the User-Agent header of the last request.
func (m *MockPNCP) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// LastAccept returns the Accept header of the last request.
func (m *MockPNCP) LastAccept() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAccept
}

// defaultHandler answers unknown paths the way PNCP does.
func (m *MockPNCP) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"Recurso não encontrado","status":404}`))
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) MockPNCPResponse {
	return MockPNCPResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServiceUnavailableResponse creates a 503 Service Unavailable response.
func NewServiceUnavailableResponse() MockPNCPResponse {
	return MockPNCPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"message":"Serviço indisponível"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse(message string) MockPNCPResponse {
	return MockPNCPResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"message":"` + message + `","status":400}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewMalformedResponse creates a 200 OK response with a body that is not JSON.
func NewMalformedResponse() MockPNCPResponse {
	return MockPNCPResponse{
		StatusCode: http.StatusOK,
		Body:       `<html><body>maintenance</body></html>`,
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

// NewSlowResponse creates a 200 OK response delivered after delay.
func NewSlowResponse(data string, delay time.Duration) MockPNCPResponse {
	resp := NewJSONResponse(data)
	resp.Delay = delay
	return resp
}

// SamplePublicacao is a publication listing page as PNCP returns it.
const SamplePublicacao = `{"data":[` +
	`{"numeroControlePNCP":"00394452000103-1-000001/2024","objetoCompra":"Aquisição de ônibus escolar"},` +
	`{"numeroControlePNCP":"00394452000103-1-000002/2024","objetoCompra":"Compra de papel A4"}` +
	`],"totalRegistros":2,"totalPaginas":1,"numeroPagina":1,"paginasRestantes":0,"empty":false}`

// SampleArquivos is a document listing as PNCP returns it.
const SampleArquivos = `[` +
	`{"sequencialDocumento":1,"titulo":"Edital Pregão 01/2024","dataPublicacaoPncp":"2024-01-10T10:00:00","tamanhoArquivo":1024},` +
	`{"sequencialDocumento":2,"titulo":"Termo de Referência","dataPublicacaoPncp":"2024-01-10T10:05:00","tamanhoArquivo":2048}` +
	`]`
