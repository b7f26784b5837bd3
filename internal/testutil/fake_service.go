// Package testutil provides an in-process fake of the remote chat service.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

// RecordedRequest is one request the fake received
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

type cannedResponse struct {
	status int
	body   string
}

// FakeService answers canned bodies per method and path and records every request.
// Unregistered routes answer 404.
type FakeService struct {
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string][]cannedResponse
	requests []RecordedRequest
}

// NewFakeService starts a fake that is closed when t finishes
func NewFakeService(t *testing.T) *FakeService {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &FakeService{routes: make(map[string][]cannedResponse)}

	r := gin.New()
	r.Any("/*path", f.serve)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

// URL is the fake's base URL
func (f *FakeService) URL() string {
	return f.server.URL
}

// Handle registers a response for method and path. Registering the same route
// more than once queues the responses; the last one repeats.
func (f *FakeService) Handle(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.routes[key] = append(f.routes[key], cannedResponse{status: status, body: body})
}

// Requests returns a copy of everything received so far
func (f *FakeService) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Calls counts requests received for method and path
func (f *FakeService) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent request for method and path
func (f *FakeService) Last(method, path string) (RecordedRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if r := f.requests[i]; r.Method == method && r.Path == path {
			return r, true
		}
	}
	return RecordedRequest{}, false
}

func (f *FakeService) serve(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)

	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:   c.Request.Method,
		Path:     c.Request.URL.Path,
		RawQuery: c.Request.URL.RawQuery,
		Header:   c.Request.Header.Clone(),
		Body:     body,
	})
	key := c.Request.Method + " " + c.Request.URL.Path
	queue := f.routes[key]
	var resp cannedResponse
	found := len(queue) > 0
	if found {
		resp = queue[0]
		if len(queue) > 1 {
			f.routes[key] = queue[1:]
		}
	}
	f.mu.Unlock()

	if !found {
		c.Data(http.StatusNotFound, "application/json", []byte(`{"detail":"Not found."}`))
		return
	}
	c.Data(resp.status, "application/json", []byte(resp.body))
}
