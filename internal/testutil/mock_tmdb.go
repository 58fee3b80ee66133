// Package testutil provides testing utilities for the discover gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTMDB is a configurable mock upstream for testing. Unless a handler is
// set for a path, /discover/movie and /discover/tv serve generated pages.
type MockTMDB struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// TotalPages reported by generated discover pages.
	TotalPages int

	// Delay applied to generated discover pages.
	Delay time.Duration

	regionOffsets map[string]int64

	// Tracking
	RequestCount int
	pageCounts   map[string]int
	LastQuery    url.Values
	LastHeader   http.Header
}

// NewMockTMDB creates a new mock TMDB server.
func NewMockTMDB() *MockTMDB {
	mock := &MockTMDB{
		handlers:      make(map[string]func(w http.ResponseWriter, r *http.Request)),
		TotalPages:    25,
		regionOffsets: make(map[string]int64),
		pageCounts:    make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = q
		mock.LastHeader = r.Header.Clone()
		mock.pageCounts[pageCountKey(r.URL.Path, q.Get("watch_region"), q.Get("page"))]++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case "/discover/movie", "/discover/tv":
			mock.discoverHandler(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

func pageCountKey(path, region, page string) string {
	return path + "|" + region + "|" + page
}

// URL returns the mock server URL.
func (m *MockTMDB) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTMDB) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockTMDB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.pageCounts = make(map[string]int)
	m.LastQuery = nil
	m.LastHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTMDB) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockTMDB) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
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

// SetRegionOffset shifts generated item ids for watch_region by offset.
// Regions without an offset serve identical ids, i.e. fully overlapping results.
func (m *MockTMDB) SetRegionOffset(region string, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regionOffsets[region] = offset
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockTMDB) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// PageRequests returns how often page of path was requested for region.
func (m *MockTMDB) PageRequests(path, region string, page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageCounts[pageCountKey(path, region, strconv.Itoa(page))]
}

// GetLastQuery returns the query of the most recent request.
func (m *MockTMDB) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// GetLastHeader returns the headers of the most recent request.
func (m *MockTMDB) GetLastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastHeader
}

// ItemID is the id of the i-th (0-based) item of page for a region offset.
func ItemID(offset int64, page, i int) int64 {
	return offset + int64(page)*100 + int64(i)
}

// discoverHandler serves 20 generated items per page.
func (m *MockTMDB) discoverHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.RLock()
	total := m.TotalPages
	delay := m.Delay
	offset := m.regionOffsets[q.Get("watch_region")]
	m.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	results := make([]map[string]any, 0, 20)
	if page <= total {
		for i := 0; i < 20; i++ {
			id := ItemID(offset, page, i)
			item := map[string]any{
				"id":           id,
				"vote_average": 7.5,
				"poster_path":  fmt.Sprintf("/poster-%d.jpg", id),
			}
			if r.URL.Path == "/discover/tv" {
				item["name"] = fmt.Sprintf("Series %d", id)
			} else {
				item["title"] = fmt.Sprintf("Movie %d", id)
			}
			results = append(results, item)
		}
	}

	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{
		"page":          page,
		"results":       results,
		"total_pages":   total,
		"total_results": total * 20,
	})
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/json;charset=utf-8"},
	}
}

// NewUnauthorizedResponse creates a 401 response as sent for expired tokens.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"status_code":7,"status_message":"Invalid API key: You must be granted a valid key."}`,
		Headers:    map[string]string{"Content-Type": "application/json;charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status_code":25,"status_message":"Your request count is over the allowed limit."}`,
		Headers: map[string]string{
			"Retry-After":  "1",
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status_code":11,"status_message":"Internal error."}`,
		Headers:    map[string]string{"Content-Type": "application/json;charset=utf-8"},
	}
}
