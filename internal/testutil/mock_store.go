// Package testutil provides an in-process document store for tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// StoreDoc is a document held by the mock store.
type StoreDoc struct {
	ID     string
	Type   string
	Source string
}

type cursorState struct {
	slice    int
	ids      []int
	offset   int
	size     int
	replaced bool
}

// MockStore is a configurable mock of the store's scroll/slice REST API.
//
// Documents are partitioned by position: document i belongs to slice
// i % max. Every search or scroll response hands out a fresh cursor and
// retires the one it was called with.
type MockStore struct {
	server *httptest.Server
	mu     sync.Mutex

	index     string
	docs      []StoreDoc
	mapping   string
	indexInfo string
	delay     time.Duration

	username string
	password string

	searchStatus map[int]int
	scrollStatus map[int]int
	garbage      map[int]bool
	countStatus  int
	countBody    string

	cursors    map[string]*cursorState
	nextCursor int

	// Tracking
	SearchRequests int
	ScrollRequests int
	ClearRequests  int
	CountRequests  int
	ReusedCursors  int
	ClearedCursors []string
}

// NewMockStore starts a mock store serving index with docs.
func NewMockStore(index string, docs []StoreDoc) *MockStore {
	m := &MockStore{
		index:        index,
		docs:         docs,
		mapping:      `{"mappings":{"properties":{"x":{"type":"long"}}}}`,
		indexInfo:    `{"aliases":{},"mappings":{},"settings":{"index":{"number_of_shards":"1"}}}`,
		searchStatus: make(map[int]int),
		scrollStatus: make(map[int]int),
		garbage:      make(map[int]bool),
		cursors:      make(map[string]*cursorState),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// GenerateDocs returns n documents with ids "doc-<i>" and source {"n":i}.
func GenerateDocs(n int) []StoreDoc {
	docs := make([]StoreDoc, n)
	for i := range docs {
		docs[i] = StoreDoc{ID: fmt.Sprintf("doc-%d", i), Source: fmt.Sprintf(`{"n":%d}`, i)}
	}
	return docs
}

// URL returns the mock server URL.
func (m *MockStore) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStore) Close() {
	m.server.Close()
}

// RequireBasicAuth rejects requests without these credentials with 401.
func (m *MockStore) RequireBasicAuth(user, pass string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username, m.password = user, pass
}

// SetDelay delays every response, to keep slices in flight together.
func (m *MockStore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetSearchStatus makes the initial search of slice answer with status.
func (m *MockStore) SetSearchStatus(slice, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchStatus[slice] = status
}

// SetScrollStatus makes every scroll of slice answer with status.
func (m *MockStore) SetScrollStatus(slice, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrollStatus[slice] = status
}

// SetGarbage makes the initial search of slice answer with invalid JSON.
func (m *MockStore) SetGarbage(slice int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.garbage[slice] = true
}

// SetCountResponse overrides the _count answer.
func (m *MockStore) SetCountResponse(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countStatus, m.countBody = status, body
}

// SetMapping sets the value returned under the index key by _mapping.
func (m *MockStore) SetMapping(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapping = value
}

// Counts returns the request counters.
func (m *MockStore) Counts() (search, scroll, clear, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SearchRequests, m.ScrollRequests, m.ClearRequests, m.CountRequests
}

// Reused returns how often a retired cursor was presented again.
func (m *MockStore) Reused() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReusedCursors
}

// OpenCursors returns the number of live, uncleared cursors.
func (m *MockStore) OpenCursors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	for _, c := range m.cursors {
		if !c.replaced {
			open++
		}
	}
	return open
}

func (m *MockStore) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	delay := m.delay
	user, pass := m.username, m.password
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if user != "" {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			writeJSON(w, http.StatusUnauthorized, `{"error":"security_exception","status":401}`)
			return
		}
	}

	body, _ := io.ReadAll(r.Body)
	path := strings.Trim(r.URL.Path, "/")

	switch {
	case path == "_search/scroll" && r.Method == http.MethodPost:
		m.handleScroll(w, body)
	case path == "_search/scroll" && r.Method == http.MethodDelete:
		m.handleClear(w, body)
	case path == m.index+"/_search" && r.Method == http.MethodPost:
		m.handleSearch(w, r, body)
	case path == m.index+"/_count" && r.Method == http.MethodGet:
		m.handleCount(w)
	case path == m.index+"/_mapping" && r.Method == http.MethodGet:
		m.mu.Lock()
		value := m.mapping
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{%q:%s}`, m.index, value))
	case path == m.index && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{%q:%s}`, m.index, m.indexInfo))
	default:
		writeJSON(w, http.StatusNotFound, `{"error":"index_not_found_exception","status":404}`)
	}
}

func (m *MockStore) handleSearch(w http.ResponseWriter, r *http.Request, body []byte) {
	var q struct {
		Size  int `json:"size"`
		Slice *struct {
			ID  int `json:"id"`
			Max int `json:"max"`
		} `json:"slice"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"parsing_exception"}`)
		return
	}
	if r.URL.Query().Get("scroll") == "" {
		writeJSON(w, http.StatusBadRequest, `{"error":"scroll keep-alive missing"}`)
		return
	}

	slice, max := 0, 1
	if q.Slice != nil {
		if q.Slice.Max <= 1 {
			writeJSON(w, http.StatusBadRequest, `{"error":"max must be greater than 1"}`)
			return
		}
		slice, max = q.Slice.ID, q.Slice.Max
	}
	size := q.Size
	if size <= 0 {
		size = 10
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchRequests++

	if status, ok := m.searchStatus[slice]; ok {
		writeJSON(w, status, fmt.Sprintf(`{"error":"injected","status":%d}`, status))
		return
	}
	if m.garbage[slice] {
		writeJSON(w, http.StatusOK, `{"_scroll_id":"x","hits":{"hits":[{"_id":`)
		return
	}

	state := &cursorState{slice: slice, size: size}
	for i := range m.docs {
		if i%max == slice {
			state.ids = append(state.ids, i)
		}
	}
	m.writePage(w, state)
}

func (m *MockStore) handleScroll(w http.ResponseWriter, body []byte) {
	var q struct {
		Scroll   string `json:"scroll"`
		ScrollID string `json:"scroll_id"`
	}
	if err := json.Unmarshal(body, &q); err != nil || q.ScrollID == "" {
		writeJSON(w, http.StatusBadRequest, `{"error":"parsing_exception"}`)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScrollRequests++

	state, ok := m.cursors[q.ScrollID]
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"error":"search_context_missing_exception","status":404}`)
		return
	}
	if state.replaced {
		m.ReusedCursors++
		writeJSON(w, http.StatusNotFound, `{"error":"search_context_missing_exception","status":404}`)
		return
	}
	if status, ok := m.scrollStatus[state.slice]; ok {
		writeJSON(w, status, fmt.Sprintf(`{"error":"injected","status":%d}`, status))
		return
	}

	state.replaced = true
	next := &cursorState{slice: state.slice, ids: state.ids, offset: state.offset, size: state.size}
	m.writePage(w, next)
}

func (m *MockStore) handleClear(w http.ResponseWriter, body []byte) {
	var q struct {
		ScrollID []string `json:"scroll_id"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"parsing_exception"}`)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearRequests++

	freed := 0
	for _, id := range q.ScrollID {
		if state, ok := m.cursors[id]; ok && !state.replaced {
			state.replaced = true
			freed++
		}
		m.ClearedCursors = append(m.ClearedCursors, id)
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"succeeded":true,"num_freed":%d}`, freed))
}

func (m *MockStore) handleCount(w http.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CountRequests++

	if m.countStatus != 0 {
		writeJSON(w, m.countStatus, m.countBody)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"count":%d,"_shards":{"total":1,"successful":1}}`, len(m.docs)))
}

// writePage renders the page at state.offset, registers a fresh cursor for
// the remainder and must be called with mu held.
func (m *MockStore) writePage(w http.ResponseWriter, state *cursorState) {
	end := state.offset + state.size
	if end > len(state.ids) {
		end = len(state.ids)
	}

	hits := make([]string, 0, end-state.offset)
	for _, i := range state.ids[state.offset:end] {
		d := m.docs[i]
		typ := ""
		if d.Type != "" {
			typ = fmt.Sprintf(`"_type":%q,`, d.Type)
		}
		hits = append(hits, fmt.Sprintf(`{"_index":%q,%s"_id":%q,"_score":1.0,"_source":%s}`, m.index, typ, d.ID, d.Source))
	}
	state.offset = end

	m.nextCursor++
	cursor := fmt.Sprintf("cursor-%d-%d", state.slice, m.nextCursor)
	m.cursors[cursor] = state

	writeJSON(w, http.StatusOK, fmt.Sprintf(
		`{"_scroll_id":%q,"took":1,"timed_out":false,"hits":{"total":{"value":%d,"relation":"eq"},"hits":[%s]}}`,
		cursor, len(state.ids), strings.Join(hits, ",")))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
