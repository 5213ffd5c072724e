package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/esdump/pkg/ratelimit"
)

type capturedRequest struct {
	Method      string
	Path        string
	RawQuery    string
	ContentType string
	Body        string
	User        string
	Pass        string
	HasAuth     bool
}

func recordingServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		user, pass, ok := r.BasicAuth()

		mu.Lock()
		captured = append(captured, capturedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			RawQuery:    r.URL.RawQuery,
			ContentType: r.Header.Get("Content-Type"),
			Body:        string(data),
			User:        user,
			Pass:        pass,
			HasAuth:     ok,
		})
		mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, &captured
}

func TestExecute_MethodFromBody(t *testing.T) {
	srv, captured := recordingServer(t, http.StatusOK, `{"count":3}`)
	c := New(AuthConfig{Scheme: AuthNone}, DefaultConfig())
	ctx := context.Background()

	resp, err := c.Execute(ctx, srv.URL+"/idx/_count", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"count":3}`, string(resp.Body))
	assert.True(t, resp.OK())

	_, err = c.Execute(ctx, srv.URL+"/idx/_search?scroll=1m", []byte(`{"size":1}`))
	require.NoError(t, err)

	require.Len(t, *captured, 2)
	assert.Equal(t, http.MethodGet, (*captured)[0].Method)
	assert.Equal(t, http.MethodPost, (*captured)[1].Method)
	assert.Equal(t, `{"size":1}`, (*captured)[1].Body)
	assert.Equal(t, "scroll=1m", (*captured)[1].RawQuery)
	for _, r := range *captured {
		assert.Equal(t, "application/json", r.ContentType)
		assert.False(t, r.HasAuth)
	}
}

func TestExecute_BasicAuth(t *testing.T) {
	srv, captured := recordingServer(t, http.StatusOK, `{}`)
	c := New(AuthConfig{Scheme: AuthBasic, Username: "elastic", Password: "changeme"}, DefaultConfig())

	_, err := c.Execute(context.Background(), srv.URL+"/idx", nil)
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	assert.True(t, (*captured)[0].HasAuth)
	assert.Equal(t, "elastic", (*captured)[0].User)
	assert.Equal(t, "changeme", (*captured)[0].Pass)
}

func TestExecute_NonSuccessStatusIsNotAnError(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv, _ := recordingServer(t, status, `{"error":"boom"}`)
		c := New(AuthConfig{}, DefaultConfig())

		resp, err := c.Execute(context.Background(), srv.URL+"/idx/_count", nil)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		assert.False(t, resp.OK())
		assert.Equal(t, `{"error":"boom"}`, string(resp.Body))
	}
}

func TestExecute_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New(AuthConfig{}, DefaultConfig())
	_, err := c.Execute(context.Background(), addr+"/idx/_count", nil)
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.MethodGet, terr.Method)
	assert.Contains(t, err.Error(), "A HTTP error occurred")
}

func TestExecute_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	c := New(AuthConfig{}, cfg)

	_, err := c.Execute(context.Background(), srv.URL+"/idx", nil)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestExecute_InsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	strict := New(AuthConfig{}, DefaultConfig())
	_, err := strict.Execute(context.Background(), srv.URL+"/idx", nil)
	var terr *TransportError
	require.ErrorAs(t, err, &terr, "self-signed certificate must be rejected by default")

	insecure := New(AuthConfig{Insecure: true}, DefaultConfig())
	resp, err := insecure.Execute(context.Background(), srv.URL+"/idx", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
}

func TestExecute_DecodesCompressedResponses(t *testing.T) {
	payload := `{"hits":{"hits":[]},"_scroll_id":"abc"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte(payload))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(payload))
		_ = gz.Close()
	}))
	defer srv.Close()

	c := New(AuthConfig{}, DefaultConfig())
	resp, err := c.Execute(context.Background(), srv.URL+"/_search/scroll", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, payload, string(resp.Body))
}

func TestExecute_GateCancelled(t *testing.T) {
	srv, captured := recordingServer(t, http.StatusOK, `{}`)

	cfg := DefaultConfig()
	cfg.Gate = ratelimit.NewGate(0.001, 1, zerolog.Nop())
	c := New(AuthConfig{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Execute(ctx, srv.URL+"/idx", nil)
	require.NoError(t, err)

	cancel()
	_, err = c.Execute(ctx, srv.URL+"/idx", nil)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Len(t, *captured, 1)
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"http://h:9200/logs/_search?scroll=1m": "search",
		"http://h:9200/_search/scroll":         "scroll",
		"http://h:9200/logs/_count":            "count",
		"http://h:9200/logs/_mapping":          "mapping",
		"http://h:9200/logs":                   "index",
		"http://h:9200/":                       "other",
		"://bad":                               "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, endpointLabel(in), in)
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "http://user:xxxxx@h:9200/x", redact("http://user:secret@h:9200/x"))
	assert.Equal(t, "http://h:9200/x", redact("http://h:9200/x"))
}
