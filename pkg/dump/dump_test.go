package dump

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/esdump/internal/testutil"
	"github.com/Sternrassler/esdump/pkg/pagination"
	"github.com/Sternrassler/esdump/pkg/sink"
	"github.com/Sternrassler/esdump/pkg/transport"
)

func options(store *testutil.MockStore) Options {
	opts := DefaultOptions()
	opts.Host = store.URL()
	opts.Index = "idx"
	return opts
}

func run(t *testing.T, opts Options) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = New(opts, &out, &errOut).Run(context.Background())
	return out.String(), errOut.String(), err
}

func TestOptions_Validate(t *testing.T) {
	valid := DefaultOptions()
	valid.Host = "http://localhost:9200"
	valid.Index = "logs"

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{name: "valid", mutate: func(*Options) {}},
		{name: "missing host", mutate: func(o *Options) { o.Host = "" }, wantErr: "Must provide an Elasticsearch host (--host)"},
		{name: "host without scheme", mutate: func(o *Options) { o.Host = "localhost:9200" }},
		{name: "unsupported scheme", mutate: func(o *Options) { o.Host = "ftp://localhost:9200" }, wantErr: "Invalid host"},
		{name: "scheme only", mutate: func(o *Options) { o.Host = "http://" }, wantErr: "Invalid host"},
		{name: "missing index", mutate: func(o *Options) { o.Index = "" }, wantErr: "Must provide an index (--index)"},
		{
			name:    "basic without username",
			mutate:  func(o *Options) { o.Auth = transport.AuthConfig{Scheme: transport.AuthBasic, Password: "p"} },
			wantErr: "Must provide --basic-username when passing --auth=basic",
		},
		{
			name:    "basic without password",
			mutate:  func(o *Options) { o.Auth = transport.AuthConfig{Scheme: transport.AuthBasic, Username: "u"} },
			wantErr: "Must provide --basic-password when passing --auth=basic",
		},
		{
			name:    "unknown scheme",
			mutate:  func(o *Options) { o.Auth.Scheme = "kerberos" },
			wantErr: "Unsupported authentication method",
		},
		{name: "zero slices", mutate: func(o *Options) { o.Slices = 0 }, wantErr: "--slices"},
		{name: "zero size", mutate: func(o *Options) { o.PageSize = 0 }, wantErr: "--size"},
		{name: "negative rps", mutate: func(o *Options) { o.MaxRPS = -1 }, wantErr: "--max-rps"},
		{name: "compress to stdout", mutate: func(o *Options) { o.Compress = true }, wantErr: "--compress requires --output-dir"},
		{
			name:    "both introspection commands",
			mutate:  func(o *Options) { o.DumpMappings, o.DumpIndexInfo = true, true },
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)

			err := opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var usage *UsageError
			require.True(t, errors.As(err, &usage), "want *UsageError, got %T", err)
			assert.Contains(t, usage.Error(), tt.wantErr)
		})
	}
}

func TestRun_UsageErrorMakesNoRequest(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(3))
	defer store.Close()

	opts := options(store)
	opts.Index = ""
	_, _, err := run(t, opts)

	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	search, scroll, clear, count := store.Counts()
	assert.Zero(t, search+scroll+clear+count)
}

func TestRun_SingleSliceTwoDocuments(t *testing.T) {
	store := testutil.NewMockStore("idx", []testutil.StoreDoc{
		{ID: "1", Source: `{"a":1}`},
		{ID: "2", Source: `{"a":2}`},
	})
	defer store.Close()

	opts := options(store)
	opts.Slices = 1
	stdout, stderr, err := run(t, opts)

	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t,
		"{\"index\":{\"_id\":\"1\"}}\n{\"a\":1}\n{\"index\":{\"_id\":\"2\"}}\n{\"a\":2}\n",
		stdout)
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "http://localhost:9200", NormalizeHost("localhost:9200"))
	assert.Equal(t, "http://es.local", NormalizeHost(" es.local "))
	assert.Equal(t, "https://es.local:9243", NormalizeHost("https://es.local:9243"))
	assert.Equal(t, "", NormalizeHost(""))
}

func TestRun_HostWithoutScheme(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(3))
	defer store.Close()

	opts := options(store)
	opts.Host = strings.TrimPrefix(store.URL(), "http://")
	opts.Meta = sink.MetaOptions{}
	stdout, _, err := run(t, opts)

	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(stdout, "\n"))
}

func TestRun_AllSlicesDumped(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(57))
	defer store.Close()

	opts := options(store)
	opts.PageSize = 4
	opts.Meta = sink.MetaOptions{}
	stdout, _, err := run(t, opts)

	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSuffix(stdout, "\n"), "\n"), 57)
	assert.Zero(t, store.OpenCursors())
}

func TestRun_EmptyIndex(t *testing.T) {
	store := testutil.NewMockStore("idx", nil)
	defer store.Close()

	stdout, stderr, err := run(t, options(store))

	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Equal(t, EmptyIndexNotice+"\n", stderr)

	search, _, _, count := store.Counts()
	assert.Equal(t, 1, count)
	assert.Zero(t, search, "no search is issued for an empty index")
}

func TestRun_CountFailure(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(3))
	defer store.Close()
	store.SetCountResponse(http.StatusForbidden, `{"error":"forbidden"}`)

	_, _, err := run(t, options(store))

	var statusErr *transport.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	search, _, _, _ := store.Counts()
	assert.Zero(t, search)
}

func TestRun_SliceFailure(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(20))
	defer store.Close()
	store.SetSearchStatus(1, http.StatusInternalServerError)

	opts := options(store)
	opts.Slices = 3
	opts.Meta = sink.MetaOptions{}
	stdout, stderr, err := run(t, opts)

	var failures *SliceFailuresError
	require.ErrorAs(t, err, &failures)
	assert.Equal(t, []int{1}, failures.SliceIDs())
	assert.Equal(t, "1 of 3 slices failed", failures.Error())

	var statusErr *transport.HTTPStatusError
	assert.ErrorAs(t, err, &statusErr, "slice errors are reachable through the aggregate")

	assert.True(t, strings.HasPrefix(stderr, "Slice 01 exited with error: Server returned HTTP status 500"), stderr)

	// Slice 1 holds documents 1,4,..,19.
	assert.Len(t, strings.Split(strings.TrimSuffix(stdout, "\n"), "\n"), 20-7)
}

func TestRun_DumpMappings(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(3))
	defer store.Close()
	store.SetMapping("{\n  \"mappings\": {\"properties\": {}}\n}")

	opts := options(store)
	opts.DumpMappings = true
	stdout, _, err := run(t, opts)

	require.NoError(t, err)
	assert.Equal(t, "{\"mappings\":{\"properties\":{}}}\n", stdout)
	search, _, _, count := store.Counts()
	assert.Zero(t, search+count)
}

func TestRun_DumpIndexInfo(t *testing.T) {
	store := testutil.NewMockStore("idx", nil)
	defer store.Close()

	opts := options(store)
	opts.DumpIndexInfo = true
	stdout, _, err := run(t, opts)

	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "\n"))
	assert.Contains(t, stdout, `"settings"`)
}

func TestRun_DumpMappingsUnknownIndex(t *testing.T) {
	store := testutil.NewMockStore("idx", nil)
	defer store.Close()

	opts := options(store)
	opts.Index = "other"
	opts.DumpMappings = true
	_, _, err := run(t, opts)

	var statusErr *transport.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestRun_PerSliceOutput(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(9))
	defer store.Close()

	dir := t.TempDir()
	opts := options(store)
	opts.Slices = 3
	opts.OutputDir = dir
	stdout, _, err := run(t, opts)

	require.NoError(t, err)
	assert.Empty(t, stdout)
	for id := 0; id < 3; id++ {
		data, err := os.ReadFile(filepath.Join(dir, sink.FileName("idx", id, false)))
		require.NoError(t, err)
		assert.Equal(t, 6, strings.Count(string(data), "\n"), "slice %d", id)
	}
}

func TestRun_BasicAuth(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(2))
	defer store.Close()
	store.RequireBasicAuth("elastic", "secret")

	opts := options(store)
	opts.Auth = transport.AuthConfig{Scheme: transport.AuthBasic, Username: "elastic", Password: "secret"}
	_, _, err := run(t, opts)
	require.NoError(t, err)

	opts.Auth.Password = "nope"
	_, _, err = run(t, opts)
	var statusErr *transport.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestRun_ProgressAndRateLimit(t *testing.T) {
	store := testutil.NewMockStore("idx", testutil.GenerateDocs(12))
	defer store.Close()

	opts := options(store)
	opts.Progress = true
	opts.MaxRPS = 1000
	opts.RedisURL = "redis://127.0.0.1:1/0"
	stdout, stderr, err := run(t, opts)

	require.NoError(t, err)
	assert.Equal(t, 24, strings.Count(stdout, "\n"))
	assert.Contains(t, stderr, "dumping idx")
}

func TestRegistry(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry([]pagination.Outcome{
		{SliceID: 2, State: pagination.StateFailed, Err: boom, Documents: 1},
		{SliceID: 0, State: pagination.StateDone, Documents: 5},
		{SliceID: 1, State: pagination.StateFailed, Err: boom},
	})

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, int64(6), r.Documents())

	failed := r.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].SliceID)
	assert.Equal(t, 2, failed[1].SliceID)

	o, ok := r.Outcome(0)
	require.True(t, ok)
	assert.True(t, o.Success())
	_, ok = r.Outcome(7)
	assert.False(t, ok)
}

func TestSliceFailuresError_Unwrap(t *testing.T) {
	boom := errors.New("boom")
	err := newSliceFailuresError([]pagination.Outcome{
		{SliceID: 3, State: pagination.StateFailed, Err: boom},
	}, 4)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Unwrap().Error(), "slice 03: boom")
}
