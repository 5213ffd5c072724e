package dump

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/esdump/pkg/sink"
	"github.com/Sternrassler/esdump/pkg/transport"
)

const (
	// DefaultSlices is the number of slices scrolled concurrently.
	DefaultSlices = 5

	// DefaultPageSize is the number of documents requested per page.
	DefaultPageSize = 5000
)

// Options configures one dump run.
type Options struct {
	Host  string
	Index string
	Auth  transport.AuthConfig

	Slices   int
	PageSize int

	// DumpMappings prints the index mapping instead of dumping documents.
	DumpMappings bool

	// DumpIndexInfo prints the index settings, mappings and aliases
	// instead of dumping documents.
	DumpIndexInfo bool

	// OutputDir writes one file per slice into this directory. Empty
	// multiplexes every slice onto stdout.
	OutputDir string
	Compress  bool

	Meta        sink.MetaOptions
	ClearScroll bool

	Timeout     time.Duration
	Compression bool

	// MaxRPS caps requests per second across all slices; zero is unlimited.
	MaxRPS float64

	Progress    bool
	RedisURL    string
	MetricsAddr string
}

// DefaultOptions returns options with every default applied.
func DefaultOptions() Options {
	return Options{
		Auth:        transport.AuthConfig{Scheme: transport.AuthNone},
		Slices:      DefaultSlices,
		PageSize:    DefaultPageSize,
		Meta:        sink.MetaOptions{Enabled: true},
		ClearScroll: true,
		Compression: true,
	}
}

// Validate reports the first problem with the options as a *UsageError.
func (o Options) Validate() error {
	if o.Host == "" {
		return usageErrorf("Must provide an Elasticsearch host (--host)")
	}
	u, err := url.Parse(NormalizeHost(o.Host))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return usageErrorf("Invalid host %q: expected http(s)://host[:port]", o.Host)
	}
	if o.Index == "" {
		return usageErrorf("Must provide an index (--index)")
	}

	switch o.Auth.Scheme {
	case "", transport.AuthNone:
	case transport.AuthBasic:
		if o.Auth.Username == "" {
			return usageErrorf("Must provide --basic-username when passing --auth=basic")
		}
		if o.Auth.Password == "" {
			return usageErrorf("Must provide --basic-password when passing --auth=basic")
		}
	default:
		return usageErrorf("Unsupported authentication method %q (supported: basic)", o.Auth.Scheme)
	}

	if o.Slices < 1 {
		return usageErrorf("--slices must be at least 1, got %d", o.Slices)
	}
	if o.PageSize < 1 {
		return usageErrorf("--size must be at least 1, got %d", o.PageSize)
	}
	if o.MaxRPS < 0 {
		return usageErrorf("--max-rps must not be negative, got %v", o.MaxRPS)
	}
	if o.Compress && o.OutputDir == "" {
		return usageErrorf("--compress requires --output-dir")
	}
	if o.DumpMappings && o.DumpIndexInfo {
		return usageErrorf("--dump-mappings and --dump-index-info are mutually exclusive")
	}
	return nil
}

// NormalizeHost defaults a host given without a scheme to plain http.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// transportConfig derives the per-client configuration.
func (o Options) transportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.Timeout = o.Timeout
	cfg.Compression = o.Compression
	return cfg
}

func usageErrorf(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}
