// Package config turns command-line flags, ESDUMP_* environment variables
// and an optional .env file into dump options.
//
// Precedence, highest first: explicit flag, environment, .env, default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/esdump/pkg/dump"
	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/sink"
	"github.com/Sternrassler/esdump/pkg/transport"
)

// EnvPrefix prefixes every environment variable, e.g. ESDUMP_HOST.
const EnvPrefix = "ESDUMP"

// Flag names.
const (
	FlagHost          = "host"
	FlagIndex         = "index"
	FlagAuth          = "auth"
	FlagBasicUsername = "basic-username"
	FlagBasicPassword = "basic-password"
	FlagInsecure      = "insecure"
	FlagSlices        = "slices"
	FlagSize          = "size"
	FlagDumpMappings  = "dump-mappings"
	FlagDumpIndexInfo = "dump-index-info"
	FlagOutputDir     = "output-dir"
	FlagCompress      = "compress"
	FlagNoMeta        = "no-meta"
	FlagMetaIndex     = "meta-index"
	FlagNoClearScroll = "no-clear-scroll"
	FlagNoCompression = "no-compression"
	FlagTimeout       = "timeout"
	FlagMaxRPS        = "max-rps"
	FlagProgress      = "progress"
	FlagRedisURL      = "redis-url"
	FlagMetricsAddr   = "metrics-addr"
	FlagLogLevel      = "log-level"
	FlagLogPretty     = "log-pretty"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	Dump    dump.Options
	Logging logging.Config
}

// RegisterFlags adds every esdump flag to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagHost, "", "Elasticsearch host, e.g. http://localhost:9200")
	fs.String(FlagIndex, "", "Index to dump")
	fs.String(FlagAuth, "", "Authentication method (basic)")
	fs.String(FlagBasicUsername, "", "Username for --auth=basic")
	fs.String(FlagBasicPassword, "", "Password for --auth=basic")
	fs.Bool(FlagInsecure, false, "Skip TLS certificate and host name verification")
	fs.Int(FlagSlices, dump.DefaultSlices, "Number of slices scrolled in parallel")
	fs.Int(FlagSize, dump.DefaultPageSize, "Documents per page")
	fs.Bool(FlagDumpMappings, false, "Print the index mappings and exit")
	fs.Bool(FlagDumpIndexInfo, false, "Print the index settings, mappings and aliases and exit")
	fs.String(FlagOutputDir, "", "Write one <index>.<slice>.json file per slice into this directory instead of stdout")
	fs.Bool(FlagCompress, false, "Gzip the per-slice files (requires --output-dir)")
	fs.Bool(FlagNoMeta, false, "Omit the bulk action line before each document")
	fs.Bool(FlagMetaIndex, false, "Include _index in the bulk action line")
	fs.Bool(FlagNoClearScroll, false, "Leave scroll contexts to expire instead of clearing them")
	fs.Bool(FlagNoCompression, false, "Do not negotiate compressed responses")
	fs.Duration(FlagTimeout, 0, "Per-request timeout (0 disables)")
	fs.Float64(FlagMaxRPS, 0, "Maximum requests per second across all slices (0 disables)")
	fs.Bool(FlagProgress, false, "Show a progress bar on stderr")
	fs.String(FlagRedisURL, "", "Publish per-slice progress to this Redis URL")
	fs.String(FlagMetricsAddr, "", "Serve Prometheus metrics on this address while dumping")
	fs.String(FlagLogLevel, logging.DefaultLevel, "Log level (debug, info, warn, error)")
	fs.Bool(FlagLogPretty, false, "Human-readable log output")
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewViper binds fs to a viper instance reading ESDUMP_* variables.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

// Load resolves the configuration from v.
func Load(v *viper.Viper) Config {
	opts := dump.DefaultOptions()

	opts.Host = v.GetString(FlagHost)
	opts.Index = v.GetString(FlagIndex)
	opts.Auth = transport.AuthConfig{
		Scheme:   transport.AuthScheme(strings.ToLower(v.GetString(FlagAuth))),
		Username: v.GetString(FlagBasicUsername),
		Password: v.GetString(FlagBasicPassword),
		Insecure: v.GetBool(FlagInsecure),
	}
	if opts.Auth.Scheme == "" {
		opts.Auth.Scheme = transport.AuthNone
	}

	opts.Slices = v.GetInt(FlagSlices)
	opts.PageSize = v.GetInt(FlagSize)
	opts.DumpMappings = v.GetBool(FlagDumpMappings)
	opts.DumpIndexInfo = v.GetBool(FlagDumpIndexInfo)

	opts.OutputDir = v.GetString(FlagOutputDir)
	opts.Compress = v.GetBool(FlagCompress)
	opts.Meta = sink.MetaOptions{
		Enabled:      !v.GetBool(FlagNoMeta),
		IncludeIndex: v.GetBool(FlagMetaIndex),
	}
	opts.ClearScroll = !v.GetBool(FlagNoClearScroll)
	opts.Compression = !v.GetBool(FlagNoCompression)
	opts.Timeout = v.GetDuration(FlagTimeout)
	opts.MaxRPS = v.GetFloat64(FlagMaxRPS)

	opts.Progress = v.GetBool(FlagProgress)
	opts.RedisURL = v.GetString(FlagRedisURL)
	opts.MetricsAddr = v.GetString(FlagMetricsAddr)

	return Config{
		Dump: opts,
		Logging: logging.Config{
			Level:  v.GetString(FlagLogLevel),
			Pretty: v.GetBool(FlagLogPretty),
		},
	}
}
