// Package dump orchestrates a complete index dump: it validates options,
// answers the introspection commands, runs the pre-flight count and fans
// the scroll out over concurrent slices.
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	units "github.com/docker/go-units"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/metrics"
	"github.com/Sternrassler/esdump/pkg/pagination"
	"github.com/Sternrassler/esdump/pkg/progress"
	"github.com/Sternrassler/esdump/pkg/protocol"
	"github.com/Sternrassler/esdump/pkg/ratelimit"
	"github.com/Sternrassler/esdump/pkg/sink"
	"github.com/Sternrassler/esdump/pkg/transport"
)

// EmptyIndexNotice is printed to stderr when the pre-flight count is zero.
const EmptyIndexNotice = "Index is empty - no documents found"

// redisPingTimeout bounds the connectivity check of the progress store.
const redisPingTimeout = 2 * time.Second

// Dumper runs one dump. It is single-use.
type Dumper struct {
	opts   Options
	stdout io.Writer
	stderr io.Writer
	runID  string
	logger zerolog.Logger
	gate   *ratelimit.Gate
}

// New creates a dumper. NDJSON and introspection output go to stdout,
// notices and per-slice failures to stderr.
func New(opts Options, stdout, stderr io.Writer) *Dumper {
	runID := uuid.NewString()
	return &Dumper{
		opts:   opts,
		stdout: stdout,
		stderr: stderr,
		runID:  runID,
		logger: logging.NewLogger(logging.ComponentDump).With().Str("run_id", runID).Logger(),
	}
}

// RunID identifies this run in logs and in the progress store.
func (d *Dumper) RunID() string {
	return d.runID
}

// Run executes the dump. It returns nil on success and on an empty index,
// a *UsageError for bad options, a *SliceFailuresError when any slice
// failed, and the underlying error for introspection or count failures.
func (d *Dumper) Run(ctx context.Context) error {
	if err := d.opts.Validate(); err != nil {
		return err
	}
	d.opts.Host = NormalizeHost(d.opts.Host)

	d.gate = ratelimit.NewGate(d.opts.MaxRPS, d.opts.Slices, d.logger)

	if d.opts.MetricsAddr != "" {
		srv, err := metrics.Serve(d.opts.MetricsAddr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client := d.newClient(d.opts.Auth)
	defer client.CloseIdleConnections()

	switch {
	case d.opts.DumpMappings:
		return d.printIndexMember(ctx, client, protocol.MappingPath(d.opts.Index), protocol.ParseMappingResponse)
	case d.opts.DumpIndexInfo:
		return d.printIndexMember(ctx, client, protocol.IndexPath(d.opts.Index), protocol.ParseIndexInfoResponse)
	}

	total, err := d.countDocuments(ctx, client)
	if errors.Is(err, ErrEmptyIndex) {
		fmt.Fprintln(d.stderr, EmptyIndexNotice)
		return nil
	}
	if err != nil {
		return err
	}

	return d.dump(ctx, total)
}

func (d *Dumper) dump(ctx context.Context, total int64) error {
	start := time.Now()
	d.logger.Info().
		Str("index", d.opts.Index).
		Int64("count", total).
		Int("slices", d.opts.Slices).
		Int("size", d.opts.PageSize).
		Msg("Starting dump")

	out, err := d.openSink()
	if err != nil {
		return err
	}

	var observers pagination.Observers
	var bar *progress.Bar
	if d.opts.Progress {
		bar = progress.NewBar(d.stderr, total, d.opts.Index)
		observers = append(observers, bar)
	}
	if d.opts.RedisURL != "" {
		tracker, closeRedis := d.openTracker(ctx)
		if tracker != nil {
			defer closeRedis()
			observers = append(observers, tracker)
		}
	}

	cfg := pagination.DefaultConfig()
	cfg.ClearScroll = d.opts.ClearScroll
	if len(observers) > 0 {
		cfg.Observer = observers
	}

	fetcher := pagination.NewFetcher(out, func(spec pagination.SliceSpec) pagination.Executor {
		return d.newClient(spec.Auth)
	}, cfg)
	outcomes := fetcher.FetchAllSlices(ctx, d.sliceSpecs())

	closeErr := out.Close()
	if bar != nil {
		bar.Finish()
	}

	registry := NewRegistry(outcomes)
	failed := registry.Failed()
	for _, o := range failed {
		fmt.Fprintf(d.stderr, "Slice %02d exited with error: %s\n", o.SliceID, outcomeMessage(o))
	}

	stats := out.Stats()
	d.logger.Info().
		Int64("documents", stats.Documents).
		Int64("expected", total).
		Str("bytes", units.HumanSize(float64(stats.Bytes))).
		Int("failed_slices", len(failed)).
		Dur("duration", time.Since(start)).
		Msg("Dump finished")

	if len(failed) > 0 {
		return newSliceFailuresError(failed, registry.Len())
	}
	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}
	if stats.Documents != total {
		d.logger.Warn().
			Int64("documents", stats.Documents).
			Int64("expected", total).
			Msg("Document total differs from pre-flight count; index changed during the dump")
	}
	return nil
}

func (d *Dumper) newClient(auth transport.AuthConfig) *transport.Client {
	cfg := d.opts.transportConfig()
	cfg.Gate = d.gate
	return transport.New(auth, cfg)
}

func (d *Dumper) sliceSpecs() []pagination.SliceSpec {
	specs := make([]pagination.SliceSpec, d.opts.Slices)
	for id := range specs {
		specs[id] = pagination.SliceSpec{
			Host:     d.opts.Host,
			Index:    d.opts.Index,
			SliceID:  id,
			SliceMax: d.opts.Slices,
			PageSize: d.opts.PageSize,
			Auth:     d.opts.Auth,
		}
	}
	return specs
}

func (d *Dumper) openSink() (sink.Sink, error) {
	enc := sink.NewEncoder(d.opts.Meta)
	if d.opts.OutputDir == "" {
		return sink.NewShared(d.stdout, enc), nil
	}
	out, err := sink.NewPerSlice(d.opts.OutputDir, d.opts.Index, enc, d.opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("prepare output directory: %w", err)
	}
	return out, nil
}

// openTracker connects to the progress store. Progress is optional: any
// failure is logged and the dump runs without it.
func (d *Dumper) openTracker(ctx context.Context) (*progress.RedisTracker, func()) {
	redisOpts, err := redis.ParseURL(d.opts.RedisURL)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Invalid Redis URL, progress tracking disabled")
		return nil, nil
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		d.logger.Warn().Err(err).Msg("Redis unavailable, progress tracking disabled")
		_ = client.Close()
		return nil, nil
	}

	tracker := progress.NewRedisTracker(client, d.runID, progress.DefaultTTL)
	if err := tracker.Start(ctx, d.opts.Slices); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize progress")
	}
	d.logger.Info().Str("key_prefix", progress.SliceKey(d.runID, 0)).Msg("Tracking progress in Redis")

	return tracker, func() { _ = client.Close() }
}

// countDocuments runs the pre-flight count. A zero count is ErrEmptyIndex.
func (d *Dumper) countDocuments(ctx context.Context, client *transport.Client) (int64, error) {
	resp, err := client.Execute(ctx, protocol.URL(d.opts.Host, protocol.CountPath(d.opts.Index)), nil)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, transport.NewHTTPStatusError(resp)
	}
	count, err := protocol.ParseCountResponse(resp.Body)
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, ErrEmptyIndex
	}
	return count, nil
}

// printIndexMember fetches path and prints the value stored under the index
// name as one compact JSON line.
func (d *Dumper) printIndexMember(
	ctx context.Context,
	client *transport.Client,
	path string,
	parse func(body []byte, index string) (json.RawMessage, error),
) error {
	resp, err := client.Execute(ctx, protocol.URL(d.opts.Host, path), nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return transport.NewHTTPStatusError(resp)
	}

	value, err := parse(resp.Body, d.opts.Index)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := sink.AppendCompact(&buf, value); err != nil {
		return fmt.Errorf("compact %s: %w", path, err)
	}
	buf.WriteByte('\n')

	_, err = d.stdout.Write(buf.Bytes())
	return err
}

func outcomeMessage(o pagination.Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return "ended in state " + o.State.String()
}
