// Package sink serializes hits from concurrent slice workers into NDJSON.
//
// Two variants exist. Shared multiplexes every slice onto one stream and
// serializes whole records under a mutex; PerSlice gives each slice its own
// file so no coordination is needed.
package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/Sternrassler/esdump/pkg/protocol"
)

var (
	documentsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esdump_documents_written_total",
		Help: "Total documents written to the output",
	})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esdump_bytes_written_total",
		Help: "Total NDJSON bytes written to the output",
	})
)

// Sink hands out one SliceWriter per slice worker.
type Sink interface {
	// ForSlice opens the stream slice sliceID writes to. It is called once,
	// when the worker starts.
	ForSlice(sliceID int) (SliceWriter, error)

	// Stats reports totals across all slices.
	Stats() Stats

	// Close releases the sink after every SliceWriter has been closed.
	Close() error
}

// SliceWriter receives the batches of exactly one slice.
type SliceWriter interface {
	// WriteBatch writes every document of the batch in order.
	WriteBatch(docs []protocol.Document) error

	// Close flushes and releases the slice's stream. It is called once
	// when the worker terminates, whether it succeeded or failed.
	Close() error
}

// Stats are cumulative output totals.
type Stats struct {
	Documents int64
	Bytes     int64
}

type counters struct {
	documents atomic.Int64
	bytes     atomic.Int64
}

func (c *counters) add(docs, n int) {
	c.documents.Add(int64(docs))
	c.bytes.Add(int64(n))
	documentsWritten.Add(float64(docs))
	bytesWritten.Add(float64(n))
}

func (c *counters) stats() Stats {
	return Stats{Documents: c.documents.Load(), Bytes: c.bytes.Load()}
}
