package sink

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/Sternrassler/esdump/pkg/protocol"
)

// writeBufSize matches the stream buffer of the single-threaded dumper.
const writeBufSize = 64 * 1024

// Shared writes all slices to one stream. A record (meta line plus source
// line) is written and flushed while holding mu, so records of different
// slices never interleave.
type Shared struct {
	mu  sync.Mutex
	out *bufio.Writer
	enc Encoder
	counters
}

// NewShared wraps w, typically os.Stdout. Shared never closes w.
func NewShared(w io.Writer, enc Encoder) *Shared {
	return &Shared{
		out: bufio.NewWriterSize(w, writeBufSize),
		enc: enc,
	}
}

var _ Sink = (*Shared)(nil)

// ForSlice returns a handle bound to the shared stream.
func (s *Shared) ForSlice(sliceID int) (SliceWriter, error) {
	return &sharedWriter{parent: s, sliceID: sliceID}, nil
}

// Stats reports totals across all slices.
func (s *Shared) Stats() Stats {
	return s.stats()
}

// Close flushes anything still buffered.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Flush()
}

// writeRecord is the critical section: one complete record, then flush.
func (s *Shared) writeRecord(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.out.Write(record); err != nil {
		return err
	}
	return s.out.Flush()
}

type sharedWriter struct {
	parent  *Shared
	sliceID int
	buf     bytes.Buffer
}

func (w *sharedWriter) WriteBatch(docs []protocol.Document) error {
	for _, doc := range docs {
		w.buf.Reset()
		if err := w.parent.enc.AppendRecord(&w.buf, doc); err != nil {
			return fmt.Errorf("slice %d: %w", w.sliceID, err)
		}
		if err := w.parent.writeRecord(w.buf.Bytes()); err != nil {
			return fmt.Errorf("slice %d: write output: %w", w.sliceID, err)
		}
		w.parent.add(1, w.buf.Len())
	}
	return nil
}

func (w *sharedWriter) Close() error {
	return nil
}
