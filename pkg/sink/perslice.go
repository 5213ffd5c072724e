package sink

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"

	"github.com/Sternrassler/esdump/pkg/protocol"
)

// PerSlice writes each slice to <dir>/<index>.<sliceId>.json, gzip
// compressed with a .gz suffix when Compress is set.
type PerSlice struct {
	dir      string
	index    string
	enc      Encoder
	compress bool
	counters
}

// NewPerSlice creates dir if needed and returns the sink.
func NewPerSlice(dir, index string, enc Encoder, compress bool) (*PerSlice, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &PerSlice{dir: dir, index: index, enc: enc, compress: compress}, nil
}

var _ Sink = (*PerSlice)(nil)

// FileName is the output file name of a slice.
func FileName(index string, sliceID int, compress bool) string {
	name := index + "." + strconv.Itoa(sliceID) + ".json"
	if compress {
		name += ".gz"
	}
	return name
}

// Path returns the output path of sliceID.
func (p *PerSlice) Path(sliceID int) string {
	return filepath.Join(p.dir, FileName(p.index, sliceID, p.compress))
}

// ForSlice creates (truncating) the slice's file.
func (p *PerSlice) ForSlice(sliceID int) (SliceWriter, error) {
	path := p.Path(sliceID)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open slice output %s: %w", path, err)
	}

	w := &fileWriter{parent: p, file: f, path: path}
	var dst io.Writer = f
	if p.compress {
		w.gz = gzip.NewWriter(f)
		dst = w.gz
	}
	w.out = bufio.NewWriterSize(dst, writeBufSize)

	return w, nil
}

// Stats reports totals across all slices.
func (p *PerSlice) Stats() Stats {
	return p.stats()
}

// Close is a no-op; every file is owned and closed by its SliceWriter.
func (p *PerSlice) Close() error {
	return nil
}

type fileWriter struct {
	parent *PerSlice
	file   *os.File
	gz     *gzip.Writer
	out    *bufio.Writer
	path   string
	buf    bytes.Buffer
}

func (w *fileWriter) WriteBatch(docs []protocol.Document) error {
	w.buf.Reset()
	for _, doc := range docs {
		if err := w.parent.enc.AppendRecord(&w.buf, doc); err != nil {
			return err
		}
	}
	if _, err := w.out.Write(w.buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	w.parent.add(len(docs), w.buf.Len())
	return nil
}

func (w *fileWriter) Close() error {
	var errs *multierror.Error
	if err := w.out.Flush(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("flush %s: %w", w.path, err))
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("finish gzip %s: %w", w.path, err))
		}
	}
	if err := w.file.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close %s: %w", w.path, err))
	}
	return errs.ErrorOrNil()
}
