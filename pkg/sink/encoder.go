package sink

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/esdump/pkg/protocol"
)

// MetaOptions controls the bulk-style action line written before each
// document source.
type MetaOptions struct {
	// Enabled writes {"index":{...}} before every source line.
	Enabled bool

	// IncludeIndex adds the originating _index to the meta line.
	IncludeIndex bool
}

type metaAction struct {
	Index string `json:"_index,omitempty"`
	Type  string `json:"_type,omitempty"`
	ID    string `json:"_id"`
}

type metaLine struct {
	Index metaAction `json:"index"`
}

// emptySource stands in for hits stored without _source.
var emptySource = []byte("{}")

// Encoder renders documents as NDJSON records.
type Encoder struct {
	Meta MetaOptions
}

// NewEncoder returns an encoder with the given meta options.
func NewEncoder(meta MetaOptions) Encoder {
	return Encoder{Meta: meta}
}

// AppendRecord appends the record for doc to buf: the optional meta line
// followed by the compacted source, each newline-terminated. On error buf
// is left as it was.
func (e Encoder) AppendRecord(buf *bytes.Buffer, doc protocol.Document) error {
	mark := buf.Len()

	if e.Meta.Enabled {
		action := metaAction{ID: doc.ID, Type: doc.Type}
		if e.Meta.IncludeIndex {
			action.Index = doc.Index
		}
		line, err := json.Marshal(metaLine{Index: action})
		if err != nil {
			return fmt.Errorf("encode meta for %q: %w", doc.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	source := []byte(doc.Source)
	if len(bytes.TrimSpace(source)) == 0 {
		source = emptySource
	}
	// Stored sources may be pretty-printed; compacting keeps one value per line.
	if err := AppendCompact(buf, source); err != nil {
		buf.Truncate(mark)
		return fmt.Errorf("compact source of %q: %w", doc.ID, err)
	}
	buf.WriteByte('\n')

	return nil
}

// AppendCompact appends the compacted form of src to dst. go-json's
// Compact re-emits whatever dst already holds, so the value is compacted
// into an empty scratch buffer first.
func AppendCompact(dst *bytes.Buffer, src []byte) error {
	var scratch bytes.Buffer
	scratch.Grow(len(src))
	if err := json.Compact(&scratch, src); err != nil {
		return err
	}
	dst.Write(scratch.Bytes())
	return nil
}
