// Package ingestion reads scrape feeds and turns job description markup into
// clean text.
package ingestion

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jonathan/applier/internal/schemas"
	"github.com/jonathan/applier/internal/types"
	rootschemas "github.com/jonathan/applier/schemas"
)

// maxFeedLine bounds a single JSON Lines row; descriptions with inline HTML can be large
const maxFeedLine = 4 << 20

// FeedRecord is one decoded line of a scrape feed
type FeedRecord struct {
	Line   int
	Record types.RawJobRecord
	Err    error
}

// FeedReader decodes a JSON Lines scrape feed, validating each row against
// the RawJobRecord schema before decoding it.
type FeedReader struct {
	validator *schemas.Validator
}

// NewFeedReader compiles the record schema
func NewFeedReader() (*FeedReader, error) {
	v, err := schemas.Compile(rootschemas.RawJobRecord)
	if err != nil {
		return nil, err
	}
	return &FeedReader{validator: v}, nil
}

// Read decodes every non-blank line of r. A line that fails validation is
// returned with Err set and does not stop the feed; only I/O errors do.
func (f *FeedReader) Read(r io.Reader) ([]FeedRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFeedLine)

	var out []FeedRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		out = append(out, f.decode(line, raw))
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read feed at line %d: %w", line+1, err)
	}
	return out, nil
}

// decode validates and unmarshals one row
func (f *FeedReader) decode(line int, raw []byte) FeedRecord {
	rec := FeedRecord{Line: line}
	if err := f.validator.ValidateBytes(raw); err != nil {
		rec.Err = &types.ErrValidation{Field: fmt.Sprintf("line %d", line), Message: err.Error()}
		return rec
	}
	if err := json.Unmarshal(raw, &rec.Record); err != nil {
		rec.Err = &types.ErrValidation{Field: fmt.Sprintf("line %d", line), Message: err.Error()}
	}
	return rec
}
