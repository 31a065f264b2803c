package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/tsbatch/lib/batch"
	"github.com/ValentinKolb/tsbatch/lib/cache"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// maxLineSize is the largest accepted input line
const maxLineSize = 16 * 1024 * 1024

// ErrInvalidJSON is returned for input lines that are not an extended JSON document
var ErrInvalidJSON = errors.New("invalid extended JSON")

// Result counts what happened to the input lines
type Result struct {
	Lines    int // non-empty lines read
	Inserted int
	Rejected int
	Flushed  int // flushes forced by full compressed batches
}

// ParseDocument converts one line of relaxed or canonical extended JSON to BSON
func ParseDocument(line []byte) (bson.Raw, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(line, false, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return bson.Marshal(doc)
}

// Ingest inserts every line of r into the cache until r is exhausted or ctx is done.
//
// Documents with a duplicate timestamp, an invalid time field or invalid JSON are skipped,
// or abort the ingest if strict is set. A compressed batch is flushed once when it reports
// batch.ErrCompressorFull while it is resident; it keeps its samples, so later inserts into it are
// written back by eviction, the idle sweep or the final flush. A full batch that was loaded again is
// flushed once more. Errors of the backing store always abort the ingest.
func Ingest(ctx context.Context, c *cache.Cache, r io.Reader, strict bool) (Result, error) {
	var res Result
	opts := c.Options()
	full := make(map[batch.ID]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		res.Lines++

		doc, err := ParseDocument(line)
		if err == nil {
			err = c.Insert(doc)
		}

		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, batch.ErrCompressorFull):
			res.Inserted++
			t, _ := batch.TimeOf(doc, opts.TimeField)
			if id := batch.IDFor(t, opts.MillisInBatch); !full[id] {
				if err := c.Flush(t); err != nil {
					return res, err
				}
				full[id] = true
				res.Flushed++
				if len(full) > opts.CacheSize {
					forgetEvicted(full, c.Resident())
				}
			}
		case errors.Is(err, batch.ErrDuplicateKey),
			errors.Is(err, batch.ErrInvalidTimeField),
			errors.Is(err, ErrInvalidJSON):
			if strict {
				return res, fmt.Errorf("line %d: %w", res.Lines, err)
			}
			res.Rejected++
			log.Debugf("skipping line %d: %v", res.Lines, err)
		default:
			return res, fmt.Errorf("line %d: %w", res.Lines, err)
		}
	}
	return res, scanner.Err()
}

// forgetEvicted removes the batches that are no longer resident from full
func forgetEvicted(full map[batch.ID]bool, resident []batch.ID) {
	keep := make(map[batch.ID]bool, len(resident))
	for _, id := range resident {
		keep[id] = true
	}
	for id := range full {
		if !keep[id] {
			delete(full, id)
		}
	}
}
