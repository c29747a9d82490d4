// Package ingest reads JSONL session logs into EventRecords.
//
// Each line of the input is one JSON object. The reader is tolerant by
// default: blank lines, non-JSON lines, and records that fail to decode are
// counted and skipped rather than aborting the batch. Strict mode turns any
// skip into an error.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/errors"
)

// Options controls reader behavior.
type Options struct {
	// Strict aborts on the first malformed line instead of skipping it.
	Strict bool

	// ShowProgress renders a byte progress bar while reading from a file.
	ShowProgress bool

	// BufferSize is the line buffer size. Zero uses a 4MB default, which
	// covers pasted handouts and large roll payloads.
	BufferSize int
}

// Result is the outcome of reading one log.
type Result struct {
	Records []model.EventRecord
	Skipped int
}

const defaultBufferSize = 4 * 1024 * 1024

// ReadFile reads a JSONL session log from disk.
func ReadFile(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeBadLogFile, "open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if opts.ShowProgress {
		if info, err := f.Stat(); err == nil {
			bar := progressbar.DefaultBytes(info.Size(), "reading log")
			r = io.TeeReader(f, bar)
		}
	}
	return Read(ctx, r, opts)
}

// Read reads a JSONL session log from r.
func Read(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), bufSize)

	res := &Result{}
	lineno := 0
	var lastTS int64

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lineno++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			if opts.Strict {
				return nil, errors.New(errors.CodeMalformedRecord,
					fmt.Sprintf("line %d: not a JSON object", lineno))
			}
			res.Skipped++
			continue
		}

		rec, err := decodeRecord(line)
		if err != nil {
			if opts.Strict {
				return nil, errors.Wrapf(err, errors.CodeMalformedRecord, "line %d", lineno)
			}
			res.Skipped++
			continue
		}

		// Timestamps must be non-decreasing across a batch. Clamp rather
		// than reorder so downstream indexes stay aligned with the input.
		if rec.Timestamp < lastTS {
			rec.Timestamp = lastTS
		}
		lastTS = rec.Timestamp

		res.Records = append(res.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeBadLogFile, "failed to scan log")
	}
	return res, nil
}
