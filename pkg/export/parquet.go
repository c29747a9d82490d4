// Package export renders archives to analysis-friendly formats: Parquet,
// DuckDB databases, and XLSX session reports.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/errors"
)

const lorekeepVersion = "1.0.0"

// Options controls export behavior.
type Options struct {
	// Compression is one of snappy, gzip, zstd, none. Defaults to snappy.
	Compression string

	// RowGroupSize is the number of entries per Arrow batch.
	RowGroupSize int64
}

func (o Options) rowGroupSize() int64 {
	if o.RowGroupSize <= 0 {
		return 8192
	}
	return o.RowGroupSize
}

// entrySchema is the flattened row shape for one archive entry.
func entrySchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "entry_id", Type: arrow.BinaryTypes.String},
		{Name: "kind", Type: arrow.BinaryTypes.String},
		{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "display_text", Type: arrow.BinaryTypes.String},
		{Name: "categories", Type: arrow.BinaryTypes.String},
		{Name: "key_event", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "record_count", Type: arrow.PrimitiveTypes.Int32},
		{Name: "roll_formula", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "roll_actor", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// WriteParquet writes the archive's entries to a Parquet file.
// The write is atomic: data lands in a temp file that is renamed on success.
func WriteParquet(ctx context.Context, a *archive.Archive, path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create output directory")
	}

	meta := arrow.NewMetadata(
		[]string{
			"lorekeep.version",
			"lorekeep.created_at",
			"lorekeep.archive_id",
			"lorekeep.session_id",
		},
		[]string{
			lorekeepVersion,
			time.Now().Format(time.RFC3339),
			a.ID,
			a.SessionID,
		},
	)
	schema := arrow.NewSchema(entrySchema().Fields(), &meta)

	tempPath := path + ".tmp." + fmt.Sprintf("%d", time.Now().UnixNano())
	file, err := os.Create(tempPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create temp file")
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codecFor(opts.Compression)),
		parquet.WithCreatedBy("Lorekeep "+lorekeepVersion),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, file, writerProps, arrowProps)
	if err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create parquet writer")
	}

	alloc := memory.NewGoAllocator()
	size := int(opts.rowGroupSize())
	for start := 0; start < len(a.Entries); start += size {
		select {
		case <-ctx.Done():
			writer.Close()
			os.Remove(tempPath)
			return ctx.Err()
		default:
		}

		end := start + size
		if end > len(a.Entries) {
			end = len(a.Entries)
		}
		batch := buildBatch(alloc, schema, a.Entries[start:end])
		err := writer.Write(batch)
		batch.Release()
		if err != nil {
			writer.Close()
			os.Remove(tempPath)
			return errors.Wrap(err, errors.CodeExportFailed, "failed to write batch")
		}
	}

	// Closing the writer also closes the file.
	if err := writer.Close(); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, errors.CodeExportFailed, "failed to close parquet writer")
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, errors.CodeExportFailed, "failed to finalize parquet file")
	}
	return nil
}

func buildBatch(alloc memory.Allocator, schema *arrow.Schema, entries []archive.Entry) arrow.Record {
	b := array.NewRecordBuilder(alloc, schema)
	defer b.Release()

	ids := b.Field(0).(*array.StringBuilder)
	kinds := b.Field(1).(*array.StringBuilder)
	timestamps := b.Field(2).(*array.Int64Builder)
	texts := b.Field(3).(*array.StringBuilder)
	categories := b.Field(4).(*array.StringBuilder)
	keyEvents := b.Field(5).(*array.BooleanBuilder)
	recordCounts := b.Field(6).(*array.Int32Builder)
	formulas := b.Field(7).(*array.StringBuilder)
	actors := b.Field(8).(*array.StringBuilder)

	for _, e := range entries {
		ids.Append(e.ID)
		kinds.Append(string(e.Kind))
		timestamps.Append(e.Timestamp)
		texts.Append(e.DisplayText)
		categories.Append(strings.Join(e.Categories, ","))
		keyEvents.Append(e.KeyEvent)
		recordCounts.Append(int32(len(e.RecordIDs)))
		if e.Recreation != nil {
			formulas.Append(e.Recreation.Formula)
			actors.Append(e.Recreation.Actor)
		} else {
			formulas.AppendNull()
			actors.AppendNull()
		}
	}
	return b.NewRecord()
}

func codecFor(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}
