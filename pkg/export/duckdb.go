package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/errors"
)

// WriteDuckDB loads the archive into a DuckDB database at path. The database
// gets an entries table plus a statistics table, so session archives can be
// queried directly with SQL.
func WriteDuckDB(ctx context.Context, a *archive.Archive, path string) error {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to open duckdb")
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			entry_id VARCHAR NOT NULL,
			archive_id VARCHAR NOT NULL,
			session_id VARCHAR NOT NULL,
			kind VARCHAR NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			display_text VARCHAR,
			categories VARCHAR,
			key_event BOOLEAN NOT NULL,
			record_count INTEGER NOT NULL,
			roll_formula VARCHAR,
			roll_actor VARCHAR
		)
	`); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create entries table")
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS statistics (
			archive_id VARCHAR NOT NULL,
			session_id VARCHAR NOT NULL,
			encounters INTEGER NOT NULL,
			rolls INTEGER NOT NULL,
			critical_successes INTEGER NOT NULL,
			critical_failures INTEGER NOT NULL,
			item_transfers INTEGER NOT NULL,
			xp_events INTEGER NOT NULL,
			key_events INTEGER NOT NULL,
			original_messages INTEGER NOT NULL,
			compressed_entries INTEGER NOT NULL,
			compression_ratio INTEGER NOT NULL
		)
	`); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create statistics table")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to begin transaction")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (entry_id, archive_id, session_id, kind, timestamp_ms,
			display_text, categories, key_event, record_count, roll_formula, roll_actor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.CodeExportFailed, "failed to prepare insert")
	}

	for _, e := range a.Entries {
		var formula, actor interface{}
		if e.Recreation != nil {
			formula = e.Recreation.Formula
			actor = e.Recreation.Actor
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, a.ID, a.SessionID, string(e.Kind), e.Timestamp,
			e.DisplayText, strings.Join(e.Categories, ","), e.KeyEvent,
			len(e.RecordIDs), formula, actor,
		); err != nil {
			stmt.Close()
			tx.Rollback()
			return errors.Wrap(err, errors.CodeExportFailed, "failed to insert entry")
		}
	}
	stmt.Close()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO statistics VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.SessionID,
		a.Statistics.Encounters, a.Statistics.Rolls,
		a.Statistics.CriticalSuccesses, a.Statistics.CriticalFailures,
		a.Statistics.ItemTransfers, a.Statistics.XPEvents, a.Statistics.KeyEvents,
		a.OriginalMessageCount, a.CompressedEntryCount, a.CompressionRatio,
	); err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.CodeExportFailed, "failed to insert statistics")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to commit")
	}
	return nil
}

// DuckDBToParquet converts a previously exported DuckDB entries table to a
// Parquet file using DuckDB's native COPY.
func DuckDBToParquet(ctx context.Context, dbPath, parquetPath, compression string) error {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to open duckdb")
	}
	defer db.Close()

	comp := "snappy"
	switch compression {
	case "gzip":
		comp = "gzip"
	case "zstd":
		comp = "zstd"
	case "none", "uncompressed":
		comp = "uncompressed"
	}

	query := fmt.Sprintf(`COPY entries TO '%s' (FORMAT PARQUET, COMPRESSION '%s')`,
		parquetPath, comp)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to copy to parquet")
	}
	return nil
}
