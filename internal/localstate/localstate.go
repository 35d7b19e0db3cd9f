// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package localstate is the client-side SQLite persistence of the sync
// agent: per-group watermarks and the last merged record set. It survives
// restarts so the agent resumes with delta fetches instead of refetching
// whole groups.
package localstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// DB is a handle to the agent's local database.
type DB struct {
	db  *sql.DB
	log *logger.Logger
}

// Open connects to the SQLite database at path, creating the file and the
// schema on first use. An empty path opens an in-memory database.
func Open(ctx context.Context, path string, log *logger.Logger) (*DB, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := createDBFileIfNotExists(path); err != nil {
			log.Err(err).Str("func", "Open").Msg("error creating database file")
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Err(err).Str("func", "Open").Msg("error opening database")
		return nil, fmt.Errorf("open local database: %w", err)
	}

	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "Open").Msg("error connecting database (ping)")
		conn.Close()
		return nil, fmt.Errorf("ping local database: %w", err)
	}

	if _, err = conn.ExecContext(ctx, schema); err != nil {
		log.Err(err).Str("func", "Open").Msg("error creating schema")
		conn.Close()
		return nil, fmt.Errorf("create local schema: %w", err)
	}
	log.Debug().Str("func", "Open").Str("path", path).Msg("local state opened")

	return &DB{db: conn, log: log}, nil
}

func createDBFileIfNotExists(dbFile string) error {
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		if dir := filepath.Dir(dbFile); dir != "." {
			if err = os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("error creating DB dir: %w", err)
			}
		}
		f, err := os.Create(dbFile)
		if err != nil {
			return fmt.Errorf("error creating DB file: %w", err)
		}
		f.Close()
	}

	return nil
}

// Watermark returns the group's merge watermark. ok is false when the
// group has never completed a fetch.
func (d *DB) Watermark(ctx context.Context, groupID string) (st models.SyncState, ok bool, err error) {
	st.GroupID = groupID
	err = d.db.QueryRowContext(ctx, getWatermark, groupID).Scan(&st.Watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("read watermark for %s: %w", groupID, err)
	}
	return st, true, nil
}

// SetWatermark records the group's merge watermark. The caller only moves
// it forward, and only after the corresponding records were merged.
func (d *DB) SetWatermark(ctx context.Context, st models.SyncState) error {
	_, err := d.db.ExecContext(ctx, upsertWatermark, st.GroupID, st.Watermark, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store watermark for %s: %w", st.GroupID, err)
	}
	return nil
}

// UpsertRecords merges a batch of fetched records into the local copy,
// atomically with respect to readers.
func (d *DB) UpsertRecords(ctx context.Context, groupID string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record merge: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("prepare record upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.ExecContext(ctx, groupID, r.ID, r.Kind, []byte(r.Payload), r.UpdatedAt, r.Deleted, r.Version)
		if err != nil {
			return fmt.Errorf("upsert record %s/%s: %w", groupID, r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record merge: %w", err)
	}
	return nil
}

// RecordsFor returns the group's local records ordered by update time.
func (d *DB) RecordsFor(ctx context.Context, groupID string) ([]models.Record, error) {
	rows, err := d.db.QueryContext(ctx, getRecords, groupID)
	if err != nil {
		return nil, fmt.Errorf("read records for %s: %w", groupID, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r := models.Record{GroupID: groupID}
		var payload []byte
		if err = rows.Scan(&r.ID, &r.Kind, &payload, &r.UpdatedAt, &r.Deleted, &r.Version); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Payload = payload
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records for %s: %w", groupID, err)
	}
	return records, nil
}

// DeleteGroup drops the group's watermark and records, typically after the
// local user left the group.
func (d *DB) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group delete: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, deleteGroupRecords, groupID); err != nil {
		return fmt.Errorf("delete records for %s: %w", groupID, err)
	}
	if _, err = tx.ExecContext(ctx, deleteGroupState, groupID); err != nil {
		return fmt.Errorf("delete sync state for %s: %w", groupID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit group delete: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
