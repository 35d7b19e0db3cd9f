// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package localstate

const schema = `
	CREATE TABLE IF NOT EXISTS sync_state (
		group_id   TEXT PRIMARY KEY,
		watermark  TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		group_id   TEXT NOT NULL,
		record_id  TEXT NOT NULL,
		kind       TEXT NOT NULL,
		payload    BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted    BOOLEAN NOT NULL DEFAULT FALSE,
		version    INTEGER NOT NULL,
		PRIMARY KEY (group_id, record_id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_group_updated
		ON records (group_id, updated_at);`

const (
	getWatermark = `
		SELECT watermark
		FROM sync_state
		WHERE group_id = ?;`

	upsertWatermark = `
		INSERT INTO sync_state (group_id, watermark, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			watermark  = excluded.watermark,
			updated_at = excluded.updated_at;`

	upsertRecord = `
		INSERT INTO records (
			group_id,
			record_id,
			kind,
			payload,
			updated_at,
			deleted,
			version
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id, record_id) DO UPDATE SET
			kind       = excluded.kind,
			payload    = excluded.payload,
			updated_at = excluded.updated_at,
			deleted    = excluded.deleted,
			version    = excluded.version;`

	getRecords = `
		SELECT
			record_id,
			kind,
			payload,
			updated_at,
			deleted,
			version
		FROM records
		WHERE group_id = ?
		ORDER BY updated_at, record_id;`

	deleteGroupState = `
		DELETE FROM sync_state
		WHERE group_id = ?;`

	deleteGroupRecords = `
		DELETE FROM records
		WHERE group_id = ?;`
)
