package docstore

import (
	sq "github.com/Masterminds/squirrel"
)

// psql is the shared statement builder for the PostgreSQL backend.
// All placeholders use the $N format.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func selectDocumentQuery(ref Ref) (string, []any, error) {
	return psql.
		Select("body", "version", "updated_at").
		From("documents").
		Where(sq.Eq{"collection": ref.Collection, "doc_id": ref.ID}).
		ToSql()
}

// insertDocumentQuery creates a document only if it does not exist yet.
// Zero affected rows means a concurrent creator won the race.
func insertDocumentQuery(ref Ref, body []byte) (string, []any, error) {
	return psql.
		Insert("documents").
		Columns("collection", "doc_id", "body", "version", "updated_at").
		Values(ref.Collection, ref.ID, body, 1, sq.Expr("now()")).
		Suffix("ON CONFLICT (collection, doc_id) DO NOTHING").
		ToSql()
}

// updateDocumentQuery replaces the body only when the stored version still
// matches the version observed inside the transaction. Zero affected rows
// means a write-write conflict.
func updateDocumentQuery(ref Ref, body []byte, readVersion int64) (string, []any, error) {
	return psql.
		Update("documents").
		Set("body", body).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"collection": ref.Collection, "doc_id": ref.ID, "version": readVersion}).
		ToSql()
}

// upsertDocumentQuery is the blind write used by batch operations: create
// or replace regardless of the current version.
func upsertDocumentQuery(ref Ref, body []byte) (string, []any, error) {
	return psql.
		Insert("documents").
		Columns("collection", "doc_id", "body", "version", "updated_at").
		Values(ref.Collection, ref.ID, body, 1, sq.Expr("now()")).
		Suffix("ON CONFLICT (collection, doc_id) DO UPDATE SET body = EXCLUDED.body, version = documents.version + 1, updated_at = now()").
		ToSql()
}

func deleteDocumentQuery(ref Ref, readVersion int64) (string, []any, error) {
	pred := sq.Eq{"collection": ref.Collection, "doc_id": ref.ID}
	if readVersion > 0 {
		pred["version"] = readVersion
	}
	return psql.
		Delete("documents").
		Where(pred).
		ToSql()
}
