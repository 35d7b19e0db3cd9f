// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package deltasvc is the server side of delta synchronization: given a
// group and a watermark it returns every record changed at or after it,
// plus the server time the query was evaluated at. The endpoint is
// idempotent and side-effect free; clients merge responses by upsert.
package deltasvc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// RecordsCollection is the document collection served by the delta
// endpoint.
const RecordsCollection = "transactions"

var (
	// ErrGroupNotFound is returned for delta requests against unknown
	// groups.
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotMember is returned when the requesting actor is not a member of
	// the group. Membership is checked server-side on every request; a
	// client-side check alone would let a departed member keep fetching.
	ErrNotMember = errors.New("actor is not a group member")
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Service evaluates delta queries against the PostgreSQL documents table.
type Service struct {
	db  *sql.DB
	log *logger.Logger
}

// NewService returns a Service over db.
func NewService(db *sql.DB, log *logger.Logger) *Service {
	return &Service{db: db, log: log}
}

// Delta returns the group's records changed at or after req.Since. The
// zero Since returns the full record set. AsOf is taken from the database
// clock before the record query so that a write landing mid-query is
// re-delivered by the next fetch rather than lost.
func (s *Service) Delta(ctx context.Context, actor string, req models.DeltaRequest) (models.DeltaResponse, error) {
	log := s.log.With().Str("func", "Delta").Str("group_id", req.GroupID).Str("actor", actor).Logger()

	if err := s.checkMembership(ctx, actor, req.GroupID); err != nil {
		return models.DeltaResponse{}, err
	}

	var asOf time.Time
	if err := s.db.QueryRowContext(ctx, "SELECT now()").Scan(&asOf); err != nil {
		return models.DeltaResponse{}, fmt.Errorf("read server time: %w", err)
	}

	query, args, err := selectDeltaQuery(req)
	if err != nil {
		return models.DeltaResponse{}, fmt.Errorf("build delta query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.DeltaResponse{}, fmt.Errorf("query delta for %s: %w", req.GroupID, err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		var (
			r    models.Record
			body []byte
		)
		if err = rows.Scan(&r.ID, &body, &r.Version, &r.UpdatedAt); err != nil {
			return models.DeltaResponse{}, fmt.Errorf("scan delta row: %w", err)
		}

		var flags struct {
			Deleted bool `json:"deleted"`
		}
		if err = json.Unmarshal(body, &flags); err != nil {
			return models.DeltaResponse{}, fmt.Errorf("decode record %s: %w", r.ID, err)
		}

		r.GroupID = req.GroupID
		r.Kind = "transaction"
		r.Payload = body
		r.Deleted = flags.Deleted
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return models.DeltaResponse{}, fmt.Errorf("iterate delta rows: %w", err)
	}

	log.Debug().Int("records", len(records)).Time("since", req.Since).Msg("delta evaluated")
	return models.DeltaResponse{Records: records, AsOf: asOf}, nil
}

func (s *Service) checkMembership(ctx context.Context, actor, groupID string) error {
	query, args, err := selectGroupQuery(groupID)
	if err != nil {
		return fmt.Errorf("build group query: %w", err)
	}

	var body []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	if err != nil {
		return fmt.Errorf("read group %s: %w", groupID, err)
	}

	var group models.SharedGroup
	if err = json.Unmarshal(body, &group); err != nil {
		return fmt.Errorf("decode group %s: %w", groupID, err)
	}
	if !group.HasMember(actor) {
		return fmt.Errorf("%w: %s in %s", ErrNotMember, actor, groupID)
	}
	return nil
}

func selectGroupQuery(groupID string) (string, []any, error) {
	return psql.
		Select("body").
		From("documents").
		Where(sq.Eq{"collection": "groups", "doc_id": groupID}).
		ToSql()
}

func selectDeltaQuery(req models.DeltaRequest) (string, []any, error) {
	q := psql.
		Select("doc_id", "body", "version", "updated_at").
		From("documents").
		Where(sq.Eq{"collection": RecordsCollection}).
		Where(sq.Expr("body ->> 'group_id' = ?", req.GroupID)).
		OrderBy("updated_at", "doc_id")
	if !req.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"updated_at": req.Since})
	}
	return q.ToSql()
}
