// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/migrations"
)

// notifyChannel is the LISTEN/NOTIFY channel the documents trigger
// publishes to. Payload format: "<collection>|<doc_id>".
const notifyChannel = "spendsync_doc_change"

// Postgres is the deployment Store. Documents live in a single
// `documents` table (collection, doc_id, jsonb body, version counter,
// server timestamp); optimistic concurrency is implemented with
// version-predicated UPDATEs and push subscriptions with a trigger that
// NOTIFYs on every row change.
type Postgres struct {
	db  *sql.DB
	dsn string
	log *logger.Logger

	mu       sync.Mutex
	watchers map[Ref]map[*docWatcher]struct{}
	closed   bool

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// NewPostgres opens the database, verifies connectivity and starts the
// notification listener.
func NewPostgres(ctx context.Context, dsn string, log *logger.Logger) (*Postgres, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(4)

	if err = conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("func", "NewPostgres").Msg("connected to database successfully")

	listenCtx, cancel := context.WithCancel(context.Background())
	p := &Postgres{
		db:           conn,
		dsn:          dsn,
		log:          log,
		watchers:     make(map[Ref]map[*docWatcher]struct{}),
		listenCancel: cancel,
		listenDone:   make(chan struct{}),
	}
	go p.listenLoop(listenCtx)

	return p, nil
}

// Migrate applies the embedded goose migrations.
func (p *Postgres) Migrate() error {
	return migrations.Migrate(p.db)
}

// DB exposes the underlying connection pool for services that query the
// documents table directly.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, ref Ref) (Doc, error) {
	query, args, err := selectDocumentQuery(ref)
	if err != nil {
		return Doc{}, fmt.Errorf("build select query: %w", err)
	}
	return scanDoc(p.db.QueryRowContext(ctx, query, args...), ref)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoc(row rowScanner, ref Ref) (Doc, error) {
	doc := Doc{Ref: ref}
	err := row.Scan(&doc.Data, &doc.Version, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, nil
	}
	if err != nil {
		return Doc{}, fmt.Errorf("scan document %s: %w", ref, err)
	}
	doc.Exists = true
	return doc, nil
}

// ServerTime implements Store.
func (p *Postgres) ServerTime(ctx context.Context) (time.Time, error) {
	var t time.Time
	if err := p.db.QueryRowContext(ctx, "SELECT now()").Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("select server time: %w", err)
	}
	return t, nil
}

type pgTx struct {
	ctx   context.Context
	tx    *sql.Tx
	reads map[Ref]int64
	write map[Ref]*txWrite
	order []Ref
}

func (t *pgTx) Get(ref Ref) (Doc, error) {
	if w, ok := t.write[ref]; ok {
		if w.kind == OpDelete {
			return Doc{Ref: ref}, nil
		}
		return Doc{Ref: ref, Data: w.data, Exists: true}, nil
	}

	query, args, err := selectDocumentQuery(ref)
	if err != nil {
		return Doc{}, fmt.Errorf("build select query: %w", err)
	}
	doc, err := scanDoc(t.tx.QueryRowContext(t.ctx, query, args...), ref)
	if err != nil {
		return Doc{}, err
	}
	if _, seen := t.reads[ref]; !seen {
		t.reads[ref] = doc.Version
	}
	return doc, nil
}

func (t *pgTx) Set(ref Ref, data []byte) {
	if _, ok := t.write[ref]; !ok {
		t.order = append(t.order, ref)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.write[ref] = &txWrite{kind: OpPut, data: buf}
}

func (t *pgTx) Delete(ref Ref) {
	if _, ok := t.write[ref]; !ok {
		t.order = append(t.order, ref)
	}
	t.write[ref] = &txWrite{kind: OpDelete}
}

// RunTransaction implements Store. Reads run inside the database
// transaction; buffered writes are applied at the end with
// version-predicated statements, so any document modified between the read
// and the apply surfaces as ErrWriteConflict and nothing is committed.
func (p *Postgres) RunTransaction(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if actor, ok := ActorFromContext(ctx); ok {
		// Exported to the session so database triggers (the memberUpdates
		// own-key rule) can see the acting identity.
		if _, err = sqlTx.ExecContext(ctx, "SELECT set_config('app.actor', $1, true)", actor); err != nil {
			return fmt.Errorf("set actor: %w", err)
		}
	}

	tx := &pgTx{ctx: ctx, tx: sqlTx, reads: make(map[Ref]int64), write: make(map[Ref]*txWrite)}
	if err = fn(tx); err != nil {
		return err
	}

	for _, ref := range tx.order {
		if err = p.applyWrite(ctx, sqlTx, ref, tx.write[ref], tx.reads[ref]); err != nil {
			return err
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return classifyPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (p *Postgres) applyWrite(ctx context.Context, sqlTx *sql.Tx, ref Ref, w *txWrite, readVersion int64) error {
	var (
		query string
		args  []any
		err   error
	)

	switch {
	case w.kind == OpDelete:
		query, args, err = deleteDocumentQuery(ref, readVersion)
	case readVersion > 0:
		query, args, err = updateDocumentQuery(ref, w.data, readVersion)
	default:
		query, args, err = insertDocumentQuery(ref, w.data)
	}
	if err != nil {
		return fmt.Errorf("build write query for %s: %w", ref, err)
	}

	res, err := sqlTx.ExecContext(ctx, query, args...)
	if err != nil {
		return classifyPgError(fmt.Errorf("apply write %s: %w", ref, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", ref, err)
	}
	// A versioned write that matched no row lost a race; a delete of a
	// document that was never read (readVersion 0) is allowed to be a
	// no-op.
	if affected == 0 && !(w.kind == OpDelete && readVersion == 0) {
		return fmt.Errorf("%w: %s", ErrWriteConflict, ref)
	}
	return nil
}

// classifyPgError maps PostgreSQL concurrency failures onto
// ErrWriteConflict so the guard's retry policy treats them uniformly.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %w", ErrWriteConflict, err)
		case pgerrcode.RaiseException:
			if strings.Contains(pgErr.Message, "member_updates") {
				return fmt.Errorf("%w: %w", ErrRuleViolation, err)
			}
		}
	}
	return err
}

// BatchWrite implements Store. All operations are applied in one database
// transaction; the trigger NOTIFYs per changed row.
func (p *Postgres) BatchWrite(ctx context.Context, ops []Op) (err error) {
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("%w: %d ops, cap %d", ErrBatchTooLarge, len(ops), MaxBatchOps)
	}

	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if actor, ok := ActorFromContext(ctx); ok {
		if _, err = sqlTx.ExecContext(ctx, "SELECT set_config('app.actor', $1, true)", actor); err != nil {
			return fmt.Errorf("set actor: %w", err)
		}
	}

	for _, op := range ops {
		var (
			query string
			args  []any
		)
		if op.Kind == OpDelete {
			query, args, err = deleteDocumentQuery(op.Ref, 0)
		} else {
			query, args, err = upsertDocumentQuery(op.Ref, op.Data)
		}
		if err != nil {
			return fmt.Errorf("build batch query for %s: %w", op.Ref, err)
		}
		if _, err = sqlTx.ExecContext(ctx, query, args...); err != nil {
			return classifyPgError(fmt.Errorf("batch write %s: %w", op.Ref, err))
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return classifyPgError(fmt.Errorf("commit batch: %w", err))
	}
	return nil
}

// Watch implements Store. The initial snapshot is read from the table;
// subsequent snapshots are driven by the notification listener.
func (p *Postgres) Watch(ctx context.Context, ref Ref) (Subscription, error) {
	initial, err := p.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrStoreClosed
	}

	var watcher *docWatcher
	watcher = newDocWatcher(func() {
		p.mu.Lock()
		if set, ok := p.watchers[ref]; ok {
			delete(set, watcher)
			if len(set) == 0 {
				delete(p.watchers, ref)
			}
		}
		p.mu.Unlock()
	})

	set, ok := p.watchers[ref]
	if !ok {
		set = make(map[*docWatcher]struct{})
		p.watchers[ref] = set
	}
	set[watcher] = struct{}{}
	watcher.Publish(initial)
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			watcher.Close()
		case <-watcher.done:
		}
	}()

	return watcher, nil
}

// listenLoop holds a dedicated pgx connection on LISTEN and fans
// notifications out to watchers. The connection is re-established with
// backoff when it drops; watchers survive the reconnect.
func (p *Postgres) listenLoop(ctx context.Context) {
	defer close(p.listenDone)

	backoff := time.Second
	for ctx.Err() == nil {
		err := p.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Warn().Err(err).Str("func", "Postgres.listenLoop").
				Dur("retry_in", backoff).Msg("notification listener dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (p *Postgres) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err = conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		p.dispatchNotification(ctx, notification.Payload)
	}
}

func (p *Postgres) dispatchNotification(ctx context.Context, payload string) {
	collection, id, ok := strings.Cut(payload, "|")
	if !ok {
		p.log.Warn().Str("payload", payload).Msg("malformed change notification")
		return
	}
	ref := Ref{Collection: collection, ID: id}

	p.mu.Lock()
	hasWatchers := len(p.watchers[ref]) > 0
	p.mu.Unlock()
	if !hasWatchers {
		return
	}

	doc, err := p.Get(ctx, ref)
	if err != nil {
		p.log.Warn().Err(err).Stringer("ref", ref).Msg("failed to load document for notification")
		return
	}

	p.mu.Lock()
	for watcher := range p.watchers[ref] {
		watcher.Publish(doc)
	}
	p.mu.Unlock()
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var watchers []*docWatcher
	for _, set := range p.watchers {
		for w := range set {
			watchers = append(watchers, w)
		}
	}
	p.watchers = make(map[Ref]map[*docWatcher]struct{})
	p.mu.Unlock()

	for _, w := range watchers {
		w.Close()
	}

	p.listenCancel()
	<-p.listenDone
	return p.db.Close()
}
