// Package store persists the game aggregates in SQLite.
//
// Aggregates with list and map fields (players, NPCs, quests, events) are
// stored as a JSON document next to the columns used for lookups, so every
// save writes the whole aggregate.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the durable entity store. Its query methods come from the
// embedded Queries; WithTx hands out Queries bound to a transaction.
type Store struct {
	*Queries
	db     *sqlx.DB
	locks  *Locks
	logger *slog.Logger
}

// Queries runs statements against the database or an open transaction.
type Queries struct {
	q sqlx.ExtContext
}

// Open opens the SQLite database named by dsn and applies migrations.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection: writes are serialized and in-memory databases stay shared
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", p, err)
		}
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("store opened", "dsn", dsn)
	return &Store{Queries: &Queries{q: db}, db: db, locks: NewLocks(), logger: logger}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Locks returns the per-entity write locks.
func (s *Store) Locks() *Locks {
	return s.locks
}

// WithTx runs fn in a transaction. Any error from fn, or a cancelled ctx,
// rolls back every write made through the Queries it received. fn must not
// use the Store's own query methods while it runs.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&Queries{q: tx}); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type docRow struct {
	ID   int64  `db:"id"`
	Data string `db:"data"`
}

func decodeDoc[T any](row docRow, setID func(*T, int64)) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(row.Data), &v); err != nil {
		return nil, fmt.Errorf("decode row %d: %w", row.ID, err)
	}
	if setID != nil {
		setID(&v, row.ID)
	}
	return &v, nil
}

func (q *Queries) getDoc(ctx context.Context, query string, args ...any) (docRow, error) {
	var row docRow
	err := sqlx.GetContext(ctx, q.q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return row, ErrNotFound
	}
	return row, err
}

func (q *Queries) selectDocs(ctx context.Context, query string, args ...any) ([]docRow, error) {
	var rows []docRow
	if err := sqlx.SelectContext(ctx, q.q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

func asConflict(err error) error {
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return asConflict(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlxIn(query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.QUESTION, query), args, nil
}

func getContext(ctx context.Context, q *Queries, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q.q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func selectContext(ctx context.Context, q *Queries, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.q, dest, query, args...)
}

func namedExec(ctx context.Context, q *Queries, query string, arg any) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, q.q, query, arg)
}
