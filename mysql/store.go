package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/sqlrow"
)

const placeholderGrowth = 2

// Executor runs statements on a *sql.DB or *sql.Tx.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements mailqueue.Store on a MySQL table.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ mailqueue.Store          = (*Store)(nil)
	_ mailqueue.PendingCounter = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Insert stores the record, generating an id when it is zero.
func (s *Store) Insert(ctx context.Context, record mailqueue.Record) (mailqueue.ID, error) {
	return s.InsertWith(ctx, s.db, record)
}

// InsertWith stores the record through exec, so callers can queue an email inside their own transaction.
func (s *Store) InsertWith(ctx context.Context, exec Executor, record mailqueue.Record) (mailqueue.ID, error) {
	if record.ID.IsZero() {
		id, err := s.cfg.Generator.New()
		if err != nil {
			return mailqueue.ID{}, fmt.Errorf("mailqueue mysql: generate id failed: %w", err)
		}
		record.ID = id
	}

	args, err := sqlrow.Args(record)
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue mysql: %w", err)
	}
	if _, err := exec.ExecContext(ctx, s.queries.insert, args...); err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue mysql: insert failed: %w", err)
	}

	return record.ID, nil
}

// Get returns the record or mailqueue.ErrNotFound.
func (s *Store) Get(ctx context.Context, id mailqueue.ID) (mailqueue.Record, error) {
	rec, err := sqlrow.Scan(s.db.QueryRowContext(ctx, s.queries.get, id))
	if errors.Is(err, sql.ErrNoRows) {
		return mailqueue.Record{}, mailqueue.ErrNotFound
	}
	if err != nil {
		return mailqueue.Record{}, fmt.Errorf("mailqueue mysql: get failed: %w", err)
	}

	return rec, nil
}

// Transition applies patch with a single UPDATE guarded by status IN (from).
func (s *Store) Transition(ctx context.Context, id mailqueue.ID, from []mailqueue.Status, patch mailqueue.Patch) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	query, args, err := buildTransition(s.table, patch, len(from))
	if err != nil {
		return false, err
	}
	args = append(args, id)
	args = append(args, sqlrow.StatusArgs(from)...)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mailqueue mysql: transition failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mailqueue mysql: rows affected failed: %w", err)
	}

	return affected == 1, nil
}

// ReclaimStale locks the stuck SENDING rows using READ COMMITTED and moves them to DELAYED.
func (s *Store) ReclaimStale(ctx context.Context, before, now time.Time) ([]mailqueue.ID, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("mailqueue mysql: begin tx failed: %w", err)
	}

	ids, err := s.reclaim(ctx, tx, before, now)
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(err, rollbackErr)
	}
	if len(ids) == 0 {
		_ = tx.Rollback()

		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mailqueue mysql: commit failed: %w", err)
	}

	return ids, nil
}

func (s *Store) reclaim(ctx context.Context, tx *sql.Tx, before, now time.Time) ([]mailqueue.ID, error) {
	ids, err := queryIDs(ctx, tx, s.queries.selectStale, string(mailqueue.StatusSending), before.UTC())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, string(mailqueue.StatusDelayed), now.UTC(), string(mailqueue.StatusSending))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx, buildReclaim(s.table, len(ids)), args...); err != nil {
		return nil, fmt.Errorf("mailqueue mysql: reclaim update failed: %w", err)
	}

	return ids, nil
}

// FindEligible returns dispatchable ids in dispatch order.
func (s *Store) FindEligible(ctx context.Context, query mailqueue.EligibleQuery) ([]mailqueue.ID, error) {
	if query.Limit < 0 {
		return nil, mailqueue.ErrInvalidBatchSize
	}

	stmt := s.queries.findEligible
	args := eligibleArgs(query)
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	return queryIDs(ctx, s.db, stmt, args...)
}

// PendingCount returns the number of eligible rows, ignoring the limit.
func (s *Store) PendingCount(ctx context.Context, query mailqueue.EligibleQuery) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending, eligibleArgs(query)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("mailqueue mysql: pending count failed: %w", err)
	}

	return count, nil
}

func eligibleArgs(query mailqueue.EligibleQuery) []any {
	args := sqlrow.StatusArgs(mailqueue.Excluded())

	return append(args, query.Retry, query.Now.UTC())
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]mailqueue.ID, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mailqueue mysql: select failed: %w", err)
	}
	defer rows.Close()

	var ids []mailqueue.ID
	for rows.Next() {
		var id mailqueue.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("mailqueue mysql: scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mailqueue mysql: rows failed: %w", err)
	}

	return ids, nil
}
