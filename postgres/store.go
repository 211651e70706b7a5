package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/sqlrow"
)

// Executor runs statements on a *sql.DB or *sql.Tx.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements mailqueue.Store on a PostgreSQL table.
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

// NewStore constructs a PostgreSQL store with validated configuration.
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

// Insert stores the record, generating an id when it is zero.
func (s *Store) Insert(ctx context.Context, record mailqueue.Record) (mailqueue.ID, error) {
	return s.InsertWith(ctx, s.db, record)
}

// InsertWith stores the record through exec so an email can be queued inside the caller's transaction.
func (s *Store) InsertWith(ctx context.Context, exec Executor, record mailqueue.Record) (mailqueue.ID, error) {
	if record.ID.IsZero() {
		id, err := s.cfg.Generator.New()
		if err != nil {
			return mailqueue.ID{}, fmt.Errorf("mailqueue postgres: generate id failed: %w", err)
		}
		record.ID = id
	}

	args, err := sqlrow.Args(record)
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue postgres: %w", err)
	}
	// lib/pq binds []byte as bytea, the uuid column takes the text form.
	args[0] = record.ID.String()
	if _, err := exec.ExecContext(ctx, s.queries.insert, args...); err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue postgres: insert failed: %w", err)
	}

	return record.ID, nil
}

// Get returns the record or mailqueue.ErrNotFound.
func (s *Store) Get(ctx context.Context, id mailqueue.ID) (mailqueue.Record, error) {
	rec, err := sqlrow.Scan(s.db.QueryRowContext(ctx, s.queries.get, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return mailqueue.Record{}, mailqueue.ErrNotFound
	}
	if err != nil {
		return mailqueue.Record{}, fmt.Errorf("mailqueue postgres: get failed: %w", err)
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
	args = append(args, id.String())
	args = append(args, sqlrow.StatusArgs(from)...)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mailqueue postgres: transition failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mailqueue postgres: rows affected failed: %w", err)
	}

	return affected == 1, nil
}

// ReclaimStale moves every SENDING row whose attempt started at or before before to DELAYED.
// The returned ids are in no particular order.
func (s *Store) ReclaimStale(ctx context.Context, before, now time.Time) ([]mailqueue.ID, error) {
	return s.queryIDs(ctx, s.queries.reclaim,
		string(mailqueue.StatusDelayed),
		now.UTC(),
		string(mailqueue.StatusSending),
		before.UTC(),
	)
}

// FindEligible returns dispatchable ids in dispatch order.
func (s *Store) FindEligible(ctx context.Context, query mailqueue.EligibleQuery) ([]mailqueue.ID, error) {
	if query.Limit < 0 {
		return nil, mailqueue.ErrInvalidBatchSize
	}

	stmt := s.queries.findEligible
	args := eligibleArgs(query)
	if query.Limit > 0 {
		args = append(args, query.Limit)
		stmt += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryIDs(ctx, stmt, args...)
}

// PendingCount returns the number of eligible rows, ignoring the limit.
func (s *Store) PendingCount(ctx context.Context, query mailqueue.EligibleQuery) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending, eligibleArgs(query)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("mailqueue postgres: pending count failed: %w", err)
	}

	return count, nil
}

func eligibleArgs(query mailqueue.EligibleQuery) []any {
	args := sqlrow.StatusArgs(mailqueue.Excluded())

	return append(args, query.Retry, query.Now.UTC())
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]mailqueue.ID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mailqueue postgres: select failed: %w", err)
	}
	defer rows.Close()

	var ids []mailqueue.ID
	for rows.Next() {
		var id mailqueue.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("mailqueue postgres: scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mailqueue postgres: rows failed: %w", err)
	}

	return ids, nil
}
