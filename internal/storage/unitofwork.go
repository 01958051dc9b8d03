package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// UnitOfWork is a scoped acquisition of a database transaction with
// guaranteed release: commit on successful exit, rollback on failure or
// panic. It exposes the three aggregate-scoped repositories from
// spec.md §4.2.
type UnitOfWork struct {
	tx        *sql.Tx
	Campaigns *CampaignRepository
	Tasks     *TaskRepository
	Places    *PlaceRepository
}

func newUnitOfWork(tx *sql.Tx, log *zap.Logger) *UnitOfWork {
	return &UnitOfWork{
		tx:        tx,
		Campaigns: &CampaignRepository{tx: tx, log: log},
		Tasks:     &TaskRepository{tx: tx, log: log},
		Places:    &PlaceRepository{tx: tx, log: log},
	}
}

// Store owns the database pool and mints UnitOfWork instances. It is the
// only component that ever calls BeginTx/Commit/Rollback directly.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// NewStore wraps an open *sql.DB. A single Store instance is created once
// at startup and injected into every component that needs durable storage.
func NewStore(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// WithUnitOfWork runs fn inside a fresh transaction. fn's error (or a
// panic) rolls the transaction back; a nil return commits it. The queue
// hands workers task identifiers only — callers open a fresh UnitOfWork
// per task via this method, so storage footprint never grows with queue
// depth.
func (s *Store) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	uow := newUnitOfWork(tx, s.log)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	err = fn(ctx, uow)
	return err
}

// Health pings the underlying connection pool, used by the HTTP /healthz
// endpoint.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the raw pool for read-side services (spec.md §4.2: "Reads
// outside a UoW are permitted only via dedicated read-side services that
// still share the same storage but do not buffer writes").
func (s *Store) DB() *sql.DB { return s.db }
