// Package storage implements C2: the Unit of Work and its aggregate-scoped
// repositories. Every write is routed through a UnitOfWork; no component
// bypasses it. Reads outside a UoW go through the read-side accessors in
// readside.go, which share the same *sql.DB but never buffer writes.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens a Postgres connection pool, retrying with a fixed backoff
// the way the teacher's database/connect/postgres.go does, and pings it
// before returning.
func Connect(ctx context.Context, log *zap.Logger, databaseURL string) (*sql.DB, error) {
	const maxRetries = 5
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Info("connecting to database", zap.Int("attempt", attempt))
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			log.Error("failed to open database", zap.Error(err))
			time.Sleep(3 * time.Second)
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			db.SetMaxOpenConns(20)
			db.SetMaxIdleConns(10)
			db.SetConnMaxLifetime(30 * time.Minute)
			log.Info("database connection established")
			return db, nil
		}

		log.Error("database ping failed", zap.Error(err))
		_ = db.Close()
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to database after %d retries: %w", maxRetries, err)
}
