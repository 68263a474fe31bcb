package db

import (
	"database/sql"
	"fmt"
	"time"

	"vestra-be/internal/config"
	"vestra-be/internal/logger"

	_ "github.com/lib/pq"
)

// Open connects to Postgres, verifies the connection and bounds the pool.
// Reconciliation traffic is bursty (webhook redeliveries, sweep ticks), so
// idle connections are kept short-lived.
func Open(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxIdleTime(5 * time.Minute)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	logger.L().Info("database connection established")
	return pool, nil
}
