package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sethvargo/go-retry"
	"github.com/upb/workdesk/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection, retrying while the database comes up
	backoff := retry.WithMaxRetries(uint64(cfg.ConnectRetries), retry.NewExponential(500*time.Millisecond))
	err = retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("database not reachable yet", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// InitSchema applies the application migrations and, when audit logs share
// this database, the audit migrations.
func (db *DB) InitSchema(ctx context.Context, withAudit bool) error {
	if err := db.migrate(ctx, appMigrations); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if withAudit {
		return db.InitAuditSchema(ctx)
	}
	return nil
}

// InitAuditSchema applies the audit_logs migrations. The audit table carries
// no foreign keys so it can live in a separate database (DATABASE_URL_AUDIT).
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if err := db.migrate(ctx, auditMigrations); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}
