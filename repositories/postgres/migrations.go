package postgres

import (
	"context"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/app/*.sql migrations/audit/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and table name in package globals
var gooseMu sync.Mutex

const migrationLockTimeout = 45 * time.Second

// migrationSet is one directory of migrations with its own version table
type migrationSet struct {
	dir   string
	table string
}

var (
	appMigrations   = migrationSet{dir: "migrations/app", table: "goose_db_version"}
	auditMigrations = migrationSet{dir: "migrations/audit", table: "goose_audit_db_version"}
)

// migrate applies a migration set while holding a Postgres advisory lock so
// that instances starting together do not race.
func (db *DB) migrate(ctx context.Context, set migrationSet) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx,
		"SELECT pg_advisory_lock(hashtext($1), hashtext($2))", "workdesk", set.table); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx),
			"SELECT pg_advisory_unlock(hashtext($1), hashtext($2))", "workdesk", set.table); err != nil {
			db.logger.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(set.table)
	goose.SetLogger(goose.NopLogger())
	defer func() {
		goose.SetBaseFS(nil)
		goose.SetTableName("goose_db_version")
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, set.dir); err != nil {
		return fmt.Errorf("migrate %s: %w", set.dir, err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("read %s version: %w", set.table, err)
	}
	db.logger.Info("database migrations applied",
		zap.String("set", set.dir),
		zap.Int64("version", version))
	return nil
}
