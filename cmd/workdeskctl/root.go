package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/workdesk/config"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/repositories/postgres"
	"github.com/upb/workdesk/services/audit"
	"github.com/upb/workdesk/services/roles"
	"go.uber.org/zap"
)

type options struct {
	static   bool
	logLevel string
}

// RootCmd builds the workdeskctl command tree
func RootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "workdeskctl",
		Short:         "Inspect and edit the workdesk role permission table",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&opts.static, "static", false, "use the built-in role table instead of the database")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		migrateCmd(opts),
		rolesCmd(opts),
		checkCmd(opts),
		resolveCmd(opts),
	)
	return root
}

// backend is the slice of the service graph the commands need
type backend struct {
	logger   *zap.Logger
	resolver *access.Resolver
	roles    *roles.Service
	factory  *postgres.RepositoryFactory
	audit    *audit.AuditService
}

func (o *options) logger() (*zap.Logger, error) {
	return observability.NewLogger(o.logLevel, "console")
}

// open loads the role table, either the built-in one or the stored one
func (o *options) open(ctx context.Context) (*backend, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}

	resolver, err := access.NewResolver(access.DefaultTable(), access.UnknownRoleDeny, logger)
	if err != nil {
		return nil, err
	}
	b := &backend{logger: logger, resolver: resolver}

	if o.static {
		b.roles = roles.NewService(roles.Config{Resolver: resolver, Logger: logger})
		return b, b.roles.Load(ctx)
	}

	cfg, err := config.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	b.factory = factory

	repos := factory.NewRepositories()
	b.audit = audit.NewAuditService(repos.AuditLogs, logger, audit.DefaultConfig())
	if err := b.audit.Start(); err != nil {
		b.close()
		return nil, err
	}

	b.roles = roles.NewService(roles.Config{
		Repo:      repos.RolePermissions,
		TxManager: factory.GetTransactionManager(),
		Resolver:  resolver,
		Auditor:   b.audit,
		Logger:    logger,
		Persisted: true,
	})
	if err := b.roles.Load(ctx); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

func (b *backend) close() {
	if b.audit != nil && b.audit.GetStats().Started {
		if err := b.audit.Stop(auditFlushTimeout); err != nil {
			b.logger.Warn("failed to flush audit events", zap.Error(err))
		}
	}
	if b.factory != nil {
		_ = b.factory.Close()
	}
	_ = b.logger.Sync()
}
