package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/upb/workdesk/config"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/repositories/postgres"
)

const auditFlushTimeout = 5 * time.Second

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.static {
				return fmt.Errorf("migrate needs a database, drop --static")
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.New(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			factory, err := postgres.NewRepositoryFactory(cfg, logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			if err := factory.InitSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func rolesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Show or edit the role permission table",
	}
	cmd.AddCommand(rolesListCmd(opts), rolesSetCmd(opts), rolesHistoryCmd(opts))
	return cmd
}

func rolesListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every role with its permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			table := b.roles.Table(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "table version %d\n", table.Version)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tCOUNT\tPERMISSIONS")
			for _, role := range access.Roles() {
				perms, err := b.resolver.PermissionsFor(role)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", role, perms.Len(), strings.Join(perms.Strings(), ", "))
			}
			return tw.Flush()
		},
	}
}

func rolesSetCmd(opts *options) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "set <role> <permission>...",
		Short: "Replace the permissions of one role",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			// the CLI acts with admin rights on behalf of the operator
			sess, err := access.NewSession(uuid.New(), access.Identity{
				Subject: "workdeskctl",
				Email:   actor,
				Name:    "workdeskctl",
			}, access.RoleAdmin)
			if err != nil {
				return err
			}

			table, err := b.roles.UpdateRolePermissions(cmd.Context(), sess, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated, table version %d\n", args[0], table.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "operator email recorded in the audit log")
	return cmd
}

func rolesHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent role table changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			versions, err := b.roles.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tROLE\tCHANGED BY\tCHANGED AT")
			for _, v := range versions {
				changedBy := "-"
				if v.ChangedBy != nil {
					changedBy = v.ChangedBy.String()
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.Version, v.Role, changedBy, v.ChangedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of changes to show")
	return cmd
}

func checkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <role> <permission>",
		Short: "Report whether a role holds a permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := access.ParseRole(args[0])
			if err != nil {
				return err
			}

			b, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			decision := "deny"
			if p, ok := access.ParsePermission(args[1]); ok && b.resolver.HasPermission(role, p) {
				decision = "allow"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", decision, role, args[1])
			return nil
		},
	}
}

func resolveCmd(opts *options) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "resolve <label>",
		Short: "Map an identity provider role label to a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			p := access.UnknownRolePolicy(policy)
			if !p.Valid() {
				return fmt.Errorf("policy must be %q or %q", access.UnknownRoleDeny, access.UnknownRoleEmployee)
			}
			resolver, err := access.NewResolver(access.DefaultTable(), p, logger)
			if err != nil {
				return err
			}

			role, err := resolver.ResolveRole(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q -> %s\n", args[0], role)
			return nil
		},
	}
	cmd.Flags().StringVar(&policy, "policy", string(access.UnknownRoleDeny), "handling of unknown labels (deny, employee)")
	return cmd
}
