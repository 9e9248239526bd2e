package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/garage-relay/internal/actuator"
	"github.com/nerrad567/garage-relay/internal/audit"
	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
	"github.com/nerrad567/garage-relay/internal/user"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			path, err := database.PathFromURL(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("parsing database url: %w", err)
			}
			db, err := database.Open(cmd.Context(), database.Config{
				Path:        path,
				WALMode:     cfg.Database.WALMode,
				BusyTimeout: cfg.Database.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			switch {
			case down:
				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				fmt.Fprintln(out, "rolled back latest migration")
			case !status:
				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
			}

			applied, pending, err := db.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}
			for _, r := range applied {
				fmt.Fprintf(out, "applied  %s\n", r.Version)
			}
			for _, m := range pending {
				fmt.Fprintf(out, "pending  %s %s\n", m.Version, m.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "only report migration status")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}

func newUsersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage access keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Issue an access key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(s *store) error {
				u, err := s.users.Register(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("registering user: %w", err)
				}
				s.record(cmd.Context(), events.Registered(events.SourceCLI, u.Key, u.Name))
				fmt.Fprintln(cmd.OutOrStdout(), u.Key)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List issued access keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), *configPath, func(s *store) error {
				list, err := s.users.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing users: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tNAME\tCREATED")
				for _, u := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Key, u.Name, u.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}

// newPulseCmd pulses the relay once from the command line, for wiring checks.
// It must not run alongside serve: the line can only be claimed once.
func newPulseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pulse",
		Short: "Pulse the relay once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), *configPath, func(s *store) error {
				act, err := actuator.New(s.cfg.GPIO)
				if err != nil {
					return fmt.Errorf("creating actuator: %w", err)
				}
				defer act.Close()

				plan := act.Plan()
				start := time.Now()
				err = act.Pulse(context.WithoutCancel(cmd.Context()))
				took := time.Since(start)
				s.record(cmd.Context(), events.Toggled(events.SourceCLI, "", plan.Pin, plan.Hold, took, err))
				if err != nil {
					return fmt.Errorf("pulsing relay: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "pulsed %s via %s in %s\n", plan, act.Name(), took.Round(time.Millisecond))
				return nil
			})
		},
	}
}

// store bundles what the one-shot commands need.
type store struct {
	cfg   *config.Config
	log   *logging.Logger
	users *user.SQLiteRepository
	audit *events.AuditSink
}

// record writes e to the audit log synchronously; a failure is only logged.
func (s *store) record(ctx context.Context, e events.Event) {
	if err := s.audit.Handle(ctx, e); err != nil {
		s.log.Warn("audit write failed", "type", e.Type, "error", err)
	}
}

func withStore(ctx context.Context, configPath string, fn func(*store) error) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(&store{
		cfg:   cfg,
		log:   log,
		users: user.NewSQLiteRepository(db.DB),
		audit: events.NewAuditSink(audit.NewSQLiteRepository(db.DB)),
	})
}
