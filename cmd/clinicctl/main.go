package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/civil"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operator tooling for the clinic booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withPostgres loads config, connects, and hands the pool to fn.
func withPostgres(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool, logger)
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	return withPostgres(cmd, func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
		m, err := db.NewMigrator(pool, logger)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(ctx, m)
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				return m.Up(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				return m.Down(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				if err := m.Status(ctx); err != nil {
					return err
				}
				version, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	opts := seed.DefaultOptions()
	var startDate string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with fake doctors, patients and open slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if startDate != "" {
				d, err := civil.ParseDate(startDate)
				if err != nil {
					return err
				}
				opts.StartDate = d
			}

			return withPostgres(cmd, func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
				res, err := seed.Run(ctx, appointment.NewPgRepository(pool), opts, logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d doctors, %d patients, %d slots\n",
					len(res.Doctors), len(res.Patients), res.Slots)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.Doctors, "doctors", opts.Doctors, "Number of doctors")
	cmd.Flags().IntVar(&opts.Patients, "patients", opts.Patients, "Number of patients")
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "Days of availability per doctor")
	cmd.Flags().IntVar(&opts.SlotMinutes, "slot-minutes", opts.SlotMinutes, "Length of each slot")
	cmd.Flags().StringVar(&startDate, "start-date", "", "First day of availability (YYYY-MM-DD, default today UTC)")

	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		id   string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			actorID := uuid.Nil
			if id != "" {
				if actorID, err = uuid.Parse(id); err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
			}
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			if actorID == uuid.Nil && r != auth.RoleAdmin {
				return fmt.Errorf("--id is required for %s tokens", r)
			}
			if actorID == uuid.Nil {
				actorID = uuid.New()
			}

			token, err := auth.NewTokenVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer).
				Issue(auth.Actor{ID: actorID, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Patient or doctor id (admins get a random id)")
	cmd.Flags().StringVar(&role, "role", string(auth.RolePatient), "PATIENT, DOCTOR or ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
