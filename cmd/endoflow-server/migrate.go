package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/endoflow/endoflow/internal/platform/db"
	"github.com/endoflow/endoflow/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run tooth chart migrations for a clinic schema",
	}
	cmd.PersistentFlags().String("clinic", "", "Clinic identifier (defaults to DEFAULT_CLINIC)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Create the clinic schema if needed and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			clinicID := clinicFlag(cmd, cfg.DefaultClinic)
			schema, err := db.ClinicSchema(clinicID)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			if err := db.CreateClinicSchema(ctx, pool, clinicID, migrator); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status for a clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			schema, err := db.ClinicSchema(clinicFlag(cmd, cfg.DefaultClinic))
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			writeStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	})

	return cmd
}

func clinicFlag(cmd *cobra.Command, fallback string) string {
	if v, _ := cmd.Flags().GetString("clinic"); v != "" {
		return v
	}
	return fallback
}

// migrationSource prefers an on-disk directory so operators can ship
// migrations without rebuilding; otherwise the embedded set is used.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func writeStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
