package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/rl"
	"github.com/ehr/triage/migrations"
)

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func newMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), error) {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationFiles(dir), schema), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("schema", "public", "Target schema for migrations")
	cmd.PersistentFlags().String("dir", "", "Read migrations from this directory instead of the embedded set")

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, done, err := newMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			schema, _ := cmd.Flags().GetString("schema")
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, done, err := newMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			schema, _ := cmd.Flags().GetString("schema")
			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openStore(ctx context.Context) (rl.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	backends, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := qtableStore(cfg, backends)
	if err != nil {
		backends.Close()
		return nil, nil, err
	}
	return store, backends.Close, nil
}

func qtableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qtable",
		Short: "Inspect or reset the persisted Q-table",
	}

	// qtable show
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted Q-table",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := context.Background()
			store, done, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer done()

			table, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("load q-table: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			}

			states := make([]string, 0, len(table))
			for s := range table {
				states = append(states, s)
			}
			sort.Strings(states)

			fmt.Printf("%-32s", "STATE")
			for _, a := range rl.Actions {
				fmt.Printf(" %10s", a)
			}
			fmt.Println()
			for _, s := range states {
				fmt.Printf("%-32s", s)
				for _, a := range rl.Actions {
					fmt.Printf(" %10.3f", table[s][string(a)])
				}
				fmt.Println()
			}
			fmt.Printf("%d state(s)\n", len(states))
			return nil
		},
	}
	showCmd.Flags().Bool("json", false, "Print the raw table as JSON")
	cmd.AddCommand(showCmd)

	// qtable reset
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the persisted Q-table with an empty one",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}

			ctx := context.Background()
			store, done, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer done()

			if err := store.Save(ctx, rl.Table{}); err != nil {
				return fmt.Errorf("reset q-table: %w", err)
			}
			fmt.Println("Q-table reset.")
			return nil
		},
	}
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
	cmd.AddCommand(resetCmd)

	return cmd
}
