package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fractal-lba/quantcore/internal/dedup"
)

// storeCmd manages the configured result store
func storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the result store",
	}
	cmd.AddCommand(storeMigrateCmd())
	cmd.AddCommand(storeStatsCmd())
	cmd.AddCommand(storeCleanupCmd())
	return cmd
}

func openStore(cmd *cobra.Command) (dedup.Store, dedup.Options, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, dedup.Options{}, err
	}
	opts := cfg.Store.DedupOptions()
	store, err := dedup.Open(cmd.Context(), opts)
	if err != nil {
		return nil, opts, fmt.Errorf("failed to open %s store: %w", opts.Backend, err)
	}
	return store, opts, nil
}

// storeMigrateCmd creates the Postgres schema
func storeMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the result table and index (postgres backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, opts, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			pg, ok := store.(*dedup.PostgresStore)
			if !ok {
				fmt.Printf("Backend %q needs no schema\n", opts.Backend)
				return nil
			}
			if err := pg.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}

// storeStatsCmd reports the number of stored results
func storeStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many results the store holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, opts, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			stats := map[string]any{"backend": opts.Backend}
			switch s := store.(type) {
			case *dedup.PostgresStore:
				n, err := s.Count(cmd.Context())
				if err != nil {
					return err
				}
				stats["live_entries"] = n
			case *dedup.MemoryStore:
				stats["entries"] = s.Len()
				stats["snapshot"] = opts.SnapshotPath
			case *dedup.ShardedStore:
				var names []string
				for _, shard := range s.Ring().Shards() {
					names = append(names, shard.Name)
				}
				stats["shards"] = names
			default:
				stats["entries"] = "unavailable"
			}
			return printResult(stats)
		},
	}
}

// storeCleanupCmd removes expired rows
func storeCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired results (postgres backend; redis and memory expire on their own)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, opts, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			pg, ok := store.(*dedup.PostgresStore)
			if !ok {
				fmt.Printf("Backend %q expires entries itself; nothing to do\n", opts.Backend)
				return nil
			}
			n, err := pg.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired results\n", n)
			return nil
		},
	}
}
