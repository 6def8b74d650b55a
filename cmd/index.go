package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/storage/postgres"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and rebuild the vector index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print statistics for the persisted index snapshot",
	RunE:  runIndexStats,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index snapshot from the embedding cache",
	Long: `Rebuild the index snapshot by replaying every embedding from the
PostgreSQL embedding cache in insertion order, then writing a fresh
snapshot pair. Requires DATABASE_URL and FACEGUARD_INDEX_SNAPSHOT_PATH.`,
	RunE: runIndexRebuild,
}

var indexSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Verify that the snapshot pair loads cleanly",
	RunE:  runIndexSnapshot,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexSnapshotCmd)

	indexStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

// loadSnapshotIndex loads the configured snapshot pair into a fresh index.
func loadSnapshotIndex(ctx context.Context, cfg *config.Config) (*vectorindex.Index, error) {
	path := cfg.Index.SnapshotPath
	if path == "" {
		return nil, errors.New("FACEGUARD_INDEX_SNAPSHOT_PATH environment variable is required")
	}
	if !vectorindex.SnapshotExists(path) {
		return nil, fmt.Errorf("no snapshot found at %s", path)
	}

	ix := vectorindex.New(cfg.Index.Dim, cfg.Index.HNSWMinSize)
	if err := ix.Load(ctx, path); err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return ix, nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ix, err := loadSnapshotIndex(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	stats := ix.Stats()

	if mustGetBool(cmd, "json") {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	fmt.Printf("Index snapshot: %s\n", cfg.Index.SnapshotPath)
	fmt.Printf("  Dimension:      %d\n", stats.Dim)
	fmt.Printf("  Total vectors:  %d\n", stats.Size)
	fmt.Printf("  Active vectors: %d\n", stats.ActiveSize)
	fmt.Printf("  Unique persons: %d\n", stats.UniquePersons)
	return nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Index.SnapshotPath == "" {
		return errors.New("FACEGUARD_INDEX_SNAPSHOT_PATH environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer pool.Close()

	cache := postgres.NewEmbeddingCacheRepository(pool)
	records, err := cache.All(ctx)
	if err != nil {
		return fmt.Errorf("reading embedding cache: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Embedding cache is empty, nothing to rebuild")
		return nil
	}

	fmt.Printf("Rebuilding index from %d cached embeddings\n", len(records))
	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Ingesting embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("embeddings"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ix := vectorindex.New(cfg.Index.Dim, cfg.Index.HNSWMinSize)
	inactivePersons := make(map[string]bool)
	skipped := 0
	for _, record := range records {
		if _, err := ix.Add(record.OwnerPersonID, record.EmbeddingID, record.Vector); err != nil {
			skipped++
			_ = bar.Add(1)
			continue
		}
		if !record.Active {
			inactivePersons[record.OwnerPersonID] = true
		}
		_ = bar.Add(1)
	}
	for personID := range inactivePersons {
		ix.DeactivatePerson(personID)
	}
	fmt.Println()

	if err := ix.Save(ctx, cfg.Index.SnapshotPath); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	fmt.Printf("Snapshot written to %s (%d vectors, %d active", cfg.Index.SnapshotPath, ix.Size(), ix.ActiveSize())
	if skipped > 0 {
		fmt.Printf(", %d skipped", skipped)
	}
	fmt.Println(")")
	return nil
}

func runIndexSnapshot(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ix, err := loadSnapshotIndex(cmd.Context(), cfg)
	if err != nil {
		if errors.Is(err, vectorindex.ErrCorruptIndex) {
			return fmt.Errorf("snapshot at %s is corrupt: %w", cfg.Index.SnapshotPath, err)
		}
		return err
	}

	fmt.Printf("Snapshot OK: %d vectors (%d active) at dimension %d\n",
		ix.Size(), ix.ActiveSize(), ix.Dim())
	return nil
}
