package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/hub"
	"github.com/kozaktomas/faceguard/internal/resolver"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/storage/postgres"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
	"github.com/kozaktomas/faceguard/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the alerting service",
	Long: `Start the FaceGuard service: the HTTP API, the recognition webhook, the
alert decision engine, and the realtime dashboard endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides FACEGUARD_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides FACEGUARD_HOST)")
}

// openIndex creates the in-memory index, loading the snapshot pair when one
// exists. An unusable snapshot logs a warning and starts empty; embeddings
// are re-ingested from the cache afterwards.
func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) *vectorindex.Index {
	ix := vectorindex.New(cfg.Index.Dim, cfg.Index.HNSWMinSize)
	path := cfg.Index.SnapshotPath
	if path == "" || !vectorindex.SnapshotExists(path) {
		return ix
	}

	if err := ix.Load(ctx, path); err != nil {
		logger.Warn("index snapshot unusable, starting empty", "path", path, "error", err)
		return vectorindex.New(cfg.Index.Dim, cfg.Index.HNSWMinSize)
	}
	logger.Info("index snapshot loaded", "path", path, "vectors", ix.Size())
	return ix
}

// openStorage picks PostgreSQL when DATABASE_URL is set, in-memory otherwise.
// The returned pool is nil for the in-memory case.
func openStorage(ctx context.Context, cfg *config.Config) (storage.InstanceStore, storage.EmbeddingCache, *postgres.Pool, error) {
	if cfg.Database.URL == "" {
		mem := storage.NewMemoryStore()
		return mem, mem, nil, nil
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return postgres.NewInstanceRepository(pool), postgres.NewEmbeddingCacheRepository(pool), pool, nil
}

// reingestEmbeddings rebuilds the index content from the embedding cache when
// the index came up empty. Records are replayed in insertion order so
// positions match what the cache saw originally.
func reingestEmbeddings(ctx context.Context, ix *vectorindex.Index, cache storage.EmbeddingCache, logger *slog.Logger) {
	records, err := cache.All(ctx)
	if err != nil {
		logger.Warn("embedding cache read failed, index stays empty", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	inactivePersons := make(map[string]bool)
	added := 0
	for _, record := range records {
		if _, err := ix.Add(record.OwnerPersonID, record.EmbeddingID, record.Vector); err != nil {
			logger.Warn("skipping cached embedding",
				"embedding_id", record.EmbeddingID, "error", err)
			continue
		}
		added++
		if !record.Active {
			inactivePersons[record.OwnerPersonID] = true
		}
	}
	for personID := range inactivePersons {
		ix.DeactivatePerson(personID)
	}

	logger.Info("index re-ingested from embedding cache",
		"embeddings", added, "deactivated_persons", len(inactivePersons))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}

	logger, closeLog := config.SetupLogger(cfg.Log.File, config.ParseLogLevel(cfg.Log.Level))
	defer closeLog()

	if cfg.CoreData.URL == "" {
		return errors.New("COREDATA_URL environment variable is required")
	}

	ctx := context.Background()
	ix := openIndex(ctx, cfg, logger)

	store, cache, pool, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		logger.Info("using PostgreSQL storage")
	} else {
		logger.Info("DATABASE_URL not set, using in-memory storage")
	}

	if ix.Size() == 0 {
		reingestEmbeddings(ctx, ix, cache, logger)
	}

	client, err := coredata.New(cfg.CoreData.URL, coredata.Options{
		Timeout:    cfg.CoreData.Timeout,
		MaxRetries: cfg.CoreData.MaxRetries,
		RetryDelay: cfg.CoreData.RetryDelay,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating record store client: %w", err)
	}
	defer client.Close()

	h := hub.New(5*time.Second, logger)
	dispatcher := alerting.NewDispatcher([]alerting.Sender{
		hub.NewDashboardSender(h, cfg.HintsFor),
		alerting.NewLogSender("email", logger),
		alerting.NewLogSender("sms", logger),
		alerting.NewLogSender("webhook", logger),
	}, client, logger)

	engine := alerting.NewEngine(client, store, dispatcher, hub.NewStatusNotifier(h), cfg.Alerting, logger)
	res := resolver.New(ix, cfg.Alerting.SearchK)

	server := web.NewServer(cfg, web.Dependencies{
		Index:    ix,
		Resolver: res,
		Engine:   engine,
		Hub:      h,
		Store:    store,
		Cache:    cache,
		CoreData: client,
		Logger:   logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go engine.Run(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()

		if cfg.Index.SnapshotPath != "" {
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := ix.Save(saveCtx, cfg.Index.SnapshotPath); err != nil {
				logger.Error("saving index snapshot on shutdown", "error", err)
			} else {
				logger.Info("index snapshot saved", "path", cfg.Index.SnapshotPath)
			}
			saveCancel()
		}
		h.CloseAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	logger.Info("faceguard starting",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"dim", cfg.Index.Dim,
		"vectors", ix.Size(),
	)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
