package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docuchat/ingest/config"
	"github.com/docuchat/ingest/internal/blob"
	"github.com/docuchat/ingest/internal/chunker"
	"github.com/docuchat/ingest/internal/convert"
	"github.com/docuchat/ingest/internal/db"
	"github.com/docuchat/ingest/internal/embeddings"
	"github.com/docuchat/ingest/internal/indexer"
	"github.com/docuchat/ingest/internal/tracing"
	"github.com/docuchat/ingest/internal/worker"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to yaml config file")
		migrateFlag   = flag.Bool("migrate", false, "Apply database migrations and exit")
		migrationsDir = flag.String("migrations", "migrations", "Directory containing *.up.sql files")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(*configPath, *migrateFlag, *migrationsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool, migrationsDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.New(cfg.Database.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if migrate {
		if err := database.Migrate(context.Background(), migrationsDir); err != nil {
			return err
		}
		slog.Info("migrations applied")
		return nil
	}

	shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	blobStore, err := blob.New(
		cfg.ObjectStore.Endpoint,
		cfg.ObjectStore.AccessKey,
		cfg.ObjectStore.SecretKey,
		cfg.ObjectStore.Bucket,
		cfg.ObjectStore.UseSSL,
	)
	if err != nil {
		return fmt.Errorf("failed to connect to object store: %w", err)
	}

	chunks, err := chunker.New(cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	if err != nil {
		return err
	}
	gotenberg := convert.NewGotenberg(cfg.Gotenberg.BaseURL, cfg.Gotenberg.Timeout.Std())
	embedder := embeddings.NewTextEmbedder(cfg.Embeddings.BaseURL, cfg.Embeddings.Model, cfg.Embeddings.Timeout.Std())

	converter := convert.NewConverter(claimForConversion(database), blobStore, gotenberg)
	indexWorker := indexer.NewIndexer(claimForIndexing(database), blobStore, chunks, embedder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	converterPool := worker.NewPool("converter", converter.PollOnce, cfg.Workers.PollInterval.Std(), cfg.Workers.CrashBackoff.Std())
	indexerPool := worker.NewPool("indexer", indexWorker.PollOnce, cfg.Workers.PollInterval.Std(), cfg.Workers.CrashBackoff.Std())

	converterPool.Start(ctx, cfg.Workers.ConverterThreads)
	indexerPool.Start(ctx, cfg.Workers.IndexerThreads)
	slog.Info("ingest daemon running",
		"converter_threads", cfg.Workers.ConverterThreads,
		"indexer_threads", cfg.Workers.IndexerThreads,
	)

	<-ctx.Done()
	slog.Info("shutting down")
	converterPool.Stop()
	indexerPool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("failed to flush traces", "err", err)
	}
	return nil
}

// The db package returns concrete claims; the worker packages consume
// claim interfaces. These adapters also keep a nil *db.Claim from
// turning into a non-nil interface value.
func claimForConversion(database *db.DB) convert.ClaimFunc {
	return func(ctx context.Context) (convert.Claim, error) {
		claim, err := database.ClaimNextForConversion(ctx)
		if claim == nil || err != nil {
			return nil, err
		}
		return claim, nil
	}
}

func claimForIndexing(database *db.DB) indexer.ClaimFunc {
	return func(ctx context.Context) (indexer.Claim, error) {
		claim, err := database.ClaimNextForIndexing(ctx)
		if claim == nil || err != nil {
			return nil, err
		}
		return claim, nil
	}
}
