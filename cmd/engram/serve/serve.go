// Package servecmder provides the serve command for running the memory engine.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/api"
	apimcp "github.com/engramhq/engram/api/mcp"
	"github.com/engramhq/engram/pkg/active"
	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/curator"
	embeddingutils "github.com/engramhq/engram/pkg/embeddings/utils"
	"github.com/engramhq/engram/pkg/eventstream"
	kafkastream "github.com/engramhq/engram/pkg/eventstream/kafka"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/hooks"
	"github.com/engramhq/engram/pkg/logger"
	"github.com/engramhq/engram/pkg/memory"
	memoryutils "github.com/engramhq/engram/pkg/memory/utils"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/session"
	vectorutils "github.com/engramhq/engram/pkg/vector/utils"
	"github.com/engramhq/engram/pkg/worker"
)

// watcherSessionID is the session the file watcher pushes advisories into,
// so they can be drained via GET /api/active/decisions.
const watcherSessionID = "watcher"

type ServeCommander struct {
	listen string

	storageProvider string
	sqlitePath      string
	postgresDSN     string

	vectorProvider string
	vectorPath     string
	vectorHost     string
	vectorPort     int
	collection     string

	embeddingProvider string
	embeddingTarget   string
	embeddingModel    string
	dimensions        uint

	eventsProvider string
	brokers        []string
	topic          string

	watchRoot string
	noMCP     bool

	cfg    *config.Config
	debug  bool
	logger *zap.Logger
}

const serveLongDesc string = `Run the engram memory engine.

Starts the HTTP API server, the hook dispatcher, the async write pool and
(optionally) the file watcher, sharing a single record store, similarity
index and embedder.

Storage, vector store and embedding providers come from config.toml in the
.engram/ directory; CLI flags take precedence.

Examples:
  engram serve
  engram serve --listen :8900 --storage sqlite --sqlite ~/.engram/engram.db
  engram serve --vector-store qdrant --vector-host localhost --vector-port 6334
  engram serve --watch-root .`

const serveShortDesc string = "Run the engram memory engine"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg

			// Flags left at their defaults fall back to config values.
			if !cmd.Flags().Changed("listen") {
				cmder.listen = cfg.API.Listen
			}
			if !cmd.Flags().Changed("storage") {
				cmder.storageProvider = cfg.Storage.Provider
			}
			if !cmd.Flags().Changed("sqlite") {
				cmder.sqlitePath = cfg.Storage.SQLitePath
			}
			if !cmd.Flags().Changed("postgres-dsn") {
				cmder.postgresDSN = cfg.Storage.PostgresDSN
			}
			if !cmd.Flags().Changed("vector-store") {
				cmder.vectorProvider = cfg.VectorStore.Provider
			}
			if !cmd.Flags().Changed("vector-path") {
				cmder.vectorPath = cfg.VectorStore.Path
			}
			if !cmd.Flags().Changed("vector-host") {
				cmder.vectorHost = cfg.VectorStore.Host
			}
			if !cmd.Flags().Changed("vector-port") {
				cmder.vectorPort = cfg.VectorStore.Port
			}
			if !cmd.Flags().Changed("collection") {
				cmder.collection = cfg.VectorStore.Collection
			}
			if !cmd.Flags().Changed("embedding") {
				cmder.embeddingProvider = cfg.Embedding.Provider
			}
			if !cmd.Flags().Changed("embedding-target") {
				cmder.embeddingTarget = cfg.Embedding.Target
			}
			if !cmd.Flags().Changed("embedding-model") {
				cmder.embeddingModel = cfg.Embedding.Model
			}
			if !cmd.Flags().Changed("dimensions") {
				cmder.dimensions = cfg.Embedding.Dimensions
			}
			if !cmd.Flags().Changed("events") {
				cmder.eventsProvider = cfg.Events.Provider
			}
			if !cmd.Flags().Changed("brokers") {
				cmder.brokers = cfg.Events.Brokers
			}
			if !cmd.Flags().Changed("topic") {
				cmder.topic = cfg.Events.Topic
			}
			if !cmd.Flags().Changed("watch-root") && cfg.Watcher.Enabled {
				cmder.watchRoot = cfg.Watcher.Root
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.API.Listen, "Address for the API server to listen on")
	cmd.Flags().StringVar(&cmder.storageProvider, "storage", defaults.Storage.Provider, "Record store provider (memory, sqlite, libsql, postgres)")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", defaults.Storage.SQLitePath, "Path to the SQLite record store")
	cmd.Flags().StringVar(&cmder.postgresDSN, "postgres-dsn", defaults.Storage.PostgresDSN, "Postgres connection string")
	cmd.Flags().StringVar(&cmder.vectorProvider, "vector-store", defaults.VectorStore.Provider, "Similarity index provider (memory, sqlite-vec, qdrant)")
	cmd.Flags().StringVar(&cmder.vectorPath, "vector-path", defaults.VectorStore.Path, "Path to the sqlite-vec index")
	cmd.Flags().StringVar(&cmder.vectorHost, "vector-host", defaults.VectorStore.Host, "Qdrant host")
	cmd.Flags().IntVar(&cmder.vectorPort, "vector-port", defaults.VectorStore.Port, "Qdrant gRPC port")
	cmd.Flags().StringVar(&cmder.collection, "collection", defaults.VectorStore.Collection, "Qdrant collection name")
	cmd.Flags().StringVar(&cmder.embeddingProvider, "embedding", defaults.Embedding.Provider, "Embedding provider (hashed, ollama)")
	cmd.Flags().StringVar(&cmder.embeddingTarget, "embedding-target", defaults.Embedding.Target, "Embedding provider URL")
	cmd.Flags().StringVar(&cmder.embeddingModel, "embedding-model", defaults.Embedding.Model, "Embedding model name")
	cmd.Flags().UintVar(&cmder.dimensions, "dimensions", defaults.Embedding.Dimensions, "Embedding dimensions")
	cmd.Flags().StringVar(&cmder.eventsProvider, "events", defaults.Events.Provider, "Event stream provider (nop, kafka)")
	cmd.Flags().StringSliceVar(&cmder.brokers, "brokers", defaults.Events.Brokers, "Kafka broker addresses")
	cmd.Flags().StringVar(&cmder.topic, "topic", defaults.Events.Topic, "Kafka topic for memory events")
	cmd.Flags().StringVarP(&cmder.watchRoot, "watch-root", "w", "", "Directory tree to watch for file activity (off when empty)")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the MCP endpoint")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()
	if c.cfg == nil {
		c.cfg = config.NewDefaultConfig()
	}

	// Record store
	store, err := memoryutils.NewStore(ctx, &memoryutils.NewStoreOpts{
		ProviderType: c.storageProvider,
		Path:         c.sqlitePath,
		ConnString:   c.postgresDSN,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating record store: %w", err)
	}
	defer store.Close()

	// Similarity index
	index, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: c.vectorProvider,
		Path:         c.vectorPath,
		Host:         c.vectorHost,
		Port:         c.vectorPort,
		Collection:   c.collection,
		Dimensions:   c.dimensions,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating similarity index: %w", err)
	}
	defer index.Close()

	// Embedder
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.embeddingProvider,
		TargetURL:    c.embeddingTarget,
		Model:        c.embeddingModel,
		Dimensions:   c.dimensions,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	// Event stream publisher
	publisher, err := c.createPublisher()
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	svc, err := memory.NewService(memory.ServiceConfig{
		Store:     store,
		Index:     index,
		Embedder:  embedder,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating memory service: %w", err)
	}

	// Rebuild the similarity index from persisted embeddings so a restart
	// with an in-memory index still serves search.
	release, err := svc.ExclusiveLock(ctx)
	if err != nil {
		return fmt.Errorf("acquiring reindex lock: %w", err)
	}
	indexed, err := svc.Reindex(ctx)
	release()
	if err != nil {
		return fmt.Errorf("rebuilding similarity index: %w", err)
	}
	c.logger.Info("similarity index ready", zap.Int("records", indexed))

	searcher := search.NewSearcher(svc, search.Config{
		Weights: search.Weights{
			Similarity: c.cfg.Search.SimilarityWeight,
			Recency:    c.cfg.Search.RecencyWeight,
			Complexity: c.cfg.Search.ComplexityWeight,
		},
		MinSimilarity: c.cfg.Search.MinSimilarity,
	}, c.logger)

	cur := curator.NewCurator(svc, curator.Config{
		DuplicateThreshold: c.cfg.Curation.DuplicateThreshold,
		ArchiveDays:        c.cfg.Curation.ArchiveDays,
	}, c.logger)

	tracker := session.NewTracker()
	dispatcher, err := hooks.NewDispatcher(tracker, searcher, svc, hooks.Config{
		Timeout: time.Duration(c.cfg.Hooks.TimeoutSeconds) * time.Second,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating hook dispatcher: %w", err)
	}

	pool, err := worker.NewPool(&worker.Config{
		Service: svc,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	apiServer := api.NewServer(api.Config{
		ListenAddr: c.listen,
	}, svc, searcher, cur, dispatcher, pool, c.logger)

	if !c.noMCP {
		mcpServer, err := apimcp.NewServer(apimcp.Config{
			Searcher: searcher,
			Service:  svc,
			Logger:   c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		apiServer.MountMCP(mcpServer.Handler())
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if c.watchRoot != "" {
		if err := c.startWatcher(watchCtx, searcher, tracker); err != nil {
			return err
		}
	}

	c.logger.Info("starting api server",
		zap.String("api_addr", c.listen),
		zap.String("storage", c.storageProvider),
		zap.String("vector_store", c.vectorProvider),
		zap.String("embedding", c.embeddingProvider),
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancelWatch()
		return apiServer.Shutdown()
	}
}

func (c *ServeCommander) createPublisher() (eventstream.Publisher, error) {
	switch c.eventsProvider {
	case "kafka":
		return kafkastream.NewPublisher(kafkastream.Config{
			Brokers: c.brokers,
			Topic:   c.topic,
		}, c.logger)
	case "", "nop":
		return nop.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.eventsProvider)
	}
}

// startWatcher runs the file watcher over the configured root, pushing
// advisories into a dedicated tracker session.
func (c *ServeCommander) startWatcher(ctx context.Context, searcher *search.Searcher, tracker *session.Tracker) error {
	watcherCtx := tracker.Start(watcherSessionID, c.watchRoot)

	rateLimit := time.Duration(c.cfg.Watcher.RateLimitSeconds) * time.Second
	watcher, err := active.NewWatcher(searcher, active.WatcherConfig{
		Root:          c.watchRoot,
		RateLimit:     rateLimit,
		MinSimilarity: c.cfg.Watcher.MinSimilarity,
	}, func(adv session.Advisory) {
		watcherCtx.PushAdvisory(adv)
		c.logger.Info("file activity advisory",
			zap.String("file", adv.FilePath),
			zap.String("memory", adv.RecordID),
		)
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	go func() {
		defer watcher.Close()
		if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("file watcher stopped", zap.Error(err))
		}
	}()

	c.logger.Info("watching for file activity", zap.String("root", c.watchRoot))
	return nil
}
