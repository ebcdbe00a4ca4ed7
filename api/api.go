package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/curator"
	"github.com/engramhq/engram/pkg/hooks"
	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/worker"
)

// Server is the HTTP API server for the memory engine.
type Server struct {
	config     Config
	svc        *memory.Service
	searcher   *search.Searcher
	curator    *curator.Curator
	dispatcher *hooks.Dispatcher
	pool       *worker.Pool
	logger     *zap.Logger
	app        *fiber.App
	startTime  time.Time
}

// NewServer creates a new API server. The memory service, searcher, curator
// and dispatcher are injected so they can be shared with the CLI and the
// file watcher. The worker pool is optional; without it async adds fall
// back to synchronous writes.
func NewServer(config Config, svc *memory.Service, searcher *search.Searcher, cur *curator.Curator, dispatcher *hooks.Dispatcher, pool *worker.Pool, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:     config,
		svc:        svc,
		searcher:   searcher,
		curator:    cur,
		dispatcher: dispatcher,
		pool:       pool,
		logger:     logger,
		app:        app,
		startTime:  time.Now(),
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals(localRequestID, requestID)

		start := time.Now()
		c.Locals(localRequestStart, start)
		err := c.Next()
		c.Set("X-Response-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10)+"ms")
		return err
	})

	app.Get("/api/health", s.handleHealth)
	app.Post("/api/search", s.handleSearch)
	app.Post("/api/add_memory", s.handleAddMemory)
	app.Get("/api/memories", s.handleListMemories)
	app.Delete("/api/memory/:id", s.handleDeleteMemory)
	app.Post("/api/reindex", s.handleReindex)

	app.Get("/api/curator/health", s.handleCuratorHealth)
	app.Post("/api/curator/deduplicate", s.handleDeduplicate)
	app.Post("/api/curator/consolidate", s.handleConsolidate)
	app.Post("/api/curator/archive", s.handleArchive)
	app.Post("/api/curator/enhance", s.handleEnhance)
	app.Post("/api/curator/autocurate", s.handleAutoCurate)

	app.Get("/api/active/status", s.handleActiveStatus)
	app.Get("/api/active/context", s.handleActiveContext)
	app.Get("/api/active/decisions", s.handleActiveDecisions)
	app.Post("/api/active/check_before_action", s.handleCheckBeforeAction)
	app.Post("/api/active/hook", s.handleHook)

	return s
}

// MountMCP mounts an MCP streamable HTTP handler at /mcp.
func (s *Server) MountMCP(handler http.Handler) {
	s.app.All("/mcp", adaptor.HTTPHandler(handler))
	s.app.All("/mcp/*", adaptor.HTTPHandler(handler))
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
