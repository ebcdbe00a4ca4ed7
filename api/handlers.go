package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/worker"
)

// addMemoryRequest is the body of POST /api/add_memory.
type addMemoryRequest struct {
	Content      string            `json:"content"`
	Title        string            `json:"title,omitempty"`
	Source       string            `json:"source,omitempty"`
	Technologies []string          `json:"technologies,omitempty"`
	Complexity   string            `json:"complexity,omitempty"`
	Project      string            `json:"project,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Async enqueues the write on the worker pool and returns without an
	// id. Falls back to a synchronous write when no pool is configured.
	Async bool `json:"async,omitempty"`
}

func (r addMemoryRequest) record() *memory.Record {
	return &memory.Record{
		Content:      r.Content,
		Title:        r.Title,
		Source:       r.Source,
		Technologies: r.Technologies,
		Complexity:   memory.Complexity(r.Complexity),
		Project:      r.Project,
		Metadata:     r.Metadata,
	}
}

// handleHealth returns engine status, record count and uptime.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	count, err := s.svc.Count(c.Context())
	if err != nil {
		return fail(c, "health", err)
	}

	return ok(c, fiber.Map{
		"status":         "ok",
		"record_count":   count,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// handleAddMemory stores a new record.
func (s *Server) handleAddMemory(c *fiber.Ctx) error {
	var req addMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.Content == "" {
		return badRequest(c, "content is required")
	}

	if req.Async && s.pool != nil {
		if !s.pool.Enqueue(worker.Job{Record: req.record()}) {
			return fail(c, "add_memory", errors.New("write queue is full"))
		}
		return ok(c, fiber.Map{"queued": true})
	}

	stored, err := s.svc.Add(c.Context(), req.record())
	if err != nil {
		return respondErr(c, "add_memory", err)
	}

	s.logger.Info("record added via API",
		zap.String("id", stored.ID),
		zap.String("source", stored.Source),
	)

	return ok(c, fiber.Map{
		"id":    stored.ID,
		"title": stored.Title,
	})
}

// handleListMemories returns a page of records, newest first.
func (s *Server) handleListMemories(c *fiber.Ctx) error {
	opts := memory.ListOptions{
		Page:            c.QueryInt("page", 1),
		PageSize:        c.QueryInt("limit", memory.DefaultPageSize),
		IncludeArchived: c.QueryBool("include_archived", false),
	}
	if opts.Page < 1 || opts.PageSize < 0 {
		return badRequest(c, "page and limit must be positive")
	}

	records, total, err := s.svc.List(c.Context(), opts)
	if err != nil {
		return fail(c, "list", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = memory.DefaultPageSize
	}
	if pageSize > memory.MaxPageSize {
		pageSize = memory.MaxPageSize
	}
	totalPages := (total + pageSize - 1) / pageSize

	return ok(c, fiber.Map{
		"records": records,
		"pagination": fiber.Map{
			"page":        opts.Page,
			"limit":       pageSize,
			"total":       total,
			"total_pages": totalPages,
			"has_next":    opts.Page < totalPages,
			"has_prev":    opts.Page > 1,
		},
	})
}

// handleDeleteMemory removes a record by id.
func (s *Server) handleDeleteMemory(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "id parameter required")
	}

	if err := s.svc.Delete(c.Context(), id); err != nil {
		return respondErr(c, "delete", err)
	}
	return ok(c, fiber.Map{"deleted": id})
}

// handleReindex rebuilds the similarity index from the record store.
// Requires confirm:true in the body; a full rebuild re-embeds nothing but
// still scans every record.
func (s *Server) handleReindex(c *fiber.Ctx) error {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if !req.Confirm {
		return badRequest(c, "confirm must be true")
	}

	release, err := s.svc.ExclusiveLock(c.Context())
	if err != nil {
		return fail(c, "reindex", err)
	}
	defer release()

	started := time.Now()
	indexed, err := s.svc.Reindex(c.Context())
	if err != nil {
		return fail(c, "reindex", err)
	}

	return ok(c, fiber.Map{
		"indexed_records": indexed,
		"duration_ms":     time.Since(started).Milliseconds(),
	})
}
