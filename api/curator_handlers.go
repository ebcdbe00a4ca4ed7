package api

import (
	"github.com/gofiber/fiber/v2"
)

// handleCuratorHealth reports corpus health without mutating anything.
func (s *Server) handleCuratorHealth(c *fiber.Ctx) error {
	report, err := s.curator.Health(c.Context())
	if err != nil {
		return fail(c, "curator_health", err)
	}
	return ok(c, report)
}

// handleDeduplicate removes near-duplicate records, keeping the best of
// each cluster.
func (s *Server) handleDeduplicate(c *fiber.Ctx) error {
	var req struct {
		DryRun bool `json:"dry_run,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	result, err := s.curator.Deduplicate(c.Context(), req.DryRun)
	if err != nil {
		return respondErr(c, "deduplicate", err)
	}
	return ok(c, result)
}

// handleConsolidate merges the named records into one.
func (s *Server) handleConsolidate(c *fiber.Ctx) error {
	var req struct {
		IDs   []string `json:"ids"`
		Title string   `json:"title,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	result, err := s.curator.Consolidate(c.Context(), req.IDs, req.Title)
	if err != nil {
		return respondErr(c, "consolidate", err)
	}
	return ok(c, result)
}

// handleArchive flags old records as archived.
func (s *Server) handleArchive(c *fiber.Ctx) error {
	var req struct {
		Days   int  `json:"days,omitempty"`
		DryRun bool `json:"dry_run,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	result, err := s.curator.Archive(c.Context(), req.Days, req.DryRun)
	if err != nil {
		return respondErr(c, "archive", err)
	}
	return ok(c, result)
}

// handleEnhance backfills derivable metadata on one record.
func (s *Server) handleEnhance(c *fiber.Ctx) error {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.ID == "" {
		return badRequest(c, "id is required")
	}

	result, err := s.curator.Enhance(c.Context(), req.ID)
	if err != nil {
		return respondErr(c, "enhance", err)
	}
	return ok(c, result)
}

// handleAutoCurate runs the combined curation pass.
func (s *Server) handleAutoCurate(c *fiber.Ctx) error {
	var req struct {
		DryRun bool `json:"dry_run,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	result, err := s.curator.AutoCurate(c.Context(), req.DryRun)
	if err != nil {
		return respondErr(c, "autocurate", err)
	}
	return ok(c, result)
}
