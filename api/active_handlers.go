package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/engramhq/engram/pkg/hooks"
	"github.com/engramhq/engram/pkg/session"
)

// handleActiveStatus lists the live sessions.
func (s *Server) handleActiveStatus(c *fiber.Ctx) error {
	tracker := s.dispatcher.Tracker()
	return ok(c, fiber.Map{
		"active_sessions": tracker.Len(),
		"session_ids":     tracker.SessionIDs(),
	})
}

// handleActiveContext returns the full context snapshot for one session.
func (s *Server) handleActiveContext(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return badRequest(c, "session_id parameter required")
	}

	sess, found := s.dispatcher.Tracker().Get(sessionID)
	if !found {
		return fail(c, "active_context", errUnknownSession(sessionID))
	}
	return ok(c, sess.Snapshot())
}

// handleActiveDecisions drains the pending advisories for one session.
func (s *Server) handleActiveDecisions(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return badRequest(c, "session_id parameter required")
	}

	sess, found := s.dispatcher.Tracker().Get(sessionID)
	if !found {
		return fail(c, "active_decisions", errUnknownSession(sessionID))
	}

	advisories := sess.DrainAdvisories()
	return ok(c, fiber.Map{
		"session_id": sessionID,
		"advisories": advisories,
	})
}

// handleCheckBeforeAction runs a pre-action advisory lookup. The body is a
// pre-action hook event; the route exists so hook scripts can name the
// check explicitly.
func (s *Server) handleCheckBeforeAction(c *fiber.Ctx) error {
	var ev hooks.Event
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	ev.Type = hooks.EventPreAction

	result, err := s.dispatcher.Dispatch(c.Context(), ev)
	if err != nil {
		return respondErr(c, "check_before_action", err)
	}

	// Advisory only: the engine never blocks an action.
	return ok(c, fiber.Map{
		"should_proceed": true,
		"warnings":       result.Advisories,
		"suggestions":    suggestionsFrom(result.Advisories),
	})
}

// suggestionsFrom extracts remembered solutions from advisory previews.
// Error memories written by the hook flow often carry a "fixed by ..." or
// "solution: ..." tail describing what resolved them.
func suggestionsFrom(advisories []session.Advisory) []string {
	markers := []string{"fixed by", "fix:", "solution:", "resolved by"}

	suggestions := make([]string, 0, len(advisories))
	for _, adv := range advisories {
		lower := strings.ToLower(adv.Preview)
		for _, marker := range markers {
			idx := strings.Index(lower, marker)
			if idx < 0 {
				continue
			}
			suggestion := strings.TrimSpace(adv.Preview[idx:])
			if suggestion != "" {
				suggestions = append(suggestions, suggestion)
			}
			break
		}
	}
	return suggestions
}

// handleHook accepts any lifecycle event and dispatches it.
func (s *Server) handleHook(c *fiber.Ctx) error {
	var ev hooks.Event
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	result, err := s.dispatcher.Dispatch(c.Context(), ev)
	if err != nil {
		return respondErr(c, "hook", err)
	}
	return ok(c, result)
}

type unknownSessionError struct {
	id string
}

func (e unknownSessionError) Error() string {
	return "no active session with id " + e.id
}

func errUnknownSession(id string) error {
	return unknownSessionError{id: id}
}
