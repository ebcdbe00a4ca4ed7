package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/engramhq/engram/pkg/memory"
)

// Locals keys set by the request middleware.
const (
	localRequestID    = "request_id"
	localRequestStart = "request_start"
)

// Envelope is the uniform response shape for every endpoint. Non-2xx status
// codes are reserved for malformed requests; domain failures (not-found,
// conflict) travel as success=false with a 200.
type Envelope struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error"`
	Metadata *Metadata  `json:"metadata,omitempty"`
}

// ErrorBody describes a failed operation.
type ErrorBody struct {
	Message   string `json:"message"`
	Operation string `json:"operation,omitempty"`
}

// Metadata carries per-request bookkeeping on every envelope.
type Metadata struct {
	Timestamp   string `json:"timestamp"`
	RequestID   string `json:"request_id,omitempty"`
	ExecutionMs int64  `json:"execution_ms"`
}

func metadataFor(c *fiber.Ctx) *Metadata {
	m := &Metadata{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if id, ok := c.Locals(localRequestID).(string); ok {
		m.RequestID = id
	}
	if start, ok := c.Locals(localRequestStart).(time.Time); ok {
		m.ExecutionMs = time.Since(start).Milliseconds()
	}
	return m
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(Envelope{Success: true, Data: data, Metadata: metadataFor(c)})
}

// fail reports a domain failure inside a 200 envelope.
func fail(c *fiber.Ctx, operation string, err error) error {
	return c.JSON(Envelope{
		Success:  false,
		Error:    &ErrorBody{Message: err.Error(), Operation: operation},
		Metadata: metadataFor(c),
	})
}

// badRequest reports a malformed request with a 400.
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(Envelope{
		Success:  false,
		Error:    &ErrorBody{Message: message},
		Metadata: metadataFor(c),
	})
}

// respondErr picks the right shape for err: validation failures are
// malformed requests, everything domain-level stays in the envelope.
func respondErr(c *fiber.Ctx, operation string, err error) error {
	var verr memory.ValidationError
	if errors.As(err, &verr) {
		return badRequest(c, verr.Error())
	}
	return fail(c, operation, err)
}
