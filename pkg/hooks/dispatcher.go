package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/session"
)

const (
	// DefaultTimeout bounds every engine call a hook event triggers.
	DefaultTimeout = 3 * time.Second

	// preActionMinSimilarity is the similarity floor for the targeted
	// pre-action lookup.
	preActionMinSimilarity = 0.5
	// advisoryThreshold is the similarity above which a past error record
	// becomes an advisory.
	advisoryThreshold = 0.6

	// maxErrorContent truncates captured output before it is stored.
	maxErrorContent = 2000
)

// Result is what a dispatched event produced. Fields are populated
// depending on the event type.
type Result struct {
	SessionID        string                   `json:"session_id"`
	RelevantMemories []session.RelevantMemory `json:"relevant_memories,omitempty"`
	Advisories       []session.Advisory       `json:"advisories,omitempty"`
	ErrorKind        ErrorKind                `json:"error_kind,omitempty"`
	StoredRecordID   string                   `json:"stored_record_id,omitempty"`
	SummaryRecordID  string                   `json:"summary_record_id,omitempty"`
}

// Config tunes the dispatcher.
type Config struct {
	// Timeout bounds each engine call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Dispatcher routes validated hook events to the session tracker, the
// searcher, and the memory service.
type Dispatcher struct {
	tracker  *session.Tracker
	searcher *search.Searcher
	svc      *memory.Service
	timeout  time.Duration
	logger   *zap.Logger
	nowFunc  func() time.Time
}

// NewDispatcher wires a dispatcher. All three collaborators are required.
func NewDispatcher(tracker *session.Tracker, searcher *search.Searcher, svc *memory.Service, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if tracker == nil {
		return nil, fmt.Errorf("hooks: tracker is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("hooks: searcher is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("hooks: memory service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		tracker:  tracker,
		searcher: searcher,
		svc:      svc,
		timeout:  timeout,
		logger:   logger,
		nowFunc:  time.Now,
	}, nil
}

// Tracker exposes the session tracker for status endpoints.
func (d *Dispatcher) Tracker() *session.Tracker { return d.tracker }

// Dispatch validates the event and runs the handler for its type. Advisory
// lookups swallow engine errors; only invalid events and failed record
// writes surface as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	switch ev.Type {
	case EventSessionStart:
		return d.sessionStart(ctx, ev), nil
	case EventPreAction:
		return d.preAction(ctx, ev), nil
	case EventPostAction:
		return d.postAction(ctx, ev)
	case EventSessionEnd:
		return d.sessionEnd(ctx, ev)
	default:
		return nil, memory.ValidationError{Field: "type", Reason: "unknown event type"}
	}
}

func (d *Dispatcher) sessionStart(ctx context.Context, ev Event) *Result {
	sess := d.tracker.Start(ev.SessionID, ev.Project)
	sess.RecordAction(string(EventSessionStart))
	res := &Result{SessionID: ev.SessionID}

	if ev.Project == "" {
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.searcher.Search(callCtx, search.Request{Query: ev.Project})
	if err != nil {
		d.logger.Warn("session-start lookup failed, continuing without relevant memories",
			zap.String("session_id", ev.SessionID), zap.Error(err))
		return res
	}

	memories := make([]session.RelevantMemory, 0, len(resp.Results))
	for _, r := range resp.Results {
		memories = append(memories, session.RelevantMemory{
			RecordID:   r.Record.ID,
			Title:      r.Record.Title,
			Similarity: float32(r.Similarity),
		})
	}
	sess.AttachRelevant(memories)
	res.RelevantMemories = memories
	return res
}

// preAction never returns an error: a slow or failing engine must not
// block the action the hook precedes.
func (d *Dispatcher) preAction(ctx context.Context, ev Event) *Result {
	sess := d.session(ev.SessionID)
	sess.RecordAction(string(EventPreAction))
	res := &Result{SessionID: ev.SessionID}

	if ev.FilePath != "" {
		sess.RecordFile(ev.FilePath, d.nowFunc())
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.searcher.Search(callCtx, search.Request{
		Query:         preActionQuery(ev),
		MinSimilarity: preActionMinSimilarity,
	})
	if err != nil {
		d.logger.Warn("pre-action lookup failed, continuing without advisories",
			zap.String("session_id", ev.SessionID),
			zap.String("file_path", ev.FilePath),
			zap.Error(err))
		return res
	}

	now := d.nowFunc()
	for _, r := range resp.Results {
		if r.Similarity <= advisoryThreshold || !describesError(r.Record) {
			continue
		}
		advisory := session.Advisory{
			RecordID:   r.Record.ID,
			Title:      r.Record.Title,
			Preview:    preview(r.Record.Content),
			ErrorKind:  r.Record.Metadata[memory.MetadataErrorKind],
			Similarity: float32(r.Similarity),
			FilePath:   ev.FilePath,
			IssuedAt:   now,
		}
		sess.PushAdvisory(advisory)
		res.Advisories = append(res.Advisories, advisory)
	}
	return res
}

func (d *Dispatcher) postAction(ctx context.Context, ev Event) (*Result, error) {
	sess := d.session(ev.SessionID)
	sess.RecordAction(string(EventPostAction))
	res := &Result{SessionID: ev.SessionID}

	if ev.FilePath != "" {
		sess.RecordFile(ev.FilePath, d.nowFunc())
	}
	if !ev.Failed {
		return res, nil
	}

	kind := Classify(ev.Output)
	res.ErrorKind = kind
	sess.RecordError(string(kind))

	// A matching advisory or an already-stored record of this kind means
	// the corpus knows about this failure; skip the duplicate write.
	if sess.HasStoredError(string(kind)) || sess.HasAdvisoryFor(string(kind)) {
		d.logger.Debug("skipping duplicate error record",
			zap.String("session_id", ev.SessionID), zap.String("error_kind", string(kind)))
		return res, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	record := &memory.Record{
		Title:   errorTitle(kind, ev),
		Content: errorContent(ev),
		Source:  memory.SourceInteractiveSession,
		Project: sess.Project(),
		Metadata: map[string]string{
			memory.MetadataErrorKind: string(kind),
		},
	}
	stored, err := d.svc.Add(callCtx, record)
	if err != nil {
		return nil, fmt.Errorf("storing error record: %w", err)
	}

	sess.MarkStoredError(string(kind))
	res.StoredRecordID = stored.ID
	return res, nil
}

func (d *Dispatcher) sessionEnd(ctx context.Context, ev Event) (*Result, error) {
	sess, ok := d.tracker.End(ev.SessionID)
	if !ok {
		return nil, memory.NotFoundError{ID: ev.SessionID}
	}
	res := &Result{SessionID: ev.SessionID}

	// Nothing happened; an empty summary record would be noise.
	if len(sess.FilePaths()) == 0 && sess.ErrorCount() == 0 {
		return res, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	record := &memory.Record{
		Title:        summaryTitle(sess),
		Content:      sess.SummaryContent(d.nowFunc()),
		Source:       memory.SourceInteractiveSession,
		Project:      sess.Project(),
		Technologies: sess.Technologies(),
		FilePaths:    sess.FilePaths(),
	}
	stored, err := d.svc.Add(callCtx, record)
	if err != nil {
		return nil, fmt.Errorf("storing session summary: %w", err)
	}
	res.SummaryRecordID = stored.ID
	return res, nil
}

// session returns the live context for the id, creating one when the start
// event was never seen. A missed start should degrade, not fail the hook.
func (d *Dispatcher) session(sessionID string) *session.Context {
	if sess, ok := d.tracker.Get(sessionID); ok {
		return sess
	}
	d.logger.Warn("hook event for unknown session, starting implicit context",
		zap.String("session_id", sessionID))
	return d.tracker.Start(sessionID, "")
}

// preActionQuery builds the targeted lookup for a pre-action event: the
// file name and its parent directory plus an error/fix vocabulary.
func preActionQuery(ev Event) string {
	subject := ev.Action
	if ev.FilePath != "" {
		name := filepath.Base(ev.FilePath)
		parent := filepath.Base(filepath.Dir(ev.FilePath))
		if parent == "." || parent == string(filepath.Separator) {
			subject = name
		} else {
			subject = name + " " + parent
		}
	}
	return subject + " error bug fix"
}

// describesError reports whether the record plausibly documents a past
// failure. Classified error records always qualify; for others the content
// has to mention failure vocabulary.
func describesError(r *memory.Record) bool {
	if r.IsErrorRecord() {
		return true
	}
	text := strings.ToLower(r.Title + " " + r.Content)
	return containsAny(text, "error", "bug", "fix", "fail", "crash", "exception")
}

func errorTitle(kind ErrorKind, ev Event) string {
	subject := ev.Action
	if ev.FilePath != "" {
		subject = filepath.Base(ev.FilePath)
	}
	return fmt.Sprintf("Error (%s): %s", kind, subject)
}

func errorContent(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action %q failed", ev.Action)
	if ev.FilePath != "" {
		fmt.Fprintf(&b, " while working on %s", ev.FilePath)
	}
	b.WriteString(".\n\n")
	out := strings.TrimSpace(ev.Output)
	if len(out) > maxErrorContent {
		out = out[:maxErrorContent]
	}
	if out != "" {
		b.WriteString("Captured output:\n")
		b.WriteString(out)
		b.WriteString("\n")
	}
	return b.String()
}

func summaryTitle(sess *session.Context) string {
	if p := sess.Project(); p != "" {
		return "Session summary: " + p
	}
	return "Session summary: " + sess.SessionID()
}

func preview(content string) string {
	const n = 160
	content = strings.TrimSpace(content)
	if len(content) <= n {
		return content
	}
	return content[:n] + "..."
}
