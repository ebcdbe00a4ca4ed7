// Package session tracks the live state of interactive sessions. Each
// session gets a Context created on session start and discarded on session
// end; hook handlers read and mutate the context through the Tracker rather
// than through any ambient global.
package session

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// State of a session context.
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

const (
	// maxFileHistory bounds the per-session file touch log.
	maxFileHistory = 50
	// maxErrorHistory bounds the per-session recent error log.
	maxErrorHistory = 20
	// MaxDrainAdvisories bounds how many pending advisories a single
	// drain call hands back.
	MaxDrainAdvisories = 10
)

// RelevantMemory is a read-only pointer to a stored record that was judged
// relevant at session start. It is attached to the context for display and
// never enters the pending advisory queue.
type RelevantMemory struct {
	RecordID   string  `json:"record_id"`
	Title      string  `json:"title"`
	Similarity float32 `json:"similarity"`
}

// Advisory is a non-blocking warning derived from a past record, queued on
// the session until a caller drains it.
type Advisory struct {
	RecordID   string    `json:"record_id"`
	Title      string    `json:"title"`
	Preview    string    `json:"preview"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Similarity float32   `json:"similarity"`
	FilePath   string    `json:"file_path,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// FileTouch records one observed edit of a file during the session.
type FileTouch struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// Status is a point-in-time snapshot of a session context, safe to
// serialize while the session keeps running.
type Status struct {
	SessionID        string           `json:"session_id"`
	Project          string           `json:"project,omitempty"`
	State            State            `json:"state"`
	StartTime        time.Time        `json:"start_time"`
	LastAction       string           `json:"last_action,omitempty"`
	FilesTouched     []FileTouch      `json:"files_touched"`
	Technologies     []string         `json:"technologies"`
	ErrorCount       int              `json:"error_count"`
	PendingCount     int              `json:"pending_count"`
	RelevantMemories []RelevantMemory `json:"relevant_memories"`
}

// Context holds the mutable state of one session. All methods are safe for
// concurrent use.
type Context struct {
	mu sync.Mutex

	sessionID string
	project   string
	startTime time.Time
	state     State

	relevant     []RelevantMemory
	pending      []Advisory
	drainedKinds map[string]struct{}
	files        []FileTouch
	technologies map[string]struct{}

	errorCount       int
	recentErrors     []string
	storedErrorKinds map[string]struct{}
	lastAction       string
}

func newContext(sessionID, project string, now time.Time) *Context {
	return &Context{
		sessionID:        sessionID,
		project:          project,
		startTime:        now,
		state:            StateActive,
		technologies:     map[string]struct{}{},
		drainedKinds:     map[string]struct{}{},
		storedErrorKinds: map[string]struct{}{},
	}
}

// SessionID returns the immutable session identifier.
func (c *Context) SessionID() string { return c.sessionID }

// Project returns the project name the session was started with.
func (c *Context) Project() string { return c.project }

// AttachRelevant records the memories surfaced at session start.
func (c *Context) AttachRelevant(memories []RelevantMemory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relevant = append(c.relevant, memories...)
}

// RecordAction notes the most recent lifecycle action seen for the session.
func (c *Context) RecordAction(action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAction = action
}

// RecordFile logs a touched file and infers technologies from its
// extension. The file history keeps only the most recent entries.
func (c *Context) RecordFile(path string, now time.Time) {
	if path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files = append(c.files, FileTouch{Path: path, At: now})
	if len(c.files) > maxFileHistory {
		c.files = c.files[len(c.files)-maxFileHistory:]
	}
	if tech, ok := technologyForExtension(filepath.Ext(path)); ok {
		c.technologies[tech] = struct{}{}
	}
}

// RecordError counts a classified post-action failure.
func (c *Context) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
	c.recentErrors = append(c.recentErrors, kind)
	if len(c.recentErrors) > maxErrorHistory {
		c.recentErrors = c.recentErrors[len(c.recentErrors)-maxErrorHistory:]
	}
}

// HasStoredError reports whether an error record of the given kind was
// already written during this session.
func (c *Context) HasStoredError(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.storedErrorKinds[kind]
	return ok
}

// MarkStoredError remembers that an error record of the given kind was
// written, so later matching failures are not stored again.
func (c *Context) MarkStoredError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storedErrorKinds[kind] = struct{}{}
}

// HasAdvisoryFor reports whether a pending or already-drained advisory
// exists for the given error kind.
func (c *Context) HasAdvisoryFor(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drainedKinds[kind]; ok {
		return true
	}
	for _, a := range c.pending {
		if a.ErrorKind == kind {
			return true
		}
	}
	return false
}

// PushAdvisory queues an advisory for the session.
func (c *Context) PushAdvisory(a Advisory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, a)
}

// DrainAdvisories removes and returns up to MaxDrainAdvisories pending
// advisories in arrival order.
func (c *Context) DrainAdvisories() []Advisory {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	if n == 0 {
		return nil
	}
	if n > MaxDrainAdvisories {
		n = MaxDrainAdvisories
	}
	drained := make([]Advisory, n)
	copy(drained, c.pending[:n])
	for _, a := range drained {
		if a.ErrorKind != "" {
			c.drainedKinds[a.ErrorKind] = struct{}{}
		}
	}
	c.pending = append(c.pending[:0], c.pending[n:]...)
	return drained
}

// Snapshot returns a copy of the context state.
func (c *Context) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := make([]FileTouch, len(c.files))
	copy(files, c.files)
	relevant := make([]RelevantMemory, len(c.relevant))
	copy(relevant, c.relevant)

	return Status{
		SessionID:        c.sessionID,
		Project:          c.project,
		State:            c.state,
		StartTime:        c.startTime,
		LastAction:       c.lastAction,
		FilesTouched:     files,
		Technologies:     c.technologiesLocked(),
		ErrorCount:       c.errorCount,
		PendingCount:     len(c.pending),
		RelevantMemories: relevant,
	}
}

// Technologies returns the sorted set of technologies inferred so far.
func (c *Context) Technologies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.technologiesLocked()
}

func (c *Context) technologiesLocked() []string {
	techs := make([]string, 0, len(c.technologies))
	for t := range c.technologies {
		techs = append(techs, t)
	}
	sort.Strings(techs)
	return techs
}

// SummaryContent renders the accumulated session state as the body of a
// session summary record.
func (c *Context) SummaryContent(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s", c.sessionID)
	if c.project != "" {
		fmt.Fprintf(&b, " on project %s", c.project)
	}
	fmt.Fprintf(&b, " ran for %s.\n\n", now.Sub(c.startTime).Round(time.Second))

	seen := map[string]struct{}{}
	var paths []string
	for _, f := range c.files {
		if _, ok := seen[f.Path]; ok {
			continue
		}
		seen[f.Path] = struct{}{}
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	if len(paths) > 0 {
		fmt.Fprintf(&b, "Files touched (%d):\n", len(paths))
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	if techs := c.technologiesLocked(); len(techs) > 0 {
		fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(techs, ", "))
	}
	fmt.Fprintf(&b, "Errors encountered: %d\n", c.errorCount)
	if len(c.recentErrors) > 0 {
		fmt.Fprintf(&b, "Recent error kinds: %s\n", strings.Join(c.recentErrors, ", "))
	}
	return b.String()
}

// FilePaths returns the unique touched paths in first-touch order.
func (c *Context) FilePaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := map[string]struct{}{}
	var paths []string
	for _, f := range c.files {
		if _, ok := seen[f.Path]; ok {
			continue
		}
		seen[f.Path] = struct{}{}
		paths = append(paths, f.Path)
	}
	return paths
}

// ErrorCount returns how many post-action failures were recorded.
func (c *Context) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorCount
}

func (c *Context) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateEnded
}

// technologyForExtension maps a file extension to the technology it
// implies. Unknown extensions report ok=false.
func technologyForExtension(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case ".py":
		return "python", true
	case ".js", ".jsx":
		return "javascript", true
	case ".ts", ".tsx":
		return "typescript", true
	case ".go":
		return "go", true
	case ".sql":
		return "sql", true
	case ".css":
		return "css", true
	case ".html":
		return "html", true
	case ".sh":
		return "shell", true
	default:
		return "", false
	}
}
