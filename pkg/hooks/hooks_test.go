package hooks_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/embeddings"
	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/hooks"
	"github.com/engramhq/engram/pkg/memory"
	memstore "github.com/engramhq/engram/pkg/memory/inmemory"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/session"
	testutils "github.com/engramhq/engram/pkg/utils/test"
	vecstore "github.com/engramhq/engram/pkg/vector/inmemory"
)

func TestHooks(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Hooks Suite")
}

var _ = Describe("Classify", func() {
	DescribeTable("maps output text to an error kind",
		func(output string, want hooks.ErrorKind) {
			Expect(hooks.Classify(output)).To(Equal(want))
		},
		Entry("python missing module",
			"ModuleNotFoundError: No module named 'requests'", hooks.ErrorKindModuleNotFound),
		Entry("node missing module",
			"Error: Cannot find module 'express'", hooks.ErrorKindModuleNotFound),
		Entry("missing file",
			"open config.toml: no such file or directory", hooks.ErrorKindFileNotFound),
		Entry("node missing file",
			"ENOENT: no such file, open 'data.json'", hooks.ErrorKindFileNotFound),
		Entry("permission",
			"PermissionError: [Errno 13] Permission denied: '/etc/hosts'", hooks.ErrorKindPermissionDenied),
		Entry("syntax",
			"SyntaxError: invalid syntax (app.py, line 12)", hooks.ErrorKindSyntaxError),
		Entry("js parse failure",
			"Unexpected token '}' at line 40", hooks.ErrorKindSyntaxError),
		Entry("type mismatch",
			`TypeError: can only concatenate str (not "int") to str`, hooks.ErrorKindTypeMismatch),
		Entry("go type mismatch",
			"cannot use x (variable of type string) as int value", hooks.ErrorKindTypeMismatch),
		Entry("python none",
			"AttributeError: 'NoneType' object has no attribute 'id'", hooks.ErrorKindNullReference),
		Entry("go nil deref",
			"runtime error: invalid memory address or nil pointer dereference", hooks.ErrorKindNullReference),
		Entry("js null property",
			"TypeError: Cannot read properties of undefined (reading 'map')", hooks.ErrorKindTypeMismatch),
		Entry("anything else",
			"process exited with status 1", hooks.ErrorKindGeneric),
		Entry("empty output",
			"", hooks.ErrorKindGeneric),
	)
})

var _ = Describe("Event", func() {
	It("requires a session id", func() {
		err := hooks.Event{Type: hooks.EventSessionStart}.Validate()
		Expect(err).To(BeAssignableToTypeOf(memory.ValidationError{}))
	})

	It("requires a subject for pre-action events", func() {
		err := hooks.Event{Type: hooks.EventPreAction, SessionID: "s1"}.Validate()
		Expect(err).To(BeAssignableToTypeOf(memory.ValidationError{}))

		Expect(hooks.Event{Type: hooks.EventPreAction, SessionID: "s1", FilePath: "a.go"}.Validate()).To(Succeed())
		Expect(hooks.Event{Type: hooks.EventPreAction, SessionID: "s1", Action: "run tests"}.Validate()).To(Succeed())
	})

	It("requires an action for post-action events", func() {
		err := hooks.Event{Type: hooks.EventPostAction, SessionID: "s1"}.Validate()
		Expect(err).To(BeAssignableToTypeOf(memory.ValidationError{}))
	})

	It("rejects unknown types", func() {
		err := hooks.Event{Type: "resume", SessionID: "s1"}.Validate()
		Expect(err).To(BeAssignableToTypeOf(memory.ValidationError{}))
	})
})

var _ = Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		svc        *memory.Service
		dispatcher *hooks.Dispatcher
		tracker    *session.Tracker
	)

	newDispatcher := func(embedder embeddings.Embedder) {
		var err error
		svc, err = memory.NewService(memory.ServiceConfig{
			Store:     memstore.NewStore(),
			Index:     vecstore.NewDriver(),
			Embedder:  embedder,
			Publisher: nop.NewPublisher(),
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		searcher := search.NewSearcher(svc, search.Config{}, zap.NewNop())
		tracker = session.NewTracker()
		dispatcher, err = hooks.NewDispatcher(tracker, searcher, svc, hooks.Config{}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		newDispatcher(hashed.NewEmbedder(hashed.Config{}))
	})

	It("rejects invalid events", func() {
		_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventPostAction, SessionID: "s1"})
		Expect(err).To(BeAssignableToTypeOf(memory.ValidationError{}))
	})

	Describe("session start", func() {
		It("creates a context and attaches relevant memories", func() {
			_, err := svc.Add(ctx, &memory.Record{
				Content: "billing service retries stripe webhooks with exponential backoff",
				Project: "billing",
			})
			Expect(err).NotTo(HaveOccurred())

			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventSessionStart,
				SessionID: "s1",
				Project:   "billing service stripe webhooks",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RelevantMemories).NotTo(BeEmpty())

			sess, ok := tracker.Get("s1")
			Expect(ok).To(BeTrue())
			Expect(sess.Snapshot().RelevantMemories).To(Equal(res.RelevantMemories))
		})

		It("starts without a lookup when no project is given", func() {
			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventSessionStart,
				SessionID: "s1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RelevantMemories).To(BeEmpty())
			Expect(tracker.Len()).To(Equal(1))
		})
	})

	Describe("pre-action", func() {
		BeforeEach(func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionStart, SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("surfaces a past error for the same file as an advisory", func() {
			_, err := svc.Add(ctx, &memory.Record{
				Title:   "Error (null-reference): login.py",
				Content: "login.py auth error bug fix: NoneType user object crashed the login handler",
				Metadata: map[string]string{
					memory.MetadataErrorKind: "null-reference",
				},
			})
			Expect(err).NotTo(HaveOccurred())

			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPreAction,
				SessionID: "s1",
				Action:    "edit",
				FilePath:  "auth/login.py",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Advisories).NotTo(BeEmpty())
			Expect(res.Advisories[0].ErrorKind).To(Equal("null-reference"))
			Expect(res.Advisories[0].FilePath).To(Equal("auth/login.py"))

			sess, _ := tracker.Get("s1")
			Expect(sess.DrainAdvisories()).To(HaveLen(len(res.Advisories)))
		})

		It("stays quiet when nothing similar is stored", func() {
			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPreAction,
				SessionID: "s1",
				FilePath:  "docs/changelog.md",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Advisories).To(BeEmpty())
		})

		It("records the touched file on the session", func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPreAction,
				SessionID: "s1",
				FilePath:  "api/server.go",
			})
			Expect(err).NotTo(HaveOccurred())

			sess, _ := tracker.Get("s1")
			Expect(sess.FilePaths()).To(Equal([]string{"api/server.go"}))
			Expect(sess.Technologies()).To(Equal([]string{"go"}))
		})

		It("fails open when the engine cannot serve the lookup", func() {
			embedder := testutils.NewMockEmbedder()
			embedder.FailOn = "login.py auth error bug fix"
			newDispatcher(embedder)
			_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionStart, SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())

			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPreAction,
				SessionID: "s1",
				FilePath:  "auth/login.py",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Advisories).To(BeEmpty())
		})

		It("creates an implicit context when the start event was missed", func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPreAction,
				SessionID: "orphan",
				FilePath:  "main.go",
			})
			Expect(err).NotTo(HaveOccurred())

			_, ok := tracker.Get("orphan")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("post-action", func() {
		BeforeEach(func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionStart, SessionID: "s1", Project: "billing"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("ignores successful outcomes", func() {
			before, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())

			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPostAction,
				SessionID: "s1",
				Action:    "run tests",
				Output:    "ok   engram/pkg/memory  0.3s",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StoredRecordID).To(BeEmpty())

			after, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("classifies a failure and stores an error record", func() {
			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPostAction,
				SessionID: "s1",
				Action:    "run script",
				FilePath:  "scripts/migrate.py",
				Output:    "ModuleNotFoundError: No module named 'psycopg2'",
				Failed:    true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ErrorKind).To(Equal(hooks.ErrorKindModuleNotFound))
			Expect(res.StoredRecordID).NotTo(BeEmpty())

			stored, err := svc.Get(ctx, res.StoredRecordID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsErrorRecord()).To(BeTrue())
			Expect(stored.Metadata[memory.MetadataErrorKind]).To(Equal("module-not-found"))
			Expect(stored.Project).To(Equal("billing"))
			Expect(stored.Source).To(Equal(memory.SourceInteractiveSession))
			Expect(stored.Content).To(ContainSubstring("psycopg2"))
		})

		It("does not store the same error kind twice in one session", func() {
			first, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPostAction,
				SessionID: "s1",
				Action:    "run script",
				Output:    "SyntaxError: invalid syntax",
				Failed:    true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.StoredRecordID).NotTo(BeEmpty())

			second, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPostAction,
				SessionID: "s1",
				Action:    "run script",
				Output:    "SyntaxError: still invalid",
				Failed:    true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ErrorKind).To(Equal(hooks.ErrorKindSyntaxError))
			Expect(second.StoredRecordID).To(BeEmpty())

			sess, _ := tracker.Get("s1")
			Expect(sess.ErrorCount()).To(Equal(2))
		})

		It("skips the write when a matching advisory is pending", func() {
			sess, _ := tracker.Get("s1")
			sess.PushAdvisory(session.Advisory{RecordID: "r1", ErrorKind: "generic"})

			res, err := dispatcher.Dispatch(ctx, hooks.Event{
				Type:      hooks.EventPostAction,
				SessionID: "s1",
				Action:    "deploy",
				Output:    "process exited with status 1",
				Failed:    true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ErrorKind).To(Equal(hooks.ErrorKindGeneric))
			Expect(res.StoredRecordID).To(BeEmpty())
		})
	})

	Describe("session end", func() {
		It("writes a summary record and discards the context", func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionStart, SessionID: "s1", Project: "billing"})
			Expect(err).NotTo(HaveOccurred())
			_, err = dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventPreAction, SessionID: "s1", FilePath: "api/invoices.py"})
			Expect(err).NotTo(HaveOccurred())
			_, err = dispatcher.Dispatch(ctx, hooks.Event{
				Type: hooks.EventPostAction, SessionID: "s1", Action: "run", Output: "boom", Failed: true,
			})
			Expect(err).NotTo(HaveOccurred())

			res, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionEnd, SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.SummaryRecordID).NotTo(BeEmpty())

			summary, err := svc.Get(ctx, res.SummaryRecordID)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Title).To(Equal("Session summary: billing"))
			Expect(summary.Content).To(ContainSubstring("api/invoices.py"))
			Expect(summary.Content).To(ContainSubstring("Errors encountered: 1"))
			Expect(summary.Technologies).To(ContainElement("python"))
			Expect(summary.FilePaths).To(Equal([]string{"api/invoices.py"}))

			_, ok := tracker.Get("s1")
			Expect(ok).To(BeFalse())
		})

		It("skips the summary for an idle session", func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionStart, SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())

			before, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())

			res, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionEnd, SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.SummaryRecordID).To(BeEmpty())

			after, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("reports ending an unknown session", func() {
			_, err := dispatcher.Dispatch(ctx, hooks.Event{Type: hooks.EventSessionEnd, SessionID: "nope"})
			Expect(err).To(BeAssignableToTypeOf(memory.NotFoundError{}))
		})
	})
})
