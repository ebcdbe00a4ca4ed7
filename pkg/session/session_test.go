package session_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramhq/engram/pkg/session"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

var _ = Describe("Tracker", func() {
	var tracker *session.Tracker

	BeforeEach(func() {
		tracker = session.NewTracker()
	})

	It("starts and retrieves a session", func() {
		tracker.Start("s1", "billing")

		sess, ok := tracker.Get("s1")
		Expect(ok).To(BeTrue())
		Expect(sess.SessionID()).To(Equal("s1"))
		Expect(sess.Project()).To(Equal("billing"))
		Expect(tracker.Len()).To(Equal(1))
	})

	It("replaces the context when the same session starts again", func() {
		first := tracker.Start("s1", "billing")
		first.RecordError("generic")

		tracker.Start("s1", "billing")
		sess, _ := tracker.Get("s1")
		Expect(sess.ErrorCount()).To(BeZero())
		Expect(tracker.Len()).To(Equal(1))
	})

	It("removes the context on end", func() {
		tracker.Start("s1", "")

		sess, ok := tracker.End("s1")
		Expect(ok).To(BeTrue())
		Expect(sess.Snapshot().State).To(Equal(session.StateEnded))

		_, ok = tracker.Get("s1")
		Expect(ok).To(BeFalse())
	})

	It("reports ending an unknown session", func() {
		_, ok := tracker.End("missing")
		Expect(ok).To(BeFalse())
	})

	It("lists live session ids sorted", func() {
		tracker.Start("s2", "")
		tracker.Start("s1", "")
		Expect(tracker.SessionIDs()).To(Equal([]string{"s1", "s2"}))
	})
})

var _ = Describe("Context", func() {
	var (
		tracker *session.Tracker
		sess    *session.Context
		now     time.Time
	)

	BeforeEach(func() {
		tracker = session.NewTracker()
		sess = tracker.Start("s1", "billing")
		now = time.Now()
	})

	Describe("file history", func() {
		It("infers technologies from extensions", func() {
			sess.RecordFile("api/handlers.py", now)
			sess.RecordFile("web/app.tsx", now)
			sess.RecordFile("schema/init.sql", now)
			sess.RecordFile("README.md", now)

			Expect(sess.Technologies()).To(Equal([]string{"python", "sql", "typescript"}))
		})

		It("keeps only the most recent touches", func() {
			for i := 0; i < 60; i++ {
				sess.RecordFile(fmt.Sprintf("src/file%02d.go", i), now)
			}

			status := sess.Snapshot()
			Expect(status.FilesTouched).To(HaveLen(50))
			Expect(status.FilesTouched[0].Path).To(Equal("src/file10.go"))
			Expect(status.FilesTouched[49].Path).To(Equal("src/file59.go"))
		})

		It("deduplicates paths in the summary order", func() {
			sess.RecordFile("a.go", now)
			sess.RecordFile("b.go", now)
			sess.RecordFile("a.go", now)

			Expect(sess.FilePaths()).To(Equal([]string{"a.go", "b.go"}))
		})

		It("ignores empty paths", func() {
			sess.RecordFile("", now)
			Expect(sess.Snapshot().FilesTouched).To(BeEmpty())
		})
	})

	Describe("advisories", func() {
		It("drains in arrival order and caps the batch", func() {
			for i := 0; i < 15; i++ {
				sess.PushAdvisory(session.Advisory{RecordID: fmt.Sprintf("r%02d", i)})
			}

			first := sess.DrainAdvisories()
			Expect(first).To(HaveLen(session.MaxDrainAdvisories))
			Expect(first[0].RecordID).To(Equal("r00"))

			second := sess.DrainAdvisories()
			Expect(second).To(HaveLen(5))
			Expect(second[0].RecordID).To(Equal("r10"))

			Expect(sess.DrainAdvisories()).To(BeEmpty())
		})

		It("finds pending advisories by error kind", func() {
			sess.PushAdvisory(session.Advisory{RecordID: "r1", ErrorKind: "syntax-error"})

			Expect(sess.HasAdvisoryFor("syntax-error")).To(BeTrue())
			Expect(sess.HasAdvisoryFor("type-mismatch")).To(BeFalse())
		})

		It("still matches an error kind after its advisory was drained", func() {
			sess.PushAdvisory(session.Advisory{RecordID: "r1", ErrorKind: "syntax-error"})

			Expect(sess.DrainAdvisories()).To(HaveLen(1))
			Expect(sess.HasAdvisoryFor("syntax-error")).To(BeTrue())
			Expect(sess.HasAdvisoryFor("type-mismatch")).To(BeFalse())
		})
	})

	Describe("error bookkeeping", func() {
		It("counts errors and remembers stored kinds", func() {
			sess.RecordError("generic")
			sess.RecordError("syntax-error")

			Expect(sess.ErrorCount()).To(Equal(2))
			Expect(sess.HasStoredError("generic")).To(BeFalse())

			sess.MarkStoredError("generic")
			Expect(sess.HasStoredError("generic")).To(BeTrue())
		})
	})

	Describe("summary", func() {
		It("renders files, technologies and error counts", func() {
			sess.RecordFile("api/handlers.py", now)
			sess.RecordFile("web/app.ts", now)
			sess.RecordError("file-not-found")

			content := sess.SummaryContent(now.Add(10 * time.Minute))
			Expect(content).To(ContainSubstring("project billing"))
			Expect(content).To(ContainSubstring("api/handlers.py"))
			Expect(content).To(ContainSubstring("web/app.ts"))
			Expect(content).To(ContainSubstring("python, typescript"))
			Expect(content).To(ContainSubstring("Errors encountered: 1"))
			Expect(content).To(ContainSubstring("file-not-found"))
		})
	})

	Describe("snapshot", func() {
		It("reflects relevant memories and pending count", func() {
			sess.AttachRelevant([]session.RelevantMemory{{RecordID: "r1", Title: "Old fix", Similarity: 0.7}})
			sess.PushAdvisory(session.Advisory{RecordID: "r2"})
			sess.RecordAction("pre_action")

			status := sess.Snapshot()
			Expect(status.SessionID).To(Equal("s1"))
			Expect(status.State).To(Equal(session.StateActive))
			Expect(status.RelevantMemories).To(HaveLen(1))
			Expect(status.PendingCount).To(Equal(1))
			Expect(status.LastAction).To(Equal("pre_action"))
		})
	})
})
