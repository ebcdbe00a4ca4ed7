package active_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/active"
	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/memory"
	memstore "github.com/engramhq/engram/pkg/memory/inmemory"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/session"
	vecstore "github.com/engramhq/engram/pkg/vector/inmemory"
)

func TestActive(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Active Suite")
}

var _ = Describe("Watcher", func() {
	var (
		ctx        context.Context
		cancel     context.CancelFunc
		svc        *memory.Service
		searcher   *search.Searcher
		root       string
		advisories chan session.Advisory
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		var err error
		svc, err = memory.NewService(memory.ServiceConfig{
			Store:     memstore.NewStore(),
			Index:     vecstore.NewDriver(),
			Embedder:  hashed.NewEmbedder(hashed.Config{}),
			Publisher: nop.NewPublisher(),
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		searcher = search.NewSearcher(svc, search.Config{}, zap.NewNop())

		root = GinkgoT().TempDir()
		advisories = make(chan session.Advisory, 16)
	})

	AfterEach(func() {
		cancel()
	})

	startWatcher := func(cfg active.WatcherConfig) *active.Watcher {
		cfg.Root = root
		w, err := active.NewWatcher(searcher, cfg, func(a session.Advisory) {
			advisories <- a
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(w.Close)

		go func() {
			defer GinkgoRecover()
			_ = w.Watch(ctx)
		}()
		// Give the watch loop a moment to register the tree.
		time.Sleep(100 * time.Millisecond)
		return w
	}

	writeFile := func(path, content string) {
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	}

	It("requires a root and a callback", func() {
		_, err := active.NewWatcher(searcher, active.WatcherConfig{}, func(session.Advisory) {}, zap.NewNop())
		Expect(err).To(HaveOccurred())

		_, err = active.NewWatcher(searcher, active.WatcherConfig{Root: root}, nil, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("surfaces an advisory when a changed file matches a past error", func() {
		_, err := svc.Add(ctx, &memory.Record{
			Title:   "Error (null-reference): main.py",
			Content: "main.py error bug fix: NoneType crash in the main.py handler",
			Metadata: map[string]string{
				memory.MetadataErrorKind: "null-reference",
			},
		})
		Expect(err).NotTo(HaveOccurred())

		startWatcher(active.WatcherConfig{})
		writeFile(filepath.Join(root, "main.py"), "print('hello')\n")

		var advisory session.Advisory
		Eventually(advisories, 3*time.Second).Should(Receive(&advisory))
		Expect(advisory.ErrorKind).To(Equal("null-reference"))
		Expect(advisory.FilePath).To(HaveSuffix("main.py"))
	})

	It("ignores files outside the watched extensions", func() {
		_, err := svc.Add(ctx, &memory.Record{
			Content: "notes.txt error bug fix crash from a past incident",
		})
		Expect(err).NotTo(HaveOccurred())

		startWatcher(active.WatcherConfig{})
		writeFile(filepath.Join(root, "notes.txt"), "scratch\n")

		Consistently(advisories, 500*time.Millisecond).ShouldNot(Receive())
	})

	It("rate limits repeated lookups for the same file", func() {
		_, err := svc.Add(ctx, &memory.Record{
			Title:   "Error (generic): app.js",
			Content: "app.js error bug fix: build failed with an exception",
			Metadata: map[string]string{
				memory.MetadataErrorKind: "generic",
			},
		})
		Expect(err).NotTo(HaveOccurred())

		startWatcher(active.WatcherConfig{RateLimit: time.Minute})
		path := filepath.Join(root, "app.js")
		writeFile(path, "one\n")

		Eventually(advisories, 3*time.Second).Should(Receive())

		writeFile(path, "two\n")
		writeFile(path, "three\n")
		Consistently(advisories, 500*time.Millisecond).ShouldNot(Receive())
	})

	It("stays quiet when nothing similar is stored", func() {
		startWatcher(active.WatcherConfig{})
		writeFile(filepath.Join(root, "fresh.go"), "package fresh\n")

		Consistently(advisories, 500*time.Millisecond).ShouldNot(Receive())
	})
})
