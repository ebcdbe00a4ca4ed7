package worker

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/memory"
	memstore "github.com/engramhq/engram/pkg/memory/inmemory"
	vecstore "github.com/engramhq/engram/pkg/vector/inmemory"
)

// newTestPool creates a worker pool backed by an in-memory service.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool() (*Pool, *memory.Service) {
	svc, err := memory.NewService(memory.ServiceConfig{
		Store:     memstore.NewStore(),
		Index:     vecstore.NewDriver(),
		Embedder:  hashed.NewEmbedder(hashed.Config{}),
		Publisher: nop.NewPublisher(),
		Logger:    zap.NewNop(),
	})
	Expect(err).NotTo(HaveOccurred())

	wp, err := NewPool(&Config{
		Service: svc,
		Logger:  zap.NewNop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, svc
}

var _ = Describe("Worker Pool", func() {
	var (
		wp  *Pool
		svc *memory.Service
		ctx context.Context
	)

	BeforeEach(func() {
		wp, svc = newTestPool()
		ctx = context.Background()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(Job{Record: &memory.Record{
				Content: "Fixed the pagination off-by-one in the invoices endpoint",
			}})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("rejects a nil record", func() {
			Expect(wp.Enqueue(Job{})).To(BeFalse())
			wp.Close()
		})
	})

	Describe("draining", func() {
		It("persists every enqueued record before Close returns", func() {
			contents := []string{
				"Fixed the pagination off-by-one in the invoices endpoint",
				"Switched the retry queue to exponential backoff",
				"Documented the webhook signature validation flow",
			}
			for _, c := range contents {
				Expect(wp.Enqueue(Job{Record: &memory.Record{Content: c}})).To(BeTrue())
			}
			wp.Close()

			count, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(len(contents)))
		})

		It("drops invalid records without stalling the pool", func() {
			Expect(wp.Enqueue(Job{Record: &memory.Record{Content: ""}})).To(BeTrue())
			Expect(wp.Enqueue(Job{Record: &memory.Record{
				Content: "Tracked down the flaky websocket reconnect loop",
			}})).To(BeTrue())
			wp.Close()

			count, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})
	})
})
