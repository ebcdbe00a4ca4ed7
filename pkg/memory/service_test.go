package memory_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/memory"
	memstore "github.com/engramhq/engram/pkg/memory/inmemory"
	testutils "github.com/engramhq/engram/pkg/utils/test"
	vecstore "github.com/engramhq/engram/pkg/vector/inmemory"
)

func TestMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Suite")
}

func newTestService() *memory.Service {
	svc, err := memory.NewService(memory.ServiceConfig{
		Store:     memstore.NewStore(),
		Index:     vecstore.NewDriver(),
		Embedder:  hashed.NewEmbedder(hashed.Config{}),
		Publisher: nop.NewPublisher(),
		Logger:    zap.NewNop(),
	})
	Expect(err).NotTo(HaveOccurred())
	return svc
}

var _ = Describe("Service", func() {
	var (
		ctx context.Context
		svc *memory.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = newTestService()
	})

	Describe("Add", func() {
		It("assigns an id, defaults, and a quality score", func() {
			stored, err := svc.Add(ctx, &memory.Record{
				Content: "Fixed a null pointer exception in the auth middleware by guarding the session lookup",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(stored.ID).NotTo(BeEmpty())
			Expect(stored.Source).To(Equal(memory.SourceManual))
			Expect(stored.Date).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}$`))
			Expect(stored.Title).NotTo(BeEmpty())
			Expect(stored.Complexity).To(Equal(memory.ComplexityLow))
			Expect(stored.QualityScore).To(BeNumerically(">", 0))
			Expect(stored.Embedding).NotTo(BeEmpty())
		})

		It("derives technologies from content", func() {
			stored, err := svc.Add(ctx, &memory.Record{
				Content: "Migrated the docker compose setup to use postgres instead of sqlite",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Technologies).To(ContainElements("docker", "postgres", "sqlite"))
		})

		It("preserves caller-provided fields", func() {
			stored, err := svc.Add(ctx, &memory.Record{
				Content:      "Refactored the payment retry queue",
				Title:        "Payment retries",
				Source:       memory.SourceInteractiveSession,
				Date:         "2026-01-15",
				Technologies: []string{"go"},
				Complexity:   memory.ComplexityHigh,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Title).To(Equal("Payment retries"))
			Expect(stored.Source).To(Equal(memory.SourceInteractiveSession))
			Expect(stored.Date).To(Equal("2026-01-15"))
			Expect(stored.Technologies).To(Equal([]string{"go"}))
			Expect(stored.Complexity).To(Equal(memory.ComplexityHigh))
		})

		It("rejects empty content", func() {
			_, err := svc.Add(ctx, &memory.Record{})
			var verr memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
		})

		It("rejects content over the size limit", func() {
			_, err := svc.Add(ctx, &memory.Record{
				Content: strings.Repeat("a", memory.MaxContentLength+1),
			})
			var verr memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
		})

		It("scores richer records higher", func() {
			thin, err := svc.Add(ctx, &memory.Record{Content: "fixed a bug today in prod"})
			Expect(err).NotTo(HaveOccurred())

			rich, err := svc.Add(ctx, &memory.Record{
				Content: "Debugged the flask session handler.\n\n```python\nsession.clear()\n```\n" +
					strings.Repeat("Detailed notes about the python fix. ", 20),
				Title: "Flask session fix",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(rich.QualityScore).To(BeNumerically(">", thin.QualityScore))
		})

		It("assigns distinct ids to simultaneous adds", func() {
			const n = 32

			ids := make([]string, n)
			var wg sync.WaitGroup
			wg.Add(n)
			for i := 0; i < n; i++ {
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					stored, err := svc.Add(ctx, &memory.Record{
						Content: fmt.Sprintf("Pinned the worker %d to its own queue partition", i),
					})
					Expect(err).NotTo(HaveOccurred())
					ids[i] = stored.ID
				}(i)
			}
			wg.Wait()

			seen := make(map[string]bool, n)
			for _, id := range ids {
				Expect(id).NotTo(BeEmpty())
				Expect(seen[id]).To(BeFalse(), "id %s assigned twice", id)
				seen[id] = true
			}

			count, err := svc.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(n))
		})
	})

	Describe("Get and Delete", func() {
		It("round-trips a stored record", func() {
			stored, err := svc.Add(ctx, &memory.Record{Content: "Configured the redis cache eviction policy"})
			Expect(err).NotTo(HaveOccurred())

			got, err := svc.Get(ctx, stored.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal(stored.Content))
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := svc.Get(ctx, "nope")
			var nf memory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nf))
		})

		It("removes the record and its retrievability", func() {
			stored, err := svc.Add(ctx, &memory.Record{Content: "Tuned the kubernetes liveness probes for the api"})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(ctx, stored.ID)).To(Succeed())

			_, err = svc.Get(ctx, stored.ID)
			var nf memory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nf))

			results, err := svc.Similar(ctx, stored.Content, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Similar", func() {
		It("retrieves a stored record by its own content", func() {
			stored, err := svc.Add(ctx, &memory.Record{
				Content: "Resolved a typescript build failure caused by a circular import in the react components",
			})
			Expect(err).NotTo(HaveOccurred())

			results, err := svc.Similar(ctx, stored.Content, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeEmpty())
			Expect(results[0].Record.ID).To(Equal(stored.ID))
			Expect(results[0].Similarity).To(BeNumerically("~", 1.0, 1e-4))
		})

		It("ranks a related record above an unrelated one", func() {
			related, err := svc.Add(ctx, &memory.Record{
				Content: "Fixed a null pointer crash in the auth login handler",
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Add(ctx, &memory.Record{
				Content: "Updated the css grid layout for the marketing dashboard",
			})
			Expect(err).NotTo(HaveOccurred())

			results, err := svc.Similar(ctx, "null pointer exception in auth service", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeEmpty())
			Expect(results[0].Record.ID).To(Equal(related.ID))
		})
	})

	Describe("List", func() {
		It("pages newest-first with a stable total", func() {
			for _, date := range []string{"2026-01-01", "2026-01-03", "2026-01-02"} {
				_, err := svc.Add(ctx, &memory.Record{
					Content: "Worked on the ingestion pipeline batch sizing on " + date,
					Date:    date,
				})
				Expect(err).NotTo(HaveOccurred())
			}

			page, total, err := svc.List(ctx, memory.ListOptions{Page: 1, PageSize: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(3))
			Expect(page).To(HaveLen(2))
			Expect(page[0].Date).To(Equal("2026-01-03"))
			Expect(page[1].Date).To(Equal("2026-01-02"))
		})
	})

	Describe("ExclusiveLock", func() {
		It("blocks adds until released", func() {
			release, err := svc.ExclusiveLock(ctx)
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() {
				_, err := svc.Add(ctx, &memory.Record{Content: "Recorded while the curator held the lock"})
				done <- err
			}()

			Consistently(done, "100ms").ShouldNot(Receive())

			release()
			Eventually(done, "2s").Should(Receive(BeNil()))
		})
	})

	Describe("Reindex", func() {
		It("rebuilds the index from persisted embeddings", func() {
			stored, err := svc.Add(ctx, &memory.Record{
				Content: "Profiled the rust service allocator under load",
			})
			Expect(err).NotTo(HaveOccurred())

			count, err := svc.Reindex(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			results, err := svc.Similar(ctx, stored.Content, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeEmpty())
			Expect(results[0].Record.ID).To(Equal(stored.ID))
		})

		It("resets the index before repopulating it", func() {
			driver := testutils.NewMockVectorDriver()
			svc, err := memory.NewService(memory.ServiceConfig{
				Store:     memstore.NewStore(),
				Index:     driver,
				Embedder:  hashed.NewEmbedder(hashed.Config{}),
				Publisher: nop.NewPublisher(),
				Logger:    zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Add(ctx, &memory.Record{
				Content: "Tuned the connection pool after the postgres failover test",
			})
			Expect(err).NotTo(HaveOccurred())

			count, err := svc.Reindex(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(driver.ResetCount).To(Equal(1))
			Expect(driver.Documents).To(HaveLen(1))
		})
	})
})

var _ = Describe("Record", func() {
	Describe("Validate", func() {
		It("accepts a complete record", func() {
			r := &memory.Record{
				ID:         "r1",
				Content:    "something useful",
				Date:       "2026-02-10",
				Source:     memory.SourceManual,
				Complexity: memory.ComplexityLow,
			}
			Expect(r.Validate()).To(Succeed())
		})

		It("rejects malformed dates", func() {
			r := &memory.Record{
				Content:    "something useful",
				Date:       "02/10/2026",
				Source:     memory.SourceManual,
				Complexity: memory.ComplexityLow,
			}
			Expect(r.Validate()).To(MatchError(ContainSubstring("date")))
		})

		It("rejects impossible calendar dates", func() {
			r := &memory.Record{
				Content:    "something useful",
				Date:       "2026-02-30",
				Source:     memory.SourceManual,
				Complexity: memory.ComplexityLow,
			}
			Expect(r.Validate()).NotTo(Succeed())
		})

		It("rejects unknown sources", func() {
			r := &memory.Record{
				Content:    "something useful",
				Date:       "2026-02-10",
				Source:     "carrier-pigeon",
				Complexity: memory.ComplexityLow,
			}
			Expect(r.Validate()).To(MatchError(ContainSubstring("source")))
		})
	})

	Describe("Clone", func() {
		It("does not alias slices or metadata", func() {
			r := &memory.Record{
				Content:      "content",
				Technologies: []string{"go"},
				Metadata:     map[string]string{"k": "v"},
			}
			c := r.Clone()
			c.Technologies[0] = "rust"
			c.Metadata["k"] = "changed"

			Expect(r.Technologies[0]).To(Equal("go"))
			Expect(r.Metadata["k"]).To(Equal("v"))
		})
	})
})

var _ = Describe("Heuristics", func() {
	Describe("DeriveTitle", func() {
		It("uses the first meaningful line", func() {
			title := memory.DeriveTitle("# Fixed the websocket reconnect loop\n\ndetails follow")
			Expect(title).To(Equal("Fixed the websocket reconnect loop"))
		})

		It("falls back to the default title", func() {
			Expect(memory.DeriveTitle("short\nok")).To(Equal(memory.DefaultTitle))
		})
	})

	Describe("AssessComplexity", func() {
		It("rates code fences as high", func() {
			Expect(memory.AssessComplexity("```go\nfmt.Println()\n```")).To(Equal(memory.ComplexityHigh))
		})

		It("rates long prose as medium", func() {
			Expect(memory.AssessComplexity(strings.Repeat("a", 600))).To(Equal(memory.ComplexityMedium))
		})

		It("rates short prose as low", func() {
			Expect(memory.AssessComplexity("quick note")).To(Equal(memory.ComplexityLow))
		})
	})

	Describe("ScoreQuality", func() {
		It("caps at 1.0", func() {
			r := &memory.Record{
				Content: strings.Repeat("word ", 200) + "\n```js\ncode\n```",
				Title:   "Everything set",
				Date:    "2026-01-01",
				Source:  memory.SourceManual,
				Technologies: []string{
					"javascript",
				},
				Complexity: memory.ComplexityHigh,
			}
			Expect(memory.ScoreQuality(r)).To(BeNumerically("<=", 1.0))
			Expect(memory.ScoreQuality(r)).To(BeNumerically(">=", 0.9))
		})
	})
})
