package inmemory_test

import (
	"context"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/memory/inmemory"
)

func TestInMemoryStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "In-Memory Record Store Suite")
}

func record(id, date string) *memory.Record {
	return &memory.Record{
		ID:         id,
		Content:    "content for " + id,
		Date:       date,
		Source:     memory.SourceManual,
		Complexity: memory.ComplexityLow,
	}
}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *inmemory.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
	})

	Describe("Update", func() {
		It("replaces a stored record", func() {
			Expect(store.Add(ctx, record("r1", "2026-01-01"))).To(Succeed())

			updated := record("r1", "2026-01-01")
			updated.Title = "updated title"
			Expect(store.Update(ctx, updated)).To(Succeed())

			got, err := store.Get(ctx, "r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("updated title"))
		})

		It("returns NotFoundError for unknown ids", func() {
			err := store.Update(ctx, record("ghost", "2026-01-01"))
			var nf memory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nf))
		})
	})

	Describe("archived visibility", func() {
		BeforeEach(func() {
			Expect(store.Add(ctx, record("live", "2026-01-02"))).To(Succeed())

			archived := record("old", "2026-01-01")
			archived.Archived = true
			Expect(store.Add(ctx, archived)).To(Succeed())
		})

		It("hides archived records from default listing", func() {
			records, total, err := store.List(ctx, memory.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("live"))
		})

		It("shows archived records when asked", func() {
			records, total, err := store.List(ctx, memory.ListOptions{IncludeArchived: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(2))
			Expect(records).To(HaveLen(2))
		})

		It("keeps archived records retrievable by id", func() {
			got, err := store.Get(ctx, "old")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Archived).To(BeTrue())
		})

		It("excludes archived records from Count", func() {
			count, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})
	})

	Describe("pagination", func() {
		BeforeEach(func() {
			for i := 0; i < 60; i++ {
				id := fmt.Sprintf("r%02d", i)
				Expect(store.Add(ctx, record(id, "2026-01-15"))).To(Succeed())
			}
		})

		It("caps the page size", func() {
			records, total, err := store.List(ctx, memory.ListOptions{PageSize: 500})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(60))
			Expect(records).To(HaveLen(memory.MaxPageSize))
		})

		It("defaults the page size", func() {
			records, _, err := store.List(ctx, memory.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(memory.DefaultPageSize))
		})

		It("returns an empty page past the end", func() {
			records, total, err := store.List(ctx, memory.ListOptions{Page: 100})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(60))
			Expect(records).To(BeEmpty())
		})

		It("orders ties by id for stable pages", func() {
			records, _, err := store.List(ctx, memory.ListOptions{PageSize: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].ID).To(Equal("r00"))
			Expect(records[1].ID).To(Equal("r01"))
			Expect(records[2].ID).To(Equal("r02"))
		})
	})
})
