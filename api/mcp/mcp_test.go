package mcp_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/api/mcp"
	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/memory"
	memstore "github.com/engramhq/engram/pkg/memory/inmemory"
	"github.com/engramhq/engram/pkg/search"
	vecstore "github.com/engramhq/engram/pkg/vector/inmemory"
)

func TestMCP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "MCP Suite")
}

var _ = Describe("MCP Server", func() {
	var (
		server   *mcp.Server
		svc      *memory.Service
		searcher *search.Searcher
	)

	BeforeEach(func() {
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

		server, err = mcp.NewServer(mcp.Config{
			Searcher: searcher,
			Service:  svc,
			Logger:   zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when searcher is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Service: svc,
				Logger:  zap.NewNop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("searcher is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Searcher: searcher,
				Service:  svc,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a server with valid config", func() {
			Expect(server).NotTo(BeNil())
		})

		It("creates a server without a memory service", func() {
			s, err := mcp.NewServer(mcp.Config{
				Searcher: searcher,
				Logger:   zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(s).NotTo(BeNil())
		})

		It("creates an empty server when noop is set", func() {
			s, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(s).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			handler := server.Handler()
			Expect(handler).NotTo(BeNil())
		})
	})
})
