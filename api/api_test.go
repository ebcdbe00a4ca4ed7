package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/curator"
	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/hooks"
	"github.com/engramhq/engram/pkg/memory"
	memstore "github.com/engramhq/engram/pkg/memory/inmemory"
	"github.com/engramhq/engram/pkg/search"
	"github.com/engramhq/engram/pkg/session"
	vecstore "github.com/engramhq/engram/pkg/vector/inmemory"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Suite")
}

// testEnvelope mirrors Envelope with raw data for per-test decoding.
type testEnvelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    *ErrorBody      `json:"error"`
	Metadata *Metadata       `json:"metadata"`
}

var _ = Describe("Server", func() {
	var (
		server *Server
		svc    *memory.Service
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

		searcher := search.NewSearcher(svc, search.Config{}, zap.NewNop())
		cur := curator.NewCurator(svc, curator.Config{}, zap.NewNop())
		dispatcher, err := hooks.NewDispatcher(session.NewTracker(), searcher, svc, hooks.Config{}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		server = NewServer(Config{ListenAddr: ":0"}, svc, searcher, cur, dispatcher, nil, zap.NewNop())
	})

	do := func(method, path string, body any) (*http.Response, testEnvelope) {
		var reader *bytes.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req, int((5 * time.Second).Milliseconds()))
		Expect(err).NotTo(HaveOccurred())

		var env testEnvelope
		Expect(json.NewDecoder(resp.Body).Decode(&env)).To(Succeed())
		return resp, env
	}

	addRecord := func(content string) string {
		resp, env := do(http.MethodPost, "/api/add_memory", map[string]any{"content": content})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(env.Success).To(BeTrue())

		var data struct {
			ID string `json:"id"`
		}
		Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
		Expect(data.ID).NotTo(BeEmpty())
		return data.ID
	}

	Describe("GET /api/health", func() {
		It("reports status and record count", func() {
			addRecord("Fixed the invoice rounding bug in the billing worker")

			resp, env := do(http.MethodGet, "/api/health", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				Status      string `json:"status"`
				RecordCount int    `json:"record_count"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.Status).To(Equal("ok"))
			Expect(data.RecordCount).To(Equal(1))
		})

		It("stamps every envelope with request metadata", func() {
			resp, env := do(http.MethodGet, "/api/health", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(env.Metadata).NotTo(BeNil())
			Expect(env.Metadata.Timestamp).NotTo(BeEmpty())
			Expect(env.Metadata.RequestID).To(Equal(resp.Header.Get("X-Request-ID")))
			Expect(env.Metadata.ExecutionMs).To(BeNumerically(">=", 0))
		})
	})

	Describe("POST /api/add_memory", func() {
		It("stores a record and returns its id and title", func() {
			resp, env := do(http.MethodPost, "/api/add_memory", map[string]any{
				"content":      "Fixed null pointer in auth module by adding a guard clause",
				"title":        "Auth Fix",
				"source":       "manual",
				"technologies": []string{"auth"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.Title).To(Equal("Auth Fix"))
		})

		It("rejects an empty content with 400", func() {
			resp, env := do(http.MethodPost, "/api/add_memory", map[string]any{"content": ""})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(env.Success).To(BeFalse())
			Expect(env.Error.Message).To(ContainSubstring("content"))
		})
	})

	Describe("POST /api/search", func() {
		It("retrieves a stored record by similar text", func() {
			addRecord("Fixed null pointer in auth module by adding a guard clause")

			resp, env := do(http.MethodPost, "/api/search", map[string]any{
				"query":                "null pointer auth",
				"max_results":          3,
				"similarity_threshold": 0.3,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				TotalResults int `json:"total_results"`
				Results      []struct {
					Record struct {
						Content string `json:"content"`
					} `json:"record"`
					Similarity float64 `json:"similarity"`
				} `json:"results"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.TotalResults).To(BeNumerically(">=", 1))
			Expect(data.Results[0].Record.Content).To(ContainSubstring("null pointer"))
		})

		It("returns zero results above any achievable similarity", func() {
			addRecord("Fixed the invoice rounding bug in the billing worker")

			resp, env := do(http.MethodPost, "/api/search", map[string]any{
				"query":                "invoice rounding",
				"similarity_threshold": 1.1,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				TotalResults int `json:"total_results"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.TotalResults).To(BeZero())
		})

		It("rejects an empty query with 400", func() {
			resp, _ := do(http.MethodPost, "/api/search", map[string]any{"query": ""})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/memories", func() {
		It("pages results newest first", func() {
			for i := 0; i < 3; i++ {
				addRecord(fmt.Sprintf("Documented deploy step %d for the release runbook", i))
			}

			resp, env := do(http.MethodGet, "/api/memories?page=1&limit=2", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				Records    []json.RawMessage `json:"records"`
				Pagination struct {
					Total int `json:"total"`
				} `json:"pagination"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.Records).To(HaveLen(2))
			Expect(data.Pagination.Total).To(Equal(3))
		})
	})

	Describe("DELETE /api/memory/:id", func() {
		It("removes a record", func() {
			id := addRecord("Temporary note about the migration ordering")

			resp, env := do(http.MethodDelete, "/api/memory/"+id, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
		})

		It("reports an unknown id inside the envelope", func() {
			resp, env := do(http.MethodDelete, "/api/memory/does-not-exist", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeFalse())
			Expect(env.Error.Operation).To(Equal("delete"))
		})
	})

	Describe("POST /api/reindex", func() {
		It("requires confirmation", func() {
			resp, _ := do(http.MethodPost, "/api/reindex", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rebuilds the index and reports statistics", func() {
			addRecord("Fixed the invoice rounding bug in the billing worker")
			addRecord("Documented the webhook signature validation flow")

			resp, env := do(http.MethodPost, "/api/reindex", map[string]any{"confirm": true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				IndexedRecords int `json:"indexed_records"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.IndexedRecords).To(Equal(2))
		})
	})

	Describe("curator endpoints", func() {
		It("reports corpus health", func() {
			addRecord("Fixed the invoice rounding bug in the billing worker")

			resp, env := do(http.MethodGet, "/api/curator/health", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				TotalRecords int `json:"total_records"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.TotalRecords).To(Equal(1))
		})

		It("deduplicates via dry run without changing anything", func() {
			content := "Resolved the session cookie domain mismatch that logged users out after deploys to the staging environment by pinning the cookie domain in the auth middleware"
			addRecord(content)
			addRecord(content + " and adding a regression test")

			resp, env := do(http.MethodPost, "/api/curator/deduplicate", map[string]any{"dry_run": true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				DryRun  bool     `json:"dry_run"`
				Removed []string `json:"removed"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.DryRun).To(BeTrue())
			Expect(data.Removed).To(HaveLen(1))

			healthResp, healthEnv := do(http.MethodGet, "/api/health", nil)
			Expect(healthResp.StatusCode).To(Equal(http.StatusOK))
			var health struct {
				RecordCount int `json:"record_count"`
			}
			Expect(json.Unmarshal(healthEnv.Data, &health)).To(Succeed())
			Expect(health.RecordCount).To(Equal(2))
		})

		It("consolidates records by id", func() {
			a := addRecord("Notes covering the first half of the payment gateway integration work")
			b := addRecord("Notes covering the second half of the payment gateway integration work")

			resp, env := do(http.MethodPost, "/api/curator/consolidate", map[string]any{
				"ids":   []string{a, b},
				"title": "Payment gateway integration",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				ConsolidatedID string `json:"consolidated_id"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.ConsolidatedID).NotTo(BeEmpty())
		})

		It("reports a consolidation conflict inside the envelope", func() {
			a := addRecord("Notes covering the first half of the payment gateway integration work")

			resp, env := do(http.MethodPost, "/api/curator/consolidate", map[string]any{
				"ids": []string{a, "missing-id"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeFalse())
			Expect(env.Error.Operation).To(Equal("consolidate"))
		})

		It("archives old records", func() {
			resp, env := do(http.MethodPost, "/api/curator/archive", map[string]any{"days": 30})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
		})

		It("runs the combined auto-curation pass", func() {
			addRecord("Fixed the invoice rounding bug in the billing worker")

			resp, env := do(http.MethodPost, "/api/curator/autocurate", map[string]any{"dry_run": true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
		})
	})

	Describe("active endpoints", func() {
		startSession := func(id, project string) {
			resp, env := do(http.MethodPost, "/api/active/hook", map[string]any{
				"type":       "session_start",
				"session_id": id,
				"project":    project,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
		}

		It("tracks the session lifecycle through hook events", func() {
			startSession("s1", "billing")

			resp, env := do(http.MethodGet, "/api/active/status", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var status struct {
				ActiveSessions int      `json:"active_sessions"`
				SessionIDs     []string `json:"session_ids"`
			}
			Expect(json.Unmarshal(env.Data, &status)).To(Succeed())
			Expect(status.ActiveSessions).To(Equal(1))
			Expect(status.SessionIDs).To(Equal([]string{"s1"}))

			resp, env = do(http.MethodPost, "/api/active/hook", map[string]any{
				"type":       "session_end",
				"session_id": "s1",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			resp, env = do(http.MethodGet, "/api/active/status", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &status)).To(Succeed())
			Expect(status.ActiveSessions).To(BeZero())
		})

		It("returns the context snapshot for a session", func() {
			startSession("s1", "billing")

			resp, env := do(http.MethodGet, "/api/active/context?session_id=s1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var data struct {
				SessionID string `json:"session_id"`
				State     string `json:"state"`
			}
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.SessionID).To(Equal("s1"))
			Expect(data.State).To(Equal("active"))
		})

		It("reports an unknown session inside the envelope", func() {
			resp, env := do(http.MethodGet, "/api/active/context?session_id=ghost", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeFalse())
		})

		It("surfaces and drains advisories through check_before_action and decisions", func() {
			addErr := func() {
				resp, env := do(http.MethodPost, "/api/add_memory", map[string]any{
					"content": "login.py auth error bug fix: NoneType crash in the login.py handler",
					"title":   "Error (null-reference): login.py",
					"metadata": map[string]string{
						"error_kind": "null-reference",
					},
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(env.Success).To(BeTrue())
			}
			addErr()
			startSession("s1", "")

			resp, env := do(http.MethodPost, "/api/active/check_before_action", map[string]any{
				"session_id": "s1",
				"file_path":  "auth/login.py",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())

			var check struct {
				ShouldProceed bool `json:"should_proceed"`
				Warnings      []struct {
					ErrorKind string `json:"error_kind"`
				} `json:"warnings"`
			}
			Expect(json.Unmarshal(env.Data, &check)).To(Succeed())
			Expect(check.ShouldProceed).To(BeTrue())
			Expect(check.Warnings).NotTo(BeEmpty())

			resp, env = do(http.MethodGet, "/api/active/decisions?session_id=s1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var decisions struct {
				Advisories []json.RawMessage `json:"advisories"`
			}
			Expect(json.Unmarshal(env.Data, &decisions)).To(Succeed())
			Expect(decisions.Advisories).To(HaveLen(len(check.Warnings)))

			// Drained; a second read comes back empty.
			resp, env = do(http.MethodGet, "/api/active/decisions?session_id=s1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(env.Data, &decisions)).To(Succeed())
			Expect(decisions.Advisories).To(BeEmpty())
		})

		It("rejects a hook event without a session id", func() {
			resp, _ := do(http.MethodPost, "/api/active/hook", map[string]any{
				"type": "session_start",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
