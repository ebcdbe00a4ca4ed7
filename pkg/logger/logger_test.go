package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramhq/engram/pkg/logger"
)

func TestLogger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logger Suite")
}

var _ = Describe("NewLogger", func() {
	It("writes to the provided writer", func() {
		var buf bytes.Buffer
		log := logger.NewLoggerWithWriters(false, &buf)
		log.Info("hello")
		log.Sync()
		Expect(buf.String()).To(ContainSubstring("hello"))
	})

	It("suppresses debug output when debug is disabled", func() {
		var buf bytes.Buffer
		log := logger.NewLoggerWithWriters(false, &buf)
		log.Debug("invisible")
		log.Sync()
		Expect(buf.String()).NotTo(ContainSubstring("invisible"))
	})

	It("emits debug output when debug is enabled", func() {
		var buf bytes.Buffer
		log := logger.NewLoggerWithWriters(true, &buf)
		log.Debug("visible")
		log.Sync()
		Expect(buf.String()).To(ContainSubstring("visible"))
	})
})

var _ = Describe("New", func() {
	It("produces JSON records with WithJSON", func() {
		var buf bytes.Buffer
		log := logger.New(logger.WithJSON(true), logger.WithWriter(&buf))
		log.Info("structured", "key", "value")

		var record map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
		Expect(record["msg"]).To(Equal("structured"))
		Expect(record["key"]).To(Equal("value"))
	})
})

var _ = Describe("Multi", func() {
	It("fans records out to every handler", func() {
		var a, b bytes.Buffer
		la := logger.New(logger.WithJSON(true), logger.WithWriter(&a))
		lb := logger.New(logger.WithJSON(true), logger.WithWriter(&b))

		multi := logger.Multi(la, lb)
		multi.Info("both")

		Expect(a.String()).To(ContainSubstring("both"))
		Expect(b.String()).To(ContainSubstring("both"))
	})

	It("respects per-handler levels", func() {
		var a, b bytes.Buffer
		la := logger.New(logger.WithJSON(true), logger.WithWriter(&a), logger.WithDebug(true))
		lb := logger.New(logger.WithJSON(true), logger.WithWriter(&b), logger.WithDebug(false))

		multi := logger.Multi(la, lb)
		multi.Log(context.Background(), slog.LevelDebug, "debug only")

		Expect(a.String()).To(ContainSubstring("debug only"))
		Expect(b.String()).To(BeEmpty())
	})
})
