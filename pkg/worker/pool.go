// Package worker provides an asynchronous worker pool for persisting memory
// records through a memory.Service.
//
// The pool decouples record writes from the HTTP hot path: callers that do
// not need the stored id back can enqueue and return immediately, with the
// embedding and storage work happening in the background.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Record to store. Enrichment and validation happen at store time,
	// same as a synchronous Add.
	Record *memory.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Service is the memory service records are written through.
	Service *memory.Service

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes record writes asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Service == nil {
		return nil, fmt.Errorf("worker: memory service is required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Record == nil {
		p.logger.Error("job not queued, nil record")
		return false
	}
	select {
	case p.queue <- job:
		p.logger.Debug("record write queued",
			zap.String("source", job.Record.Source),
			zap.String("project", job.Record.Project),
		)
		return true
	default:
		p.logger.Error("record write not queued, queue full, job dropped",
			zap.String("source", job.Record.Source),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("record worker stopped", zap.Uint("worker_id", id))
}

// processJob stores one record. Errors are logged, not propagated; the
// caller already moved on.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	stored, err := p.config.Service.Add(ctx, job.Record)
	if err != nil {
		p.logger.Error("async record write failed",
			zap.String("source", job.Record.Source),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("record stored",
		zap.String("id", stored.ID),
		zap.String("title", stored.Title),
	)
}
