package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/bibgest/internal/catalog"
	"github.com/dgallion1/bibgest/internal/config"
	"github.com/dgallion1/bibgest/internal/pathstore"
)

// Orchestrator manages the document ingestion pipeline.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	walker *catalog.Walker
	ps     *pathstore.Client
	stats  *Stats
	log    *slog.Logger
	cfg    config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. A nil pathstore client disables
// publishing.
func NewOrchestrator(cfg config.Config, walker *catalog.Walker, ps *pathstore.Client, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		walker: walker,
		ps:     ps,
		stats:  NewStats(cfg.StatsWindow),
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.walker, o.ps, o.stats, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the rolling parse statistics.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// PathstoreClient returns the pathstore client for direct use by API
// handlers, or nil when publishing is disabled.
func (o *Orchestrator) PathstoreClient() *pathstore.Client {
	return o.ps
}
