package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docextract/internal/config"
	"github.com/dgallion1/docextract/internal/parser"
	"github.com/dgallion1/docextract/internal/toc"
)

// Orchestrator runs extraction jobs on a pool of workers. Each worker owns
// one Coordinator, so at most one job per worker is in flight.
type Orchestrator struct {
	jobs  *JobStore
	queue chan *Job
	log   *slog.Logger
	cfg   config.Config
	stats *ExtractStats

	newCoordinator func() *Coordinator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		jobs:  NewJobStore(cfg.JobTTL),
		queue: make(chan *Job, cfg.MaxQueueSize),
		log:   log,
		cfg:   cfg,
		stats: NewExtractStats(time.Hour),
	}
	o.newCoordinator = func() *Coordinator {
		return NewCoordinator(log,
			WithMaxBytes(cfg.MaxUploadBytes),
			WithTimeout(cfg.ExtractTimeout),
			WithExtractor(NewExtractor(ExtractorFromConfig(cfg, log))),
		)
	}
	return o
}

// ExtractorFromConfig maps service settings onto extractor settings.
func ExtractorFromConfig(cfg config.Config, log *slog.Logger) ExtractorConfig {
	return ExtractorConfig{
		TOC: toc.Options{
			ScanPages:            cfg.HeadingScanPages,
			FallbackOnUnresolved: cfg.OutlineFallthrough,
			Logger:               log,
		},
		Parser:          parser.Options{BlocksPerPage: cfg.BlocksPerPage},
		SkipFailedPages: cfg.SkipFailedPages,
		Logger:          log,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			coord := o.newCoordinator()
			log := o.log.With("worker", i)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, coord, job, log)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if n := o.jobs.Cleanup(); n > 0 {
					o.log.Debug("expired jobs removed", "count", n)
				}
			}
		}
	}()
}

// Stop cancels running jobs and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

func (o *Orchestrator) process(ctx context.Context, coord *Coordinator, job *Job, log *slog.Logger) {
	log = log.With("job_id", job.ID, "filename", job.Filename)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	job.setCancel(func() bool {
		cancel(ErrCancelled)
		return true
	})
	// A previous job that timed out may still be closing its document.
	if err := coord.WaitIdle(jobCtx); err != nil {
		log.Info("worker stopped while waiting for previous extraction", "cause", err)
		job.Fail(fmt.Errorf("%w: %v", ErrCancelled, err))
		return
	}
	if !job.SetStatus(StatusExtracting) {
		log.Info("skipping job", "status", job.Snapshot().Status)
		return
	}

	start := time.Now()
	res, err := coord.Submit(jobCtx, job.FileData(), job.Filename, job.SetPercent)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		job.Fail(err)
		return
	}
	o.stats.Record(time.Since(start).Milliseconds(), res.PageCount)
	job.Complete(res, false)
	log.Info("job completed", "pages", res.PageCount, "outline_entries", len(res.Outline))
}

// Submit validates the upload and queues it. Size and type errors are
// returned before a job is created. A document identical to one already
// extracted completes immediately from the stored result.
func (o *Orchestrator) Submit(filename string, data []byte) (*Job, error) {
	kind, err := Validate(data, filename, o.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	job := NewJob(uuid.NewString(), filename, kind, data)
	if res, ok := o.jobs.FindCompleted(job.ContentHash); ok {
		res.Name = filename
		job.Complete(res, true)
		o.jobs.Put(job)
		o.log.Info("duplicate document, reusing result", "job_id", job.ID, "filename", filename)
		return job, nil
	}

	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return job, nil
	default:
		o.jobs.Delete(job.ID)
		return nil, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// Cancel stops a queued or running job.
func (o *Orchestrator) Cancel(id string) (*Job, bool) {
	job := o.jobs.Get(id)
	if job == nil {
		return nil, false
	}
	return job, job.Cancel()
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the extraction latency tracker.
func (o *Orchestrator) Stats() *ExtractStats {
	return o.stats
}
