package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docextract/internal/doctree"
)

// DefaultTimeout bounds a single extraction.
const DefaultTimeout = 30 * time.Second

// Coordinator accepts documents one at a time, validates them and drives an
// extractor to a result, an error, a timeout or a cancellation.
type Coordinator struct {
	log       *slog.Logger
	extractor *Extractor
	maxBytes  int64
	timeout   time.Duration

	mu     sync.Mutex
	active *activeJob
}

// activeJob holds the coordinator's single slot. released closes once the
// extractor has exited, which may be after Submit has returned.
type activeJob struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	timer    *time.Timer
	once     sync.Once
	released chan struct{}
}

func newActiveJob(ctx context.Context, cancel context.CancelCauseFunc, timer *time.Timer) *activeJob {
	return &activeJob{ctx: ctx, cancel: cancel, timer: timer, released: make(chan struct{})}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithMaxBytes(n int64) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithExtractor(e *Extractor) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.extractor = e
		}
	}
}

func NewCoordinator(log *slog.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		log:      log,
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.extractor == nil {
		c.extractor = NewExtractor(ExtractorConfig{Logger: log, SkipFailedPages: true})
	}
	return c
}

// Submit extracts text and outline from data. onProgress, if non-nil, is
// called on the calling goroutine with each page's percentage.
//
// Size and type are checked before any extraction work starts. Only one
// job runs at a time; a second Submit fails with ErrBusy. After a timeout or
// cancellation Submit returns at once, but the coordinator stays busy until
// the extractor has closed the document.
func (c *Coordinator) Submit(ctx context.Context, data []byte, name string, onProgress func(float64)) (doctree.Result, error) {
	kind, err := Validate(data, name, c.maxBytes)
	if err != nil {
		c.log.Info("document rejected", "name", name, "bytes", len(data), "error", err)
		return doctree.Result{}, err
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return doctree.Result{}, ErrBusy
	}
	jctx, cancel := context.WithCancelCause(ctx)
	job := newActiveJob(jctx, cancel, time.AfterFunc(c.timeout, func() { cancel(ErrTimeout) }))
	c.active = job
	c.mu.Unlock()

	msgs := c.extractor.Start(jctx, Request{Data: data, Name: name, Kind: kind})
	drained := false
	defer func() { c.teardown(job, msgs, drained) }()

	for {
		select {
		case <-jctx.Done():
			return doctree.Result{}, c.stopped(jctx, name)
		case msg, ok := <-msgs:
			if !ok {
				drained = true
			}
			if jctx.Err() != nil {
				return doctree.Result{}, c.stopped(jctx, name)
			}
			if !ok {
				return doctree.Result{}, fmt.Errorf("%w: extractor exited without a result", ErrExtraction)
			}
			switch m := msg.(type) {
			case ProgressEvent:
				if onProgress != nil {
					onProgress(m.Percent)
				}
			case ResultEvent:
				drain(msgs)
				drained = true
				return m.Result, nil
			case ErrorEvent:
				drain(msgs)
				drained = true
				return doctree.Result{}, m.Err
			}
		}
	}
}

// Cancel stops the running job, if any. Its Submit returns ErrCancelled.
// A job that already timed out or was cancelled reports false.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	job := c.active
	c.mu.Unlock()
	if job == nil || job.ctx.Err() != nil {
		return false
	}
	job.cancel(ErrCancelled)
	return true
}

// Busy reports whether a job holds the slot, including one whose Submit
// has returned but whose extractor has not yet exited.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// WaitIdle blocks until no job holds the slot or ctx is done.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		job := c.active
		c.mu.Unlock()
		if job == nil {
			return nil
		}
		select {
		case <-job.released:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// teardown stops the job's timer and context. When msgs has not been
// drained yet the slot is released in the background once the extractor
// closes it.
func (c *Coordinator) teardown(job *activeJob, msgs <-chan Message, drained bool) {
	job.timer.Stop()
	job.cancel(ErrCancelled)
	if drained {
		c.release(job)
		return
	}
	go func() {
		drain(msgs)
		c.log.Debug("extractor exited after submit returned")
		c.release(job)
	}()
}

// release is idempotent per job and never clears a newer job.
func (c *Coordinator) release(job *activeJob) {
	job.once.Do(func() {
		c.mu.Lock()
		if c.active == job {
			c.active = nil
		}
		c.mu.Unlock()
		close(job.released)
	})
}

func (c *Coordinator) stopped(jctx context.Context, name string) error {
	cause := context.Cause(jctx)
	switch {
	case errors.Is(cause, ErrTimeout):
		c.log.Warn("extraction timed out", "name", name, "timeout", c.timeout)
		return ErrTimeout
	case errors.Is(cause, ErrCancelled):
		c.log.Info("extraction cancelled", "name", name)
		return ErrCancelled
	case errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, cause)
	default:
		return fmt.Errorf("%w: %v", ErrCancelled, cause)
	}
}

// drain waits for the extractor to close its channel, which it does after
// closing the document.
func drain(msgs <-chan Message) {
	for range msgs {
	}
}
