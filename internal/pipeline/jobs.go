package pipeline

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/parser"
)

// JobStatus represents the state of an extraction job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracting JobStatus = "extracting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
	StatusTimedOut   JobStatus = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Job tracks the state of a single document extraction.
type Job struct {
	mu sync.Mutex

	ID       string      `json:"job_id"`
	Filename string      `json:"filename"`
	Kind     parser.Kind `json:"kind"`
	Size     int         `json:"size"`

	Status  JobStatus `json:"status"`
	Percent float64   `json:"percent"`
	Error   string    `json:"error,omitempty"`
	Cached  bool      `json:"cached,omitempty"`

	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   *doctree.Result
	cancel   func() bool
}

func NewJob(id, filename string, kind parser.Kind, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Filename:    filename,
		Kind:        kind,
		Size:        len(data),
		Status:      StatusQueued,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// FindCompleted returns the result of a finished job with the same content.
func (s *JobStore) FindCompleted(hash string) (doctree.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if res, ok := job.completedResult(hash); ok {
			return res, true
		}
	}
	return doctree.Result{}, false
}

// Cleanup removes expired jobs that are no longer running.
func (s *JobStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// SetStatus updates job status atomically. Terminal states are sticky.
func (j *Job) SetStatus(status JobStatus) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	return true
}

// SetPercent records extraction progress.
func (j *Job) SetPercent(pct float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Percent = pct
	j.UpdatedAt = time.Now()
}

// Complete stores the result and releases the upload.
func (j *Job) Complete(res doctree.Result, cached bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.result = &res
	j.Status = StatusCompleted
	j.Percent = 100
	j.Cached = cached
	j.fileData = nil
	j.cancel = nil
	j.UpdatedAt = time.Now()
}

// Fail records err and picks the status from its kind.
func (j *Job) Fail(err error) {
	status := StatusFailed
	switch {
	case errors.Is(err, ErrTimeout):
		status = StatusTimedOut
	case errors.Is(err, ErrCancelled):
		status = StatusCancelled
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Status = status
	j.Error = err.Error()
	j.fileData = nil
	j.cancel = nil
	j.UpdatedAt = time.Now()
}

// Result returns the extraction result once the job has completed.
func (j *Job) Result() (doctree.Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.result == nil {
		return doctree.Result{}, false
	}
	return *j.result, true
}

func (j *Job) completedResult(hash string) (doctree.Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.result == nil || j.ContentHash != hash {
		return doctree.Result{}, false
	}
	return *j.result, true
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

func (j *Job) setCancel(fn func() bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = fn
}

// Cancel stops the job. A queued job is marked cancelled and skipped by
// the workers; a running one has its context cancelled.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	switch {
	case j.Status == StatusQueued:
		j.Status = StatusCancelled
		j.Error = ErrCancelled.Error()
		j.fileData = nil
		j.UpdatedAt = time.Now()
		j.mu.Unlock()
		return true
	case j.Status.Terminal() || j.cancel == nil:
		j.mu.Unlock()
		return false
	}
	cancel := j.cancel
	j.mu.Unlock()
	return cancel()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string      `json:"job_id"`
	Filename    string      `json:"filename"`
	Kind        parser.Kind `json:"kind"`
	Size        int         `json:"size"`
	Status      JobStatus   `json:"status"`
	Percent     float64     `json:"percent"`
	Error       string      `json:"error,omitempty"`
	Cached      bool        `json:"cached,omitempty"`
	PageCount   int         `json:"page_count,omitempty"`
	ContentHash string      `json:"content_hash"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		Kind:        j.Kind,
		Size:        j.Size,
		Status:      j.Status,
		Percent:     j.Percent,
		Error:       j.Error,
		Cached:      j.Cached,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.result != nil {
		snap.PageCount = j.result.PageCount
	}
	return snap
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
