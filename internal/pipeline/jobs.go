package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusPublishing JobStatus = "publishing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusDupSkipped:
		return true
	}
	return false
}

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Force    bool      `json:"force"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData    []byte
	document    *doctree.Document
	parseErrors []doctree.ParseError
	errors      []string
}

// Progress tracks processing progress.
type Progress struct {
	Sections      int      `json:"sections"`
	Entries       int      `json:"entries"`
	ParseErrors   int      `json:"parse_errors"`
	NodesWritten  int      `json:"nodes_written"`
	ParseDuration int64    `json:"parse_ms"`
	Errors        []string `json:"errors"`
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

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// NewJob creates a queued job for an uploaded document.
func NewJob(filename, docID string, data []byte) *Job {
	now := time.Now()
	if docID == "" {
		docID = ContentHashHex(data)[:16]
	}
	return &Job{
		ID:        NewJobID(),
		DocID:     docID,
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetResult stores the parsed document and its block errors.
func (j *Job) SetResult(doc doctree.Document, errs []doctree.ParseError, parseMs int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.document = &doc
	j.parseErrors = errs
	j.Progress.Sections = len(doc.Sections)
	j.Progress.Entries = doc.EntryCount()
	j.Progress.ParseErrors = len(errs)
	j.Progress.ParseDuration = parseMs
	j.UpdatedAt = time.Now()
}

// SetContentHash records the hash of the uploaded bytes.
func (j *Job) SetContentHash(hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = hash
}

// IncrNodesWritten atomically increments the published node count.
func (j *Job) IncrNodesWritten() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.NodesWritten++
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFileData drops the upload once it has been parsed.
func (j *Job) releaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash,omitempty"`
	Progress    Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	progress := j.Progress
	progress.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		ContentHash: j.ContentHash,
		Progress:    progress,
	}
}

// JobResult is the parsed output of a finished job.
type JobResult struct {
	DocID    string               `json:"doc_id"`
	Status   JobStatus            `json:"status"`
	Document *doctree.Document    `json:"document"`
	Errors   []doctree.ParseError `json:"errors"`
}

// Result returns the parsed document, or false while the job has none.
func (j *Job) Result() (JobResult, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.document == nil {
		return JobResult{}, false
	}
	errs := j.parseErrors
	if errs == nil {
		errs = []doctree.ParseError{}
	}
	return JobResult{
		DocID:    j.DocID,
		Status:   j.Status,
		Document: j.document,
		Errors:   errs,
	}, true
}

// NewJobID returns a time-ordered job identifier.
func NewJobID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
