package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/bibgest/internal/catalog"
	"github.com/dgallion1/bibgest/internal/citation"
	"github.com/dgallion1/bibgest/internal/config"
	"github.com/dgallion1/bibgest/internal/pathstore"
	"github.com/dgallion1/bibgest/internal/relator"
)

const cleanDoc = `### Index

### Index

### Go

* [The Go Book](https://go.example) - Ann Smith
`

const faultyDoc = `### Index

### Index

### Go

* not a link
* [The Go Book](https://go.example)
`

// fakePathstore is an in-memory pathstore KV server.
type fakePathstore struct {
	mu           sync.Mutex
	nodes        map[string]json.RawMessage
	failPuts     map[string]int // key -> remaining 503 responses
	rejectSuffix string         // puts to keys ending in it get a 400
}

func newFakePathstore() *fakePathstore {
	return &fakePathstore{nodes: map[string]json.RawMessage{}, failPuts: map[string]int{}}
}

func (f *fakePathstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch {
	case r.Method == http.MethodPut:
		if f.rejectSuffix != "" && strings.HasSuffix(key, f.rejectSuffix) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if f.failPuts[key] > 0 {
			f.failPuts[key]--
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
		prefix := strings.TrimSuffix(key, "*")
		var nodes []map[string]any
		for k, v := range f.nodes {
			if strings.HasPrefix(k, prefix) {
				nodes = append(nodes, map[string]any{"key_path": strings.ReplaceAll(k, "/", "."), "value": v})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakePathstore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[key]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWalker() *catalog.Walker {
	return catalog.NewWalker(citation.NewParser(relator.Default()), testLogger(), 1)
}

func init() {
	backoffUnit = time.Millisecond
}

func TestWorker_ParseOnly(t *testing.T) {
	stats := NewStats(time.Hour)
	w := NewWorker(testWalker(), nil, stats, testLogger())
	job := NewJob("free-programming-books-de.md", "", []byte(cleanDoc))

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.Entries != 1 || snap.ContentHash == "" {
		t.Errorf("unexpected progress %+v", snap)
	}
	res, ok := job.Result()
	if !ok || res.Document.Language.Code != "de" {
		t.Fatalf("unexpected result %+v", res)
	}
	if job.FileData() != nil {
		t.Error("expected upload to be released after parsing")
	}
	if stats.Snapshot().Documents != 1 {
		t.Error("expected parse to be recorded in stats")
	}
}

func TestWorker_PartialOnBlockErrors(t *testing.T) {
	w := NewWorker(testWalker(), nil, NewStats(time.Hour), testLogger())
	job := NewJob("books.md", "", []byte(faultyDoc))

	w.Process(context.Background(), job)

	if s := job.Snapshot().Status; s != StatusPartial {
		t.Fatalf("expected partial, got %q", s)
	}
	res, _ := job.Result()
	if len(res.Errors) != 1 || res.Errors[0].StartLine != 7 {
		t.Errorf("unexpected errors %+v", res.Errors)
	}
}

func TestWorker_UnsupportedFormat(t *testing.T) {
	w := NewWorker(testWalker(), nil, NewStats(time.Hour), testLogger())
	job := NewJob("books.pdf", "", []byte("%PDF"))

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "parsing" {
		t.Fatalf("expected failed parsing, got %q/%q", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected one error, got %v", snap.Progress.Errors)
	}
}

func TestWorker_PublishAndDedup(t *testing.T) {
	fake := newFakePathstore()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ps := pathstore.NewClient(srv.URL, "k")

	w := NewWorker(testWalker(), ps, NewStats(time.Hour), testLogger())
	job := NewJob("books.md", "doc1", []byte(faultyDoc))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected partial (block errors), got %q %v", snap.Status, snap.Progress.Errors)
	}
	for _, key := range []string{"catalog/doc1/document", "catalog/doc1/errors", "catalog/doc1/meta"} {
		if !fake.has(key) {
			t.Errorf("expected %s to be published", key)
		}
	}
	if !fake.has("catalog/by_hash/" + snap.ContentHash + "/doc1") {
		t.Error("expected hash index entry")
	}
	if snap.Progress.NodesWritten != 4 {
		t.Errorf("expected 4 nodes written, got %d", snap.Progress.NodesWritten)
	}

	dup := NewJob("books-copy.md", "doc2", []byte(faultyDoc))
	w.Process(context.Background(), dup)
	if s := dup.Snapshot().Status; s != StatusDupSkipped {
		t.Fatalf("expected duplicate_skipped, got %q", s)
	}
	if fake.has("catalog/doc2/document") {
		t.Error("expected duplicate not to be published")
	}

	forced := NewJob("books-copy.md", "doc3", []byte(faultyDoc))
	forced.Force = true
	w.Process(context.Background(), forced)
	if !fake.has("catalog/doc3/document") {
		t.Error("expected forced duplicate to be published")
	}
}

func TestWorker_PublishRetries(t *testing.T) {
	fake := newFakePathstore()
	fake.failPuts["catalog/doc1/document"] = 2
	srv := httptest.NewServer(fake)
	defer srv.Close()

	w := NewWorker(testWalker(), pathstore.NewClient(srv.URL, "k"), NewStats(time.Hour), testLogger())
	job := NewJob("books.md", "doc1", []byte(cleanDoc))
	w.Process(context.Background(), job)

	if s := job.Snapshot().Status; s != StatusCompleted {
		t.Fatalf("expected completed after retries, got %q", s)
	}
	if !fake.has("catalog/doc1/document") {
		t.Error("expected document after retries")
	}
}

func TestWorker_PublishGivesUp(t *testing.T) {
	fake := newFakePathstore()
	fake.failPuts["catalog/doc1/document"] = MaxRetries
	srv := httptest.NewServer(fake)
	defer srv.Close()

	w := NewWorker(testWalker(), pathstore.NewClient(srv.URL, "k"), NewStats(time.Hour), testLogger())
	job := NewJob("books.md", "doc1", []byte(cleanDoc))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial || snap.Phase != "publishing" {
		t.Fatalf("expected partial publishing, got %q/%q", snap.Status, snap.Phase)
	}
	if _, ok := job.Result(); !ok {
		t.Error("expected parsed result to survive publish failure")
	}
	if fake.has("catalog/doc1/meta") {
		t.Error("expected no meta after failed document write")
	}
}

func TestWorker_OptionalWriteFailureIsPartial(t *testing.T) {
	fake := newFakePathstore()
	fake.rejectSuffix = "/meta"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	w := NewWorker(testWalker(), pathstore.NewClient(srv.URL, "k"), NewStats(time.Hour), testLogger())
	job := NewJob("books.md", "doc1", []byte(cleanDoc))
	job.Force = true
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial || snap.Phase != "done" {
		t.Fatalf("expected partial/done, got %q/%q", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 || !strings.Contains(snap.Progress.Errors[0], "catalog/doc1/meta") {
		t.Errorf("expected meta write error, got %v", snap.Progress.Errors)
	}
	if !fake.has("catalog/doc1/document") || fake.has("catalog/doc1/meta") {
		t.Error("expected document published and meta missing")
	}
	if !fake.has("catalog/by_hash/" + snap.ContentHash + "/doc1") {
		t.Error("expected publishing to continue past the failed write")
	}
	if snap.Progress.NodesWritten != 2 {
		t.Errorf("expected 2 nodes written, got %d", snap.Progress.NodesWritten)
	}
}

func TestOrchestrator_SubmitAndComplete(t *testing.T) {
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour, StatsWindow: time.Hour}
	o := NewOrchestrator(cfg, testWalker(), nil, testLogger())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("books.md", "", []byte(cleanDoc))
	if err := o.Submit(job); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if o.GetJob(job.ID) != job {
		t.Fatal("expected job to be tracked")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !job.Snapshot().Status.Done() {
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %q", job.Snapshot().Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s := job.Snapshot().Status; s != StatusCompleted {
		t.Errorf("expected completed, got %q", s)
	}
	if o.Stats().Snapshot().Documents != 1 {
		t.Error("expected stats to record the parse")
	}
	if o.PathstoreClient() != nil {
		t.Error("expected publishing disabled")
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, testWalker(), nil, testLogger())
	// Not started: the queue never drains.

	if err := o.Submit(NewJob("a.md", "", []byte(cleanDoc))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := NewJob("b.md", "", []byte(cleanDoc))
	if err := o.Submit(second); err == nil {
		t.Fatal("expected queue full error")
	}
	if snap := second.Snapshot(); snap.Status != StatusFailed || snap.Phase != "queue_full" {
		t.Errorf("expected failed queue_full, got %q/%q", snap.Status, snap.Phase)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected depth 1, got %d", o.QueueDepth())
	}
}
