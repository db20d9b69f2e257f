package pipeline

import (
	"testing"
	"time"

	"github.com/dgallion1/bibgest/internal/doctree"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h := ContentHashHex([]byte{}); h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob(t *testing.T) {
	data := []byte("### Index\n")
	job := NewJob("books.md", "", data)
	if job.Status != StatusQueued || job.Phase != "queued" {
		t.Errorf("expected queued job, got %q/%q", job.Status, job.Phase)
	}
	if job.DocID != ContentHashHex(data)[:16] {
		t.Errorf("expected doc id derived from content, got %q", job.DocID)
	}
	if len(job.ID) != 36 {
		t.Errorf("expected uuid job id, got %q", job.ID)
	}
	if string(job.FileData()) != string(data) {
		t.Errorf("expected file data to be kept")
	}

	other := NewJob("books.md", "custom", data)
	if other.DocID != "custom" {
		t.Errorf("expected explicit doc id, got %q", other.DocID)
	}
	if other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusPublishing, "publishing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Done(t *testing.T) {
	tests := []struct {
		status JobStatus
		done   bool
	}{
		{StatusQueued, false},
		{StatusParsing, false},
		{StatusPublishing, false},
		{StatusCompleted, true},
		{StatusPartial, true},
		{StatusFailed, true},
		{StatusDupSkipped, true},
	}
	for _, tt := range tests {
		if tt.status.Done() != tt.done {
			t.Errorf("%q: expected done=%v", tt.status, tt.done)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("parse: boom")
	job.AddError("put catalog/x/meta: boom")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "parse: boom" {
		t.Errorf("expected first error %q, got %q", "parse: boom", snap.Progress.Errors[0])
	}
}

func TestJob_SetResult(t *testing.T) {
	job := &Job{ID: "result-test", DocID: "doc", Status: StatusParsing}
	if _, ok := job.Result(); ok {
		t.Fatal("expected no result before parsing")
	}

	doc := doctree.Document{
		Language: doctree.Language{Code: "en-US"},
		Sections: []doctree.Section{
			{
				Name:    "A",
				Entries: []doctree.Entry{{URL: "https://a"}, {URL: "https://b"}},
				Subsections: []doctree.Subsection{
					{Name: "A.1", Entries: []doctree.Entry{{URL: "https://c"}}},
				},
			},
		},
	}
	errs := []doctree.ParseError{{StartLine: 3, EndLine: 4, Message: "boom"}}
	job.SetResult(doc, errs, 12)

	snap := job.Snapshot()
	if snap.Progress.Sections != 1 || snap.Progress.Entries != 3 || snap.Progress.ParseErrors != 1 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
	if snap.Progress.ParseDuration != 12 {
		t.Errorf("expected parse_ms=12, got %d", snap.Progress.ParseDuration)
	}

	res, ok := job.Result()
	if !ok {
		t.Fatal("expected result")
	}
	if res.DocID != "doc" || len(res.Errors) != 1 || res.Document.Sections[0].Name != "A" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestJob_ResultErrorsNotNil(t *testing.T) {
	job := &Job{ID: "clean"}
	job.SetResult(doctree.Document{}, nil, 0)
	res, _ := job.Result()
	if res.Errors == nil {
		t.Error("expected non-nil errors slice in result")
	}
}

func TestJob_IncrNodesWritten(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.IncrNodesWritten()
	job.IncrNodesWritten()

	if n := job.Snapshot().Progress.NodesWritten; n != 2 {
		t.Errorf("expected 2 nodes written, got %d", n)
	}
}

func TestJob_FileData(t *testing.T) {
	job := &Job{ID: "data-test"}
	data := []byte("file content here")
	job.SetFileData(data)
	if got := job.FileData(); string(got) != string(data) {
		t.Errorf("expected file data %q, got %q", data, got)
	}
	job.releaseFileData()
	if job.FileData() != nil {
		t.Error("expected file data to be released")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job, got %d", store.Len())
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(time.Minute)

	store.Put(&Job{ID: "old", UpdatedAt: time.Now().Add(-2 * time.Minute)})
	store.Put(&Job{ID: "new", UpdatedAt: time.Now()})

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
