package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/bibgest/internal/catalog"
	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/dgallion1/bibgest/internal/pathstore"
)

// CatalogPrefix is the pathstore prefix published documents live under.
const CatalogPrefix = "catalog"

// Worker processes a single document job.
type Worker struct {
	walker    *catalog.Walker
	pathstore *pathstore.Client
	stats     *Stats
	log       *slog.Logger
}

// NewWorker creates a worker. A nil pathstore client disables publishing.
func NewWorker(walker *catalog.Walker, ps *pathstore.Client, stats *Stats, log *slog.Logger) *Worker {
	return &Worker{
		walker:    walker,
		pathstore: ps,
		stats:     stats,
		log:       log,
	}
}

// Process parses the job's document and, when enabled, publishes it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	data := job.FileData()
	job.SetContentHash(ContentHashHex(data))

	start := time.Now()
	doc, parseErrs, err := w.walker.ParseReader(job.Filename, bytes.NewReader(data))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.SetResult(doc, parseErrs, elapsed)
	job.releaseFileData()

	snap := job.Snapshot()
	if w.stats != nil {
		w.stats.Record(ParseSample{DurationMs: elapsed, Entries: snap.Progress.Entries, Errors: len(parseErrs)})
	}
	log.Info("parsed document",
		"sections", snap.Progress.Sections,
		"entries", snap.Progress.Entries,
		"parse_errors", len(parseErrs),
		"duration_ms", elapsed,
	)
	hadErrors := len(parseErrs) > 0

	if w.pathstore == nil {
		finish(job, hadErrors)
		return
	}

	// Phase 1.5: Dedup check
	if !job.Force {
		exists, existingDocID, err := w.checkDuplicate(ctx, snap.ContentHash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if exists {
			log.Info("duplicate document, skipping publish", "existing_doc_id", existingDocID)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
	}

	// Phase 2: Publish
	job.SetStatus(StatusPublishing, "publishing")
	incomplete, err := w.publish(ctx, log, job, doc, parseErrs)
	if err != nil {
		log.Error("publish failed", "error", err)
		job.AddError(fmt.Sprintf("publish: %s", err))
		job.SetStatus(StatusPartial, "publishing")
		return
	}
	finish(job, hadErrors || incomplete)
}

func finish(job *Job, hadErrors bool) {
	if hadErrors {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

type publishNode struct {
	key      string
	value    any
	required bool
}

// publish writes the document, its errors, its metadata and the hash index.
// A failed document write aborts; failures of the other nodes are recorded
// on the job, publishing continues and incomplete is reported as true.
func (w *Worker) publish(ctx context.Context, log *slog.Logger, job *Job, doc doctree.Document, parseErrs []doctree.ParseError) (incomplete bool, err error) {
	snap := job.Snapshot()
	docPrefix := DocumentKey(job.DocID)
	nodes := []publishNode{
		{key: docPrefix + "/document", value: doc, required: true},
	}
	if len(parseErrs) > 0 {
		nodes = append(nodes, publishNode{key: docPrefix + "/errors", value: parseErrs})
	}
	nodes = append(nodes,
		publishNode{key: docPrefix + "/meta", value: map[string]any{
			"filename":     job.Filename,
			"language":     doc.Language.Code,
			"content_hash": snap.ContentHash,
			"sections":     snap.Progress.Sections,
			"entries":      snap.Progress.Entries,
			"parse_errors": len(parseErrs),
			"created_at":   job.CreatedAt.Format(time.RFC3339),
		}},
		publishNode{key: HashKey(snap.ContentHash) + "/" + job.DocID, value: map[string]any{
			"filename":   job.Filename,
			"created_at": job.CreatedAt.Format(time.RFC3339),
		}},
	)

	for _, n := range nodes {
		req := pathstore.NodeRequest{Value: n.value, Source: "bibgest:" + job.DocID}
		err := withRetry(ctx, func() error {
			return w.pathstore.PutNode(ctx, n.key, req)
		}, func(attempt int, err error) {
			log.Warn("retryable publish error", "key", n.key, "attempt", attempt, "error", err)
		})
		if err != nil {
			if n.required {
				return false, fmt.Errorf("put %s: %w", n.key, err)
			}
			log.Error("node write failed", "key", n.key, "error", err)
			job.AddError(fmt.Sprintf("put %s: %s", n.key, err))
			incomplete = true
			continue
		}
		job.IncrNodesWritten()
	}
	log.Info("published document", "nodes", job.Snapshot().Progress.NodesWritten, "incomplete", incomplete)
	return incomplete, nil
}

// checkDuplicate reports whether a document with this content hash was
// already published.
func (w *Worker) checkDuplicate(ctx context.Context, hash string) (bool, string, error) {
	children, err := w.pathstore.ListChildren(ctx, HashKey(hash), 1)
	if err != nil {
		return false, "", err
	}
	if len(children) > 0 {
		// Keys come back dot-separated; the doc ID is the last segment.
		parts := strings.Split(children[0].Key, ".")
		return true, parts[len(parts)-1], nil
	}
	return false, "", nil
}

// DocumentKey is the pathstore prefix of a published document.
func DocumentKey(docID string) string {
	return CatalogPrefix + "/" + docID
}

// HashKey is the pathstore prefix indexing documents by content hash.
func HashKey(hash string) string {
	return CatalogPrefix + "/by_hash/" + hash
}
