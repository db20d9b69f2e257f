package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgallion1/bibgest/internal/pathstore"
	"github.com/dgallion1/bibgest/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// handleListDocuments lists the metadata of published documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ps := s.orchestrator.PathstoreClient()
	if ps == nil {
		jsonError(w, "publishing is disabled", http.StatusServiceUnavailable)
		return
	}

	children, err := ps.ListChildren(r.Context(), pipeline.CatalogPrefix, 1000)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	docs := []map[string]any{}
	for _, child := range children {
		if !strings.HasSuffix(child.Key, ".meta") {
			continue
		}
		parts := strings.Split(child.Key, ".")
		docs = append(docs, map[string]any{
			"doc_id": parts[len(parts)-2],
			"key":    child.Key,
			"meta":   child.Value,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

// handleDeleteDocument removes a published document and its hash index entry.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ps := s.orchestrator.PathstoreClient()
	if ps == nil {
		jsonError(w, "publishing is disabled", http.StatusServiceUnavailable)
		return
	}
	docID := chi.URLParam(r, "docID")
	ctx := r.Context()
	docPrefix := pipeline.DocumentKey(docID)

	meta, err := ps.GetNode(ctx, docPrefix+"/meta")
	if err != nil {
		jsonError(w, "failed to read document: "+err.Error(), http.StatusBadGateway)
		return
	}
	if meta == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	hashDeleted := deleteHashIndex(ctx, ps, docID, meta.Value)
	if err := ps.DeleteNode(ctx, docPrefix, true); err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.log.Info("deleted document", "doc_id", docID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":             docID,
		"deleted":            true,
		"hash_index_deleted": hashDeleted,
	})
}

func deleteHashIndex(ctx context.Context, ps *pathstore.Client, docID string, metaValue any) bool {
	metaMap, ok := metaValue.(map[string]any)
	if !ok {
		return false
	}
	hash, _ := metaMap["content_hash"].(string)
	if hash == "" {
		return false
	}
	key := pipeline.HashKey(hash) + "/" + docID
	return ps.DeleteNode(ctx, key, false) == nil
}
