package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgallion1/bibgest/internal/parser"
	"github.com/dgallion1/bibgest/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

var (
	errTooLarge = errors.New("file exceeds max size")
	validDocID  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename, data, status, err := s.readUpload(header.Filename, file)
	if err != nil {
		jsonError(w, err.Error(), status)
		return
	}

	docID := r.FormValue("doc_id")
	if docID != "" && !validDocID.MatchString(docID) {
		jsonError(w, "doc_id may only contain letters, digits, '-' and '_'", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(filename, docID, data)
	job.Force = r.FormValue("force") == "true"

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(jobAccepted(job))
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	force := r.FormValue("force") == "true"

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		results = append(results, s.submitPart(fh, force))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

func (s *Server) submitPart(fh *multipart.FileHeader, force bool) map[string]any {
	f, err := fh.Open()
	if err != nil {
		return map[string]any{"filename": sanitizeFilename(fh.Filename), "error": "failed to open file"}
	}
	defer f.Close()

	filename, data, _, err := s.readUpload(fh.Filename, f)
	if err != nil {
		return map[string]any{"filename": filename, "error": err.Error()}
	}

	job := pipeline.NewJob(filename, "", data)
	job.Force = force
	if err := s.orchestrator.Submit(job); err != nil {
		return map[string]any{"filename": filename, "error": err.Error()}
	}
	res := jobAccepted(job)
	res["filename"] = filename
	return res
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"doc_id":   snap.DocID,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"progress": snap.Progress,
	})
}

func (s *Server) handleIngestResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	res, ok := job.Result()
	if !ok {
		snap := job.Snapshot()
		if snap.Status.Done() {
			jsonError(w, fmt.Sprintf("job %s: %s", snap.Status, strings.Join(snap.Progress.Errors, "; ")), http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, "job not finished", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// readUpload validates the name and reads at most MaxUploadBytes of the file.
// On failure it returns the HTTP status to answer with.
func (s *Server) readUpload(name string, file io.Reader) (string, []byte, int, error) {
	filename := sanitizeFilename(name)
	if !parser.IsSupportedExtension(filename) {
		return filename, nil, http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return filename, nil, http.StatusInternalServerError, errors.New("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return filename, nil, http.StatusRequestEntityTooLarge, fmt.Errorf("%w (%d bytes)", errTooLarge, s.cfg.MaxUploadBytes)
	}
	return filename, data, http.StatusOK, nil
}

func jobAccepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"job_id":     snap.ID,
		"doc_id":     snap.DocID,
		"status":     snap.Status,
		"poll_url":   fmt.Sprintf("/api/ingest/%s/status", snap.ID),
		"result_url": fmt.Sprintf("/api/ingest/%s/result", snap.ID),
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
