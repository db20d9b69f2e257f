package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/dgallion1/bibgest/internal/pipeline"
)

// handleParse parses one uploaded document synchronously.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

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

	start := time.Now()
	doc, errs, err := s.walker.ParseReader(filename, bytes.NewReader(data))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.log.Error("parse failed", "filename", filename, "error", err)
		jsonError(w, "parse: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if errs == nil {
		errs = []doctree.ParseError{}
	}

	s.orchestrator.Stats().Record(pipeline.ParseSample{DurationMs: elapsed, Entries: doc.EntryCount(), Errors: len(errs)})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"filename": filename,
		"document": doc,
		"errors":   errs,
		"parse_ms": elapsed,
	})
}
