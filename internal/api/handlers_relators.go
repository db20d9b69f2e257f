package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRelators(w http.ResponseWriter, r *http.Request) {
	terms := s.relators.ListAll()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":    len(terms),
		"relators": terms,
	})
}

func (s *Server) handleGetRelator(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	term, ok := s.relators.Lookup(code)
	if !ok {
		jsonError(w, "relator not found: "+code, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(term)
}

func (s *Server) handleSearchRelators(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		jsonError(w, "name query parameter is required", http.StatusBadRequest)
		return
	}
	term, ok := s.relators.FindByName(name)
	if !ok {
		jsonError(w, "relator not found: "+name, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(term)
}
