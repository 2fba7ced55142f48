package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// @Title: List Docs
// @Route: GET /api/docs
// @Description: Names of the bundled reference documents
// @Response: ["api.adoc", "ledger.adoc"]
func (s *Service) HandleDocsList(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		s.writeJSON(w, http.StatusOK, []string{})
		return
	}
	names, err := s.docs.ListDocs()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list docs")
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

// @Title: Get Doc
// @Route: GET /api/docs/{name}
// @Description: Render one reference document as HTML
// @Response: text/html fragment
func (s *Service) HandleDoc(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.docs == nil || strings.Contains(name, "/") || strings.Contains(name, "..") {
		s.writeError(w, http.StatusNotFound, "doc not found")
		return
	}
	if !strings.HasSuffix(name, ".adoc") {
		name += ".adoc"
	}
	html, err := s.docs.GetDoc(r.Context(), name)
	if err != nil {
		s.log.Debug().Err(err).Str("doc", name).Msg("render doc")
		s.writeError(w, http.StatusNotFound, "doc not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
