package server

import (
	"io"
	"net/http"

	"github.com/sells-group/taxpoint/internal/apperr"
)

// maxImportUpload caps the multipart form held in memory; larger files
// spill to disk via the multipart reader.
const maxImportUpload = 64 << 20

// handleImport accepts a multipart CSV upload and schedules an import task.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUpload); err != nil {
		writeError(w, apperr.Validation("request must be multipart form data with a file field", "file"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validation("file field is required", "file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperr.Wrap(err, apperr.KindInfrastructure, "read upload"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/csv"
	}

	user := currentUser(r.Context())
	task, err := s.importer.Submit(r.Context(), data, header.Filename, contentType, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// handleListTasks returns all import tasks newest first.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListNewestFirst(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}
