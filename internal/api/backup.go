package api

import (
	"fmt"
	"net/http"
	"time"
)

// @Title: Create Backup
// @Route: POST /api/backups
// @Description: Write a backup of the snapshot database and prune old ones
// @Response: {"status": "ok", "path": "..."}
func (s *Service) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	backupPath, err := s.store.BackupCurrent(s.maxBackups)
	if err != nil {
		s.log.Error().Err(err).Msg("create backup")
		s.writeError(w, http.StatusInternalServerError, "Failed to create backup")
		return
	}

	s.log.Info().Str("path", backupPath).Msg("created backup")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"path":   backupPath,
	})
}

// @Title: List Backups
// @Route: GET /api/backups
// @Description: List backup files, newest first
// @Response: [{"filename": "...", "timestamp": "...", "size": ...}]
func (s *Service) HandleBackupsList(w http.ResponseWriter, r *http.Request) {
	backups, err := s.store.Backups()
	if err != nil {
		s.log.Error().Err(err).Msg("list backups")
		s.writeError(w, http.StatusInternalServerError, "Failed to read backups")
		return
	}
	s.writeJSON(w, http.StatusOK, backups)
}

// @Title: Download Snapshot Database
// @Route: GET /api/backups/export
// @Description: Download a consistent copy of the snapshot database
// @Response: application/octet-stream file download
func (s *Service) HandleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportSnapshot()
	if err != nil {
		s.log.Error().Err(err).Msg("export snapshot database")
		s.writeError(w, http.StatusInternalServerError, "Failed to export database")
		return
	}

	filename := fmt.Sprintf("cfl-ledger-%s.db", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(data); err != nil {
		s.log.Warn().Err(err).Msg("write export")
		return
	}
	s.log.Info().Str("file", filename).Int("bytes", len(data)).Msg("served database export")
}
