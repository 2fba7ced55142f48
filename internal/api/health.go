package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"runtime"

	"crowdfund.ledger/cfl/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns node version and the last committed block
// @Response: {"version": "...", "height": 12, "app_hash": "..."}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	height, appHash := s.ledger.LastCommit()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":    types.Version,
		"build_time": types.BuildTime,
		"go_ver":     runtime.Version(),
		"os_arch":    fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		"height":     height,
		"app_hash":   hex.EncodeToString(appHash),
	})
}
