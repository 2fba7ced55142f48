package api

import (
	"net/http"
	"strconv"

	"crowdfund.ledger/cfl/internal/logger"
)

const defaultEventLimit = 50

// @Title: Recent Events
// @Route: GET /api/events?limit=50
// @Description: Committed ledger events across all campaigns, newest first
// @Response: [{"type": "donation-received", "campaign_id": 1, "height": 4, "attributes": [...]}]
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, 0)
}

// @Title: Campaign Events
// @Route: GET /api/campaigns/{id}/events?limit=50
// @Description: Committed ledger events of one campaign, newest first
// @Response: Array of event objects
func (s *Service) HandleCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	s.serveEvents(w, r, id)
}

func (s *Service) serveEvents(w http.ResponseWriter, r *http.Request, campaignID uint64) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := s.store.Events(campaignID, limit)
	if err != nil {
		s.log.Error().Err(err).Uint64("campaign_id", campaignID).Msg("load events")
		s.writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// @Title: Recent Logs
// @Route: GET /api/logs?limit=100
// @Description: Most recent node log entries, newest first
// @Response: [{"timestamp": "...", "level": "info", "text": "..."}]
func (s *Service) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.writeJSON(w, http.StatusOK, []logger.Message{})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	s.writeJSON(w, http.StatusOK, s.logs.GetRecent(limit))
}
