package api

import (
	"net/http"

	"crowdfund.ledger/cfl/internal/discovery"
)

// @Title: List Peers
// @Route: GET /api/peers
// @Description: Ledger node gateways discovered over mDNS; empty when discovery is off
// @Response: [{"instance": "...", "port": 8080, "addrs": ["192.0.2.10"], "txt": {"ver": "0.1.0"}}]
func (s *Service) HandlePeers(w http.ResponseWriter, r *http.Request) {
	if s.peers == nil {
		s.writeJSON(w, http.StatusOK, []*discovery.Peer{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.peers.Peers())
}
