// Package api serves the read-only HTTP gateway over committed ledger state.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"crowdfund.ledger/cfl/internal/discovery"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/logger"
	"crowdfund.ledger/cfl/internal/store"
	"crowdfund.ledger/cfl/internal/token"
)

// LedgerReader gives serialized read access to the executor's state.
type LedgerReader interface {
	ReadLedger(fn func(l *ledger.Ledger, bank *token.Bank))
	LastCommit() (int64, []byte)
}

// DocsProvider renders the bundled reference documents.
type DocsProvider interface {
	GetDoc(ctx context.Context, name string) (string, error)
	ListDocs() ([]string, error)
}

// PeerLister reports node gateways discovered on the local network.
type PeerLister interface {
	Peers() []*discovery.Peer
}

// Service handles API requests
type Service struct {
	ledger     LedgerReader
	store      *store.Store
	logs       *logger.Ring
	docs       DocsProvider
	peers      PeerLister
	log        zerolog.Logger
	maxBackups int
}

// NewService creates a new API service. docs and logs may be nil.
func NewService(reader LedgerReader, st *store.Store, logs *logger.Ring, docs DocsProvider, log zerolog.Logger) *Service {
	return &Service{
		ledger:     reader,
		store:      st,
		logs:       logs,
		docs:       docs,
		log:        log,
		maxBackups: 20,
	}
}

// SetMaxBackups bounds the number of backups kept by POST /api/backups.
func (s *Service) SetMaxBackups(n int) {
	if n > 0 {
		s.maxBackups = n
	}
}

// SetPeers enables GET /api/peers.
func (s *Service) SetPeers(p PeerLister) {
	s.peers = p
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
