package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crowdfund.ledger/cfl/internal/ledger"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	clientBuffer = 64
	maxHistory   = 500
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventHistory supplies committed events for clients that ask for a replay.
type EventHistory interface {
	Events(campaignID uint64, limit int) ([]ledger.Event, error)
}

type subscriber struct {
	ch       chan []byte
	campaign uint64 // zero subscribes to every campaign
}

// eventHub fans committed ledger events out to websocket subscribers. Slow
// subscribers miss events rather than block the commit path.
type eventHub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*subscriber]struct{})}
}

func (h *eventHub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sub] = struct{}{}
}

func (h *eventHub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.ch)
	}
}

func (h *eventHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *eventHub) publish(ev ledger.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		if sub.campaign != 0 && sub.campaign != ev.CampaignID {
			continue
		}
		select {
		case sub.ch <- data:
		default:
		}
	}
	return nil
}

// handleEventsWS streams committed events as JSON text frames. Query
// parameters: campaign filters to one campaign id, history replays up to that
// many stored events (oldest first) before live delivery starts.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var campaign uint64
	if raw := q.Get("campaign"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid campaign", http.StatusBadRequest)
			return
		}
		campaign = id
	}
	history := 0
	if raw := q.Get("history"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid history", http.StatusBadRequest)
			return
		}
		history = min(n, maxHistory)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := &subscriber{ch: make(chan []byte, clientBuffer), campaign: campaign}
	s.hub.register(sub)
	defer s.hub.unregister(sub)

	s.log.Debug().Uint64("campaign", campaign).Msg("event subscriber connected")
	defer s.log.Debug().Msg("event subscriber disconnected")

	if history > 0 && s.history != nil {
		past, err := s.history.Events(campaign, history)
		if err != nil {
			s.log.Error().Err(err).Msg("load event history")
		}
		for i := len(past) - 1; i >= 0; i-- {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(past[i]); err != nil {
				return
			}
		}
	}

	// The read loop only detects a closed connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case data, ok := <-sub.ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
