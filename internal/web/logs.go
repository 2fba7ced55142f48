package web

import (
	"net/http"
	"time"

	"crowdfund.ledger/cfl/internal/logger"
)

// handleLogsWS streams node log entries: the last 50 first, then new entries
// as they are captured.
func (s *Server) handleLogsWS(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.Error(w, "log capture disabled", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// GetRecent returns newest first.
	initialLogs := s.logs.GetRecent(50)
	for i := len(initialLogs) - 1; i >= 0; i-- {
		if err := conn.WriteJSON(initialLogs[i]); err != nil {
			return
		}
	}

	var lastLogTime time.Time
	if len(initialLogs) > 0 {
		lastLogTime = initialLogs[0].Timestamp
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			var newLogs []logger.Message
			for _, msg := range s.logs.GetRecent(20) {
				if msg.Timestamp.After(lastLogTime) {
					newLogs = append(newLogs, msg)
				}
			}
			for i := len(newLogs) - 1; i >= 0; i-- {
				msg := newLogs[i]
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
				lastLogTime = msg.Timestamp
			}
		}
	}
}
