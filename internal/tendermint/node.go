// Package tendermint connects the ledger application to a Tendermint node.
// The node runs as a separate process and reaches the application over the
// ABCI socket protocol; clients submit transactions through its JSON-RPC
// endpoint.
package tendermint

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	abciserver "github.com/tendermint/tendermint/abci/server"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/service"

	"crowdfund.ledger/cfl/internal/logger"
)

// Config holds configuration for the ABCI server and Tendermint connection.
type Config struct {
	// TendermintHome is the directory for Tendermint data and config
	TendermintHome string
	// SocketAddress is "unix://path" or "tcp://host:port"
	SocketAddress string
}

// ABCIServer wraps the Tendermint socket server.
type ABCIServer struct {
	server service.Service
	socket string
}

// NewABCIServer creates the server without starting it. Server logs are
// routed through log.
func NewABCIServer(app abci.Application, config *Config, log zerolog.Logger) (*ABCIServer, error) {
	if app == nil {
		return nil, errors.New("ABCI application cannot be nil")
	}
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.SocketAddress == "" {
		return nil, errors.New("socket address cannot be empty")
	}

	server := abciserver.NewSocketServer(config.SocketAddress, app)
	server.SetLogger(logger.NewTMLogger(log.With().Str("module", "abci-server").Logger()))

	return &ABCIServer{server: server, socket: config.SocketAddress}, nil
}

// Start begins listening. A stale unix socket left by a crashed process is
// removed first.
func (s *ABCIServer) Start() error {
	if path, ok := unixSocketPath(s.socket); ok {
		if _, err := os.Stat(path); err == nil {
			_ = os.Remove(path)
		}
	}
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI server: %w", err)
	}
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *ABCIServer) Stop() error {
	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			return fmt.Errorf("failed to stop ABCI server: %w", err)
		}
	}
	if path, ok := unixSocketPath(s.socket); ok {
		_ = os.Remove(path)
	}
	return nil
}

func (s *ABCIServer) IsRunning() bool {
	return s.server.IsRunning()
}

func (s *ABCIServer) SocketPath() string {
	return s.socket
}

func unixSocketPath(addr string) (string, bool) {
	if !strings.HasPrefix(addr, "unix://") {
		return "", false
	}
	return strings.TrimPrefix(addr, "unix://"), true
}
