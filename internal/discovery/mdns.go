// Package discovery announces a node's gateway on the local network over mDNS
// (zeroconf) and browses for other ledger nodes. Discovered peers are kept in
// a PeerStore and served by the gateway.
package discovery

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service every ledger node registers.
const ServiceType = "_cfl._tcp"

const domain = "local."

// Service handles the mDNS registration and browsing.
type Service struct {
	serviceType string
	resolver    *zeroconf.Resolver
	server      *zeroconf.Server
	peers       *PeerStore
	cancel      context.CancelFunc
	log         zerolog.Logger
}

func NewService(log zerolog.Logger) (*Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mDNS resolver: %w", err)
	}
	return &Service{
		serviceType: ServiceType,
		resolver:    resolver,
		peers:       NewPeerStore(),
		log:         log.With().Str("component", "mdns").Logger(),
	}, nil
}

// Start announces the gateway port with txt records and begins browsing for
// other nodes until Stop.
func (s *Service) Start(port int, txt map[string]string) error {
	hostname, _ := os.Hostname()

	server, err := zeroconf.Register(hostname, s.serviceType, domain, port, encodeTxt(txt), nil)
	if err != nil {
		return fmt.Errorf("register mDNS service: %w", err)
	}
	s.server = server
	s.log.Info().Str("service", s.serviceType).Str("host", hostname).Int("port", port).Msg("announced gateway")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.browse(ctx, hostname)
	return nil
}

func (s *Service) browse(ctx context.Context, self string) {
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry.Instance == self {
					continue
				}
				if entry.TTL == 0 {
					s.log.Info().Str("peer", entry.Instance).Msg("peer removed")
					s.peers.Remove(entry.Instance)
					continue
				}
				s.log.Info().Str("peer", entry.Instance).Int("port", entry.Port).Msg("peer discovered")
				s.peers.AddFromServiceEntry(entry)
			}
		}
	}()

	if err := s.resolver.Browse(ctx, s.serviceType, domain, entries); err != nil {
		s.log.Error().Err(err).Msg("browse for peers")
		return
	}
	<-ctx.Done()
}

// Peers returns a snapshot of discovered nodes ordered by instance name.
func (s *Service) Peers() []*Peer {
	return s.peers.List()
}

// Stop withdraws the announcement and stops browsing.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		s.server.Shutdown()
	}
	s.log.Info().Msg("stopped service discovery")
}

// Browse performs a one-shot lookup for nodes until ctx is done.
func Browse(ctx context.Context) ([]*Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mDNS resolver: %w", err)
	}

	peers := NewPeerStore()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", ServiceType, err)
	}
	for {
		select {
		case <-ctx.Done():
			return peers.List(), nil
		case entry, ok := <-entries:
			if !ok {
				return peers.List(), nil
			}
			peers.AddFromServiceEntry(entry)
		}
	}
}

func encodeTxt(txt map[string]string) []string {
	out := make([]string, 0, len(txt))
	for k, v := range txt {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
