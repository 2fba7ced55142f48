package discovery

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// Peer is a discovered node gateway.
type Peer struct {
	Instance string            `json:"instance"`
	Hostname string            `json:"hostname"`
	Port     int               `json:"port"`
	Addrs    []net.IP          `json:"addrs"`
	Txt      map[string]string `json:"txt"`
}

// GatewayURL returns the gateway base URL, preferring IPv4.
func (p *Peer) GatewayURL() string {
	host := strings.TrimSuffix(p.Hostname, ".")
	if len(p.Addrs) > 0 {
		host = p.Addrs[0].String()
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// PeerStore is a thread-safe store of discovered peers.
type PeerStore struct {
	mtx   sync.RWMutex
	peers map[string]*Peer // keyed by instance
}

func NewPeerStore() *PeerStore {
	return &PeerStore{peers: make(map[string]*Peer)}
}

// AddFromServiceEntry adds or updates a peer using a zeroconf ServiceEntry.
func (ps *PeerStore) AddFromServiceEntry(e *zeroconf.ServiceEntry) {
	if e == nil {
		return
	}

	txt := make(map[string]string)
	for _, t := range e.Text {
		if k, v, ok := strings.Cut(t, "="); ok {
			txt[k] = v
		}
	}

	peer := &Peer{
		Instance: e.Instance,
		Hostname: e.HostName,
		Port:     e.Port,
		Addrs:    append([]net.IP(nil), e.AddrIPv4...),
		Txt:      txt,
	}

	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	ps.peers[e.Instance] = peer
}

func (ps *PeerStore) Remove(instance string) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	delete(ps.peers, instance)
}

// List returns a snapshot of known peers ordered by instance.
func (ps *PeerStore) List() []*Peer {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	out := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
