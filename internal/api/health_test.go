package api

import (
	"net/http"
	"testing"

	"crowdfund.ledger/cfl/internal/discovery"
	"crowdfund.ledger/cfl/internal/types"
)

func TestHandleHealth(t *testing.T) {
	env := setupTest(t)

	var body map[string]string
	env.getJSON(t, "/api/health", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body)
	}
}

func TestHandleVersion(t *testing.T) {
	env := setupTest(t)

	var body map[string]any
	env.getJSON(t, "/api/version", http.StatusOK, &body)
	if body["version"] != types.Version {
		t.Errorf("version = %v", body["version"])
	}
	if body["app_hash"] != "abcd" {
		t.Errorf("app_hash = %v", body["app_hash"])
	}
	if body["height"].(float64) != 1 {
		t.Errorf("height = %v", body["height"])
	}
}

type fakePeers []*discovery.Peer

func (f fakePeers) Peers() []*discovery.Peer { return f }

func TestHandlePeers(t *testing.T) {
	env := setupTest(t)

	var peers []discovery.Peer
	env.getJSON(t, "/api/peers", http.StatusOK, &peers)
	if len(peers) != 0 {
		t.Fatalf("expected no peers without discovery, got %v", peers)
	}

	env.svc.SetPeers(fakePeers{{Instance: "node-2", Port: 8081}})
	env.getJSON(t, "/api/peers", http.StatusOK, &peers)
	if len(peers) != 1 || peers[0].Instance != "node-2" {
		t.Fatalf("peers = %+v", peers)
	}
}
