package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"crowdfund.ledger/cfl/internal/discovery"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/tendermint"
	"crowdfund.ledger/cfl/internal/types"
)

type fakeNode struct {
	sent    []*types.SignedTransaction
	commits []bool
	result  []byte
	err     error
	queries []string
	value   []byte
}

func (f *fakeNode) BroadcastSignedTransaction(_ context.Context, stx *types.SignedTransaction, commit bool) (*tendermint.TxResult, error) {
	f.sent = append(f.sent, stx)
	f.commits = append(f.commits, commit)
	if f.err != nil {
		return nil, f.err
	}
	return &tendermint.TxResult{Hash: "ABC123", Height: 9, Data: f.result}, nil
}

func (f *fakeNode) ABCIQuery(_ context.Context, path string) ([]byte, error) {
	f.queries = append(f.queries, path)
	return f.value, nil
}

func runCLI(t *testing.T, node *fakeNode, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := Environment{Stdout: &stdout, Stderr: &stderr}
	code := run(env, args, func(string) Node { return node })
	return code, stdout.String(), stderr.String()
}

func keyArgs(t *testing.T) []string {
	t.Helper()
	return []string{"--key", filepath.Join(t.TempDir(), "alice.pem")}
}

func TestKeygenAndAddress(t *testing.T) {
	key := keyArgs(t)
	node := &fakeNode{}

	code, out, errOut := runCLI(t, node, append(key, "keygen")...)
	if code != 0 {
		t.Fatalf("keygen exit %d: %s", code, errOut)
	}
	account := strings.TrimSpace(out)
	if len(account) != 64 {
		t.Fatalf("unexpected account %q", account)
	}

	code, out, _ = runCLI(t, node, append(key, "address")...)
	if code != 0 || strings.TrimSpace(out) != account {
		t.Fatalf("address = %q (exit %d), want %s", out, code, account)
	}
}

func TestCreateSignsAndDescribesResult(t *testing.T) {
	key := keyArgs(t)
	node := &fakeNode{result: []byte(`{"campaign_id":4}`)}
	if code, _, errOut := runCLI(t, node, append(key, "keygen")...); code != 0 {
		t.Fatalf("keygen: %s", errOut)
	}

	code, out, errOut := runCLI(t, node, append(key, "create", "--goal", "250.5", "--duration", "1440", "--metadata", "ipfs://abc")...)
	if code != 0 {
		t.Fatalf("create exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "campaign id: 4") || !strings.Contains(out, "height 9") {
		t.Fatalf("unexpected output: %s", out)
	}

	if len(node.sent) != 1 || !node.commits[0] {
		t.Fatalf("expected one committed broadcast, got %d", len(node.sent))
	}
	stx := node.sent[0]
	if !stx.Verify() {
		t.Fatalf("transaction signature does not verify")
	}
	tx, err := stx.GetTransaction()
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Type != types.TxCreateCampaign {
		t.Fatalf("type = %s", tx.Type)
	}
	var p types.CreateCampaignPayload
	if err := tx.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Goal != 250_500_000 || p.Duration != 1440 || p.MetadataRef != "ipfs://abc" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestDonateAcceptsBaseUnitsAndAsync(t *testing.T) {
	key := keyArgs(t)
	node := &fakeNode{}
	runCLI(t, node, append(key, "keygen")...)

	code, out, errOut := runCLI(t, node, append(key, "--async", "donate", "--campaign", "2", "--amount", "750u", "--token", "SP000.usdcx")...)
	if code != 0 {
		t.Fatalf("donate exit %d: %s", code, errOut)
	}
	if node.commits[0] {
		t.Fatalf("--async should not wait for commit")
	}
	if !strings.Contains(out, "accepted: tx ABC123") {
		t.Fatalf("output = %s", out)
	}

	tx, _ := node.sent[0].GetTransaction()
	var p types.DonatePayload
	if err := tx.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Amount != 750 || p.CampaignID != 2 || p.Token != "SP000.usdcx" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestLedgerErrorsAreReported(t *testing.T) {
	key := keyArgs(t)
	node := &fakeNode{err: &tendermint.TxError{Hash: "FF", Code: uint32(ledger.CodeGoalNotMet), Codespace: "ledger", Log: "goal not met"}}
	runCLI(t, node, append(key, "keygen")...)

	code, _, errOut := runCLI(t, node, append(key, "claim", "--campaign", "1", "--token", "SP000.usdcx")...)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut, "claim_funds") || !strings.Contains(errOut, "goal not met") {
		t.Fatalf("stderr = %s", errOut)
	}
	if !errors.Is(node.err, ledger.ErrGoalNotMet) {
		t.Fatalf("TxError should unwrap to the ledger sentinel")
	}
}

func TestSubmitRequiresKey(t *testing.T) {
	node := &fakeNode{}
	code, _, _ := runCLI(t, node, append(keyArgs(t), "withdraw-fees", "--token", "SP000.usdcx")...)
	if code != 1 || len(node.sent) != 0 {
		t.Fatalf("expected failure without key, exit %d, sent %d", code, len(node.sent))
	}
}

func TestInvalidAmountRejectedBeforeBroadcast(t *testing.T) {
	key := keyArgs(t)
	node := &fakeNode{}
	runCLI(t, node, append(key, "keygen")...)

	code, _, _ := runCLI(t, node, append(key, "donate", "--campaign", "1", "--amount", "0.0000001", "--token", "t")...)
	if code != 1 || len(node.sent) != 0 {
		t.Fatalf("expected rejection, exit %d, sent %d", code, len(node.sent))
	}
}

func TestQueryEscapesAndIndents(t *testing.T) {
	node := &fakeNode{value: []byte(`{"id":1,"raised":"5"}`)}

	code, out, errOut := runCLI(t, node, "query", "balance", "SP000.usdcx/x", "abcd")
	if code != 0 {
		t.Fatalf("query exit %d: %s", code, errOut)
	}
	if node.queries[0] != "/balance/SP000.usdcx%2Fx/abcd" {
		t.Fatalf("path = %s", node.queries[0])
	}
	if !strings.Contains(out, "\n  \"id\": 1") {
		t.Fatalf("expected indented JSON, got %s", out)
	}
}

func TestEventsStreamsTitledEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/events" || r.URL.Query().Get("campaign") != "3" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ev := ledger.Event{
			Type:       ledger.EventDonationReceived,
			CampaignID: 3,
			Height:     12,
			Attributes: []ledger.Attribute{{Key: "donor", Value: "bob"}, {Key: "amount", Value: "12500000"}},
		}
		data, _ := json.Marshal(ev)
		conn.WriteMessage(websocket.TextMessage, data)
		conn.ReadMessage()
	}))
	defer srv.Close()

	code, out, errOut := runCLI(t, &fakeNode{}, "events", "--gateway", srv.URL, "--campaign", "3", "--count", "1")
	if code != 0 {
		t.Fatalf("events exit %d: %s", code, errOut)
	}
	want := "[12] Donation Received (campaign 3) donor=bob amount=12.5"
	if strings.TrimSpace(out) != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestPrintPeers(t *testing.T) {
	var out bytes.Buffer
	env := &Environment{Stdout: &out}
	printPeers(env, []*discovery.Peer{{
		Instance: "node-a",
		Port:     8080,
		Addrs:    []net.IP{net.ParseIP("192.0.2.7")},
		Txt:      map[string]string{"ver": "0.1.0", "admin": "ab"},
	}})
	if got := out.String(); got != "node-a\thttp://192.0.2.7:8080\tver=0.1.0\tadmin=ab\n" {
		t.Fatalf("output = %q", got)
	}
}
