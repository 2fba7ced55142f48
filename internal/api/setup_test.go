package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/logger"
	"crowdfund.ledger/cfl/internal/store"
	"crowdfund.ledger/cfl/internal/token"
)

const testToken = "SP000.usdcx"

// fakeLedger serializes access the way the ABCI application does.
type fakeLedger struct {
	mu     sync.Mutex
	height uint64
	ledger *ledger.Ledger
	bank   *token.Bank
}

func (f *fakeLedger) ReadLedger(fn func(l *ledger.Ledger, bank *token.Bank)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.ledger, f.bank)
}

func (f *fakeLedger) LastCommit() (int64, []byte) {
	return int64(f.height), []byte{0xab, 0xcd}
}

type fakeDocs struct{}

func (fakeDocs) GetDoc(_ context.Context, name string) (string, error) {
	if name != "ledger.adoc" {
		return "", errors.New("no such doc")
	}
	return "<h1>Ledger</h1>", nil
}

func (fakeDocs) ListDocs() ([]string, error) {
	return []string{"ledger.adoc"}, nil
}

type testEnv struct {
	router http.Handler
	svc    *Service
	ledger *fakeLedger
	store  *store.Store
	ring   *logger.Ring
}

// setupTest builds a gateway over a ledger holding one campaign (id 1, goal
// 1000, deadline 11) with a 400 unit donation from bob, committed to a
// temporary store.
func setupTest(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bank := token.NewBank()
	for _, acct := range []string{"alice", "bob"} {
		if err := bank.Mint(testToken, acct, 1_000_000); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}

	fl := &fakeLedger{height: 1, bank: bank}
	fl.ledger = ledger.New(
		ledger.NewState(ledger.Params{Admin: "admin", FeeRateBasisPoints: 500}),
		bank,
		ledger.HeightFunc(func() uint64 { return fl.height }),
	)
	if _, err := fl.ledger.CreateCampaign("alice", "ipfs://campaign-1", 1000, 10); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if err := fl.ledger.Donate("bob", 1, 400, testToken); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if err := st.SaveCommit(store.Snapshot{Height: 1, AppHash: []byte{1}, State: []byte("{}")}, fl.ledger.DrainEvents()); err != nil {
		t.Fatalf("save commit: %v", err)
	}

	ring := logger.NewRing(50)
	log := logger.New("production", io.Discard, ring)
	svc := NewService(fl, st, ring, fakeDocs{}, log)

	return &testEnv{router: NewRouter(svc), svc: svc, ledger: fl, store: st, ring: ring}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) getJSON(t *testing.T, path string, wantStatus int, dst any) {
	t.Helper()
	w := e.do(t, http.MethodGet, path)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status %d, want %d (body %s)", path, w.Code, wantStatus, w.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
			t.Fatalf("GET %s: decode: %v (body %s)", path, err, w.Body.String())
		}
	}
}

