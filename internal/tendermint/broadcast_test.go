package tendermint

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"crowdfund.ledger/cfl/internal/ledger"
)

type rpcRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func rpcServer(t *testing.T, handle func(req rpcRequest) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, handle(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBroadcastTxSyncSendsBase64(t *testing.T) {
	var gotTx string
	srv := rpcServer(t, func(req rpcRequest) string {
		if req.Method != "broadcast_tx_sync" {
			t.Errorf("method = %s", req.Method)
		}
		gotTx, _ = req.Params["tx"].(string)
		return `{"jsonrpc":"2.0","id":1,"result":{"code":0,"log":"","hash":"ABCD"}}`
	})

	res, err := NewBroadcastClient(srv.URL).BroadcastTxSync(context.Background(), []byte(`{"tx":1}`))
	if err != nil {
		t.Fatalf("BroadcastTxSync: %v", err)
	}
	if res.Hash != "ABCD" {
		t.Fatalf("hash = %s", res.Hash)
	}
	if gotTx != base64.StdEncoding.EncodeToString([]byte(`{"tx":1}`)) {
		t.Fatalf("tx param = %s", gotTx)
	}
}

func TestBroadcastTxCommitSurfacesLedgerErrors(t *testing.T) {
	srv := rpcServer(t, func(rpcRequest) string {
		return `{"jsonrpc":"2.0","id":1,"result":{
			"check_tx":{"code":0},
			"deliver_tx":{"code":103,"codespace":"ledger","log":"goal not met (code 103)"},
			"hash":"FF","height":"12"}}`
	})

	_, err := NewBroadcastClient(srv.URL).BroadcastTxCommit(context.Background(), []byte("tx"))
	var txErr *TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TxError, got %v", err)
	}
	if txErr.Code != 103 || txErr.Codespace != "ledger" {
		t.Fatalf("tx error = %+v", txErr)
	}
	if !errors.Is(err, ledger.ErrGoalNotMet) {
		t.Fatalf("expected errors.Is(err, ErrGoalNotMet)")
	}
}

func TestBroadcastTxCommitReturnsHeight(t *testing.T) {
	srv := rpcServer(t, func(rpcRequest) string {
		return `{"jsonrpc":"2.0","id":1,"result":{
			"check_tx":{"code":0},
			"deliver_tx":{"code":0,"data":"eyJjYW1wYWlnbl9pZCI6MX0="},
			"hash":"AA","height":"7"}}`
	})

	res, err := NewBroadcastClient(srv.URL).BroadcastTxCommit(context.Background(), []byte("tx"))
	if err != nil {
		t.Fatalf("BroadcastTxCommit: %v", err)
	}
	if res.Height != 7 || string(res.Data) != `{"campaign_id":1}` {
		t.Fatalf("result = %+v (%s)", res, res.Data)
	}
}

func TestRPCErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(rpcRequest) string {
		calls.Add(1)
		return `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"Internal error","data":"tx already exists in cache"}}`
	})

	_, err := NewBroadcastClient(srv.URL).BroadcastTxSync(context.Background(), []byte("tx"))
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Data != "tx already exists in cache" {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("RPC error retried %d times", calls.Load())
	}
}

func TestTransportErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"response":{"code":0,"value":"MTU="}}}`)
	}))
	defer srv.Close()

	value, err := NewBroadcastClient(srv.URL).ABCIQuery(context.Background(), "/campaign-count")
	if err != nil {
		t.Fatalf("ABCIQuery: %v", err)
	}
	if string(value) != "15" {
		t.Fatalf("value = %s", value)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestABCIQueryFailure(t *testing.T) {
	srv := rpcServer(t, func(req rpcRequest) string {
		if req.Params["path"] != "/nope" {
			t.Errorf("path = %v", req.Params["path"])
		}
		return `{"jsonrpc":"2.0","id":1,"result":{"response":{"code":5,"log":"unknown query path /nope"}}}`
	})

	if _, err := NewBroadcastClient(srv.URL).ABCIQuery(context.Background(), "/nope"); err == nil {
		t.Fatalf("expected query error")
	}
}

func TestQueryTxRejectsBadHash(t *testing.T) {
	if _, err := NewBroadcastClient("http://127.0.0.1:1").QueryTx(context.Background(), "zz"); err == nil {
		t.Fatalf("expected hash error")
	}
}
