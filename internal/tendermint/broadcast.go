package tendermint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/types"
)

// DefaultRPCAddress is the Tendermint RPC listener of a local node.
const DefaultRPCAddress = "http://localhost:26657"

// TxError reports a transaction rejected by CheckTx or DeliverTx.
type TxError struct {
	Hash      string
	Code      uint32
	Codespace string
	Log       string
}

func (e *TxError) Error() string {
	if e.Codespace != "" {
		return fmt.Sprintf("transaction %s failed in %s with code %d: %s", e.Hash, e.Codespace, e.Code, e.Log)
	}
	return fmt.Sprintf("transaction %s failed with code %d: %s", e.Hash, e.Code, e.Log)
}

// Unwrap exposes the ledger sentinel so callers can use errors.Is.
func (e *TxError) Unwrap() error {
	if e.Codespace != "ledger" {
		return nil
	}
	if le, ok := ledger.ErrorForCode(ledger.Code(e.Code)); ok {
		return le
	}
	return nil
}

// RPCError is a JSON-RPC level error returned by Tendermint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s (%s)", e.Code, e.Message, e.Data)
}

// TxResult is the outcome of a successful broadcast.
type TxResult struct {
	Hash   string
	Height int64
	Data   []byte
}

// BroadcastClient talks to the Tendermint JSON-RPC endpoint. Transport
// failures are retried with exponential backoff; RPC and application errors
// are returned immediately.
type BroadcastClient struct {
	rpcAddr  string
	client   *http.Client
	maxTries uint
}

func NewBroadcastClient(rpcAddr string) *BroadcastClient {
	if rpcAddr == "" {
		rpcAddr = DefaultRPCAddress
	}
	return &BroadcastClient{
		rpcAddr:  rpcAddr,
		client:   &http.Client{Timeout: 30 * time.Second},
		maxTries: 5,
	}
}

// SetMaxTries bounds the number of attempts per call. Zero means one attempt.
func (bc *BroadcastClient) SetMaxTries(n uint) {
	if n == 0 {
		n = 1
	}
	bc.maxTries = n
}

// BroadcastTxSync returns once the transaction passed CheckTx.
func (bc *BroadcastClient) BroadcastTxSync(ctx context.Context, tx []byte) (*TxResult, error) {
	var res struct {
		Code      uint32 `json:"code"`
		Data      []byte `json:"data"`
		Log       string `json:"log"`
		Codespace string `json:"codespace"`
		Hash      string `json:"hash"`
	}
	if err := bc.call(ctx, "broadcast_tx_sync", map[string]any{"tx": base64.StdEncoding.EncodeToString(tx)}, &res); err != nil {
		return nil, err
	}
	if res.Code != 0 {
		return nil, &TxError{Hash: res.Hash, Code: res.Code, Codespace: res.Codespace, Log: res.Log}
	}
	return &TxResult{Hash: res.Hash, Data: res.Data}, nil
}

// BroadcastTxCommit waits until the transaction is included in a block and
// reports the DeliverTx outcome.
func (bc *BroadcastClient) BroadcastTxCommit(ctx context.Context, tx []byte) (*TxResult, error) {
	type outcome struct {
		Code      uint32 `json:"code"`
		Data      []byte `json:"data"`
		Log       string `json:"log"`
		Codespace string `json:"codespace"`
	}
	var res struct {
		CheckTx   outcome `json:"check_tx"`
		DeliverTx outcome `json:"deliver_tx"`
		Hash      string  `json:"hash"`
		Height    string  `json:"height"`
	}
	if err := bc.call(ctx, "broadcast_tx_commit", map[string]any{"tx": base64.StdEncoding.EncodeToString(tx)}, &res); err != nil {
		return nil, err
	}
	if c := res.CheckTx; c.Code != 0 {
		return nil, &TxError{Hash: res.Hash, Code: c.Code, Codespace: c.Codespace, Log: c.Log}
	}
	if d := res.DeliverTx; d.Code != 0 {
		return nil, &TxError{Hash: res.Hash, Code: d.Code, Codespace: d.Codespace, Log: d.Log}
	}
	height, _ := strconv.ParseInt(res.Height, 10, 64)
	return &TxResult{Hash: res.Hash, Height: height, Data: res.DeliverTx.Data}, nil
}

// BroadcastSignedTransaction encodes signedTx and broadcasts it, waiting for
// the commit when commit is true.
func (bc *BroadcastClient) BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*TxResult, error) {
	txBytes, err := signedTx.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if commit {
		return bc.BroadcastTxCommit(ctx, txBytes)
	}
	return bc.BroadcastTxSync(ctx, txBytes)
}

// ABCIQuery runs an application query such as "/campaign/1" and returns the
// raw JSON value.
func (bc *BroadcastClient) ABCIQuery(ctx context.Context, path string) ([]byte, error) {
	var res struct {
		Response struct {
			Code  uint32 `json:"code"`
			Log   string `json:"log"`
			Value []byte `json:"value"`
		} `json:"response"`
	}
	if err := bc.call(ctx, "abci_query", map[string]any{"path": path}, &res); err != nil {
		return nil, err
	}
	if res.Response.Code != 0 {
		return nil, fmt.Errorf("query %s failed with code %d: %s", path, res.Response.Code, res.Response.Log)
	}
	return res.Response.Value, nil
}

// QueryTx looks a transaction up by hex hash.
func (bc *BroadcastClient) QueryTx(ctx context.Context, txHash string) (map[string]any, error) {
	raw, err := hex.DecodeString(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", txHash, err)
	}
	var res map[string]any
	if err := bc.call(ctx, "tx", map[string]any{"hash": base64.StdEncoding.EncodeToString(raw)}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (bc *BroadcastClient) call(ctx context.Context, method string, params map[string]any, result any) error {
	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	operation := func() (json.RawMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, bc.rpcAddr, bytes.NewReader(reqBytes))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := bc.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send RPC request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read RPC response: %w", err)
		}
		if resp.StatusCode >= 500 && len(body) == 0 {
			return nil, fmt.Errorf("RPC endpoint returned %s", resp.Status)
		}

		var rpcResp struct {
			Result json.RawMessage `json:"result"`
			Error  *RPCError       `json:"error"`
		}
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to parse RPC response: %w (body: %s)", err, body))
		}
		if rpcResp.Error != nil {
			return nil, backoff.Permanent(rpcResp.Error)
		}
		return rpcResp.Result, nil
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(bc.maxTries),
	)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return err
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
