// Package types defines the transaction envelope submitted to the ledger
// chain and the payload of every ledger operation. Amounts are encoded as
// decimal strings so that uint64 values survive JSON clients that parse
// numbers as doubles.
package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crowdfund.ledger/cfl/internal/identity"
)

// Version is the current version of cfl
const Version = "0.1.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// TransactionType names a ledger operation.
type TransactionType string

const (
	TxCreateCampaign  TransactionType = "create_campaign"
	TxDonate          TransactionType = "donate"
	TxRegisterDeposit TransactionType = "register_deposit"
	TxClaimFunds      TransactionType = "claim_funds"
	TxRequestRefund   TransactionType = "request_refund"
	TxUpdateMetadata  TransactionType = "update_campaign_metadata"
	TxWithdrawFees    TransactionType = "withdraw_fees"
)

// Known reports whether t is a transaction type the ledger executes.
func (t TransactionType) Known() bool {
	switch t {
	case TxCreateCampaign, TxDonate, TxRegisterDeposit, TxClaimFunds,
		TxRequestRefund, TxUpdateMetadata, TxWithdrawFees:
		return true
	}
	return false
}

// Transaction is the signed body. ID doubles as the replay guard: the chain
// executes each ID at most once.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewTransaction builds a transaction with a fresh ID around payload.
func NewTransaction(txType TransactionType, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", txType, err)
	}
	return &Transaction{
		ID:        uuid.NewString(),
		Type:      txType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// DecodePayload unmarshals the payload into dst.
func (tx *Transaction) DecodePayload(dst any) error {
	if len(tx.Payload) == 0 {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal(tx.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", tx.Type, err)
	}
	return nil
}

// Sign serialises tx and signs the bytes with id. A missing ID is filled in.
func (tx *Transaction) Sign(id *identity.Identity) (*SignedTransaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return &SignedTransaction{
		PublicKey: id.PublicKey(),
		Signature: id.Sign(body),
		Tx:        body,
	}, nil
}

// SignedTransaction is what goes on the wire. Tx holds the exact bytes that
// were signed.
type SignedTransaction struct {
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
	Tx        []byte `json:"tx"`
}

// Verify checks the signature over Tx.
func (s *SignedTransaction) Verify() bool {
	if len(s.PublicKey) != ed25519.PublicKeySize || len(s.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(s.PublicKey), s.Tx, s.Signature)
}

// Caller returns the account that signed the transaction.
func (s *SignedTransaction) Caller() (string, error) {
	return identity.AccountFromPublicKey(s.PublicKey)
}

// GetTransaction decodes and sanity checks the signed body.
func (s *SignedTransaction) GetTransaction() (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(s.Tx, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if tx.ID == "" {
		return nil, errors.New("transaction id is required")
	}
	if _, err := uuid.Parse(tx.ID); err != nil {
		return nil, fmt.Errorf("transaction id: %w", err)
	}
	if !tx.Type.Known() {
		return nil, fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	return &tx, nil
}

// Encode returns the wire form broadcast to Tendermint.
func (s *SignedTransaction) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignedTransaction parses the wire form.
func DecodeSignedTransaction(raw []byte) (*SignedTransaction, error) {
	var s SignedTransaction
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return &s, nil
}
