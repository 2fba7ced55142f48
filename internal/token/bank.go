// Package token provides the in-process token transfer service used by the
// ledger node. Balances are tracked per (token, account) pair and every
// transfer either fully applies or leaves balances untouched.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrInvalidToken      = errors.New("invalid token reference")
	ErrInvalidAmount     = errors.New("invalid transfer amount")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// MaxTokenRefLength bounds token references such as "SP000.usdcx".
const MaxTokenRefLength = 128

// Bank holds fungible token balances. It is not safe for concurrent use; the
// ABCI application serialises access to it together with the ledger.
type Bank struct {
	balances map[string]map[string]uint64
}

func NewBank() *Bank {
	return &Bank{balances: make(map[string]map[string]uint64)}
}

// Balance returns the balance of account for token; unknown pairs are zero.
func (b *Bank) Balance(token, account string) uint64 {
	return b.balances[token][account]
}

// Mint credits amount to account. It is used for genesis allocations.
func (b *Bank) Mint(token, account string, amount uint64) error {
	if err := validateToken(token); err != nil {
		return err
	}
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	current := b.Balance(token, account)
	sum, carry := bits.Add64(current, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	b.set(token, account, sum)
	return nil
}

// Transfer moves amount of token from one account to another.
func (b *Bank) Transfer(token string, amount uint64, from, to string) error {
	if err := validateToken(token); err != nil {
		return err
	}
	if from == "" || to == "" {
		return ErrInvalidAccount
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if from == to {
		if b.Balance(token, from) < amount {
			return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, b.Balance(token, from), amount)
		}
		return nil
	}

	fromBal := b.Balance(token, from)
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	toBal, carry := bits.Add64(b.Balance(token, to), amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}

	b.set(token, from, fromBal-amount)
	b.set(token, to, toBal)
	return nil
}

func (b *Bank) set(token, account string, amount uint64) {
	accounts, ok := b.balances[token]
	if !ok {
		accounts = make(map[string]uint64)
		b.balances[token] = accounts
	}
	if amount == 0 {
		delete(accounts, account)
		if len(accounts) == 0 {
			delete(b.balances, token)
		}
		return
	}
	accounts[account] = amount
}

// MarshalJSON encodes balances with sorted keys.
func (b *Bank) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.balances)
}

func (b *Bank) UnmarshalJSON(data []byte) error {
	balances := make(map[string]map[string]uint64)
	if err := json.Unmarshal(data, &balances); err != nil {
		return fmt.Errorf("decode balances: %w", err)
	}
	if balances == nil {
		balances = make(map[string]map[string]uint64)
	}
	b.balances = balances
	return nil
}

func validateToken(token string) error {
	if token == "" || len(token) > MaxTokenRefLength {
		return ErrInvalidToken
	}
	return nil
}
