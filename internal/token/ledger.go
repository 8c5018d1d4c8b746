// Package token provides the fungible ledger behind the escrow holder and the
// adapter that exposes it to the escrow engine.
package token

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

type Address = escrow.Address

var (
	ErrInsufficientFunds     = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrExpiredApproval       = errors.New("approval expiry is in the past")
)

// Ledger is a fungible token with balances and expiring allowances.
// Zero-amount transfers succeed without touching any account.
type Ledger interface {
	Mint(ctx context.Context, to Address, amount uint64) error
	Burn(ctx context.Context, from Address, amount uint64) error
	// Approve replaces the allowance of spender over owner's balance. A zero
	// amount revokes it; a non-zero amount needs an expiry in the future.
	Approve(ctx context.Context, owner, spender Address, amount uint64, expiresAt time.Time) error
	// Allowance reports zero for missing or expired approvals.
	Allowance(ctx context.Context, owner, spender Address) (uint64, error)
	Balance(ctx context.Context, addr Address) (uint64, error)
	Transfer(ctx context.Context, from, to Address, amount uint64) error
	TransferFrom(ctx context.Context, spender, from, to Address, amount uint64) error
	// Apply runs ops in order as one unit: either all of them take effect or none.
	Apply(ctx context.Context, ops ...Op) error
}

type OpKind int

const (
	OpTransfer OpKind = iota
	OpTransferFrom
)

// Op is a single movement inside Apply. Spender is only read for OpTransferFrom.
type Op struct {
	Kind    OpKind
	Spender Address
	From    Address
	To      Address
	Amount  uint64
}

func TransferOp(from, to Address, amount uint64) Op {
	return Op{Kind: OpTransfer, From: from, To: to, Amount: amount}
}

func TransferFromOp(spender, from, to Address, amount uint64) Op {
	return Op{Kind: OpTransferFrom, Spender: spender, From: from, To: to, Amount: amount}
}

func validateAddress(addrs ...Address) error {
	for _, a := range addrs {
		if a == "" {
			return ErrUnauthorized
		}
	}
	return nil
}

// addBalance returns ErrInvalidAmount when the credit would overflow.
func addBalance(balance, amount uint64) (uint64, error) {
	if balance > math.MaxUint64-amount {
		return 0, ErrInvalidAmount
	}
	return balance + amount, nil
}
