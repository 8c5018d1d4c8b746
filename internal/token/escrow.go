package token

import (
	"context"
	"errors"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

// Escrow binds a Ledger to the escrow holder address. Deposits spend the
// payer's allowance to the holder, so payers must approve the holder first.
type Escrow struct {
	ledger Ledger
	holder Address
}

func NewEscrow(ledger Ledger, holder Address) *Escrow {
	return &Escrow{ledger: ledger, holder: holder}
}

func (e *Escrow) Holder() Address { return e.holder }

func (e *Escrow) Deposit(ctx context.Context, payer Address, amount uint64) error {
	return Translate(e.ledger.TransferFrom(ctx, e.holder, payer, e.holder, amount))
}

func (e *Escrow) Payout(ctx context.Context, recipient Address, amount uint64) error {
	return Translate(e.ledger.Transfer(ctx, e.holder, recipient, amount))
}

func (e *Escrow) BalanceOf(ctx context.Context, holder Address) (uint64, error) {
	balance, err := e.ledger.Balance(ctx, holder)
	return balance, Translate(err)
}

// Settle collects in from payer and pays out to recipient in one ledger batch.
func (e *Escrow) Settle(ctx context.Context, payer, recipient Address, in, out uint64) error {
	return Translate(e.ledger.Apply(ctx,
		TransferFromOp(e.holder, payer, e.holder, in),
		TransferOp(e.holder, recipient, out),
	))
}

// Translate maps ledger failures onto escrow codes and leaves other errors
// untouched so the engine classifies them as internal.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientFunds):
		return escrow.Wrap(escrow.CodeInsufficientFunds, "token transfer", err)
	case errors.Is(err, ErrInsufficientAllowance):
		return escrow.Wrap(escrow.CodeInsufficientAllowance, "token transfer", err)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrExpiredApproval):
		return escrow.Wrap(escrow.CodeInvalidInput, "token transfer", err)
	case errors.Is(err, ErrUnauthorized):
		return escrow.Wrap(escrow.CodeUnauthorized, "token transfer", err)
	default:
		return err
	}
}

var (
	_ escrow.Token   = (*Escrow)(nil)
	_ escrow.Settler = (*Escrow)(nil)
)
