package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/circuitbreaker"
)

func TestEscrowDepositRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)
	e := NewEscrow(l, "holder")

	_ = l.Mint(ctx, "client", 100)
	err := e.Deposit(ctx, "client", 10)
	if escrow.CodeOf(err) != escrow.CodeInsufficientAllowance {
		t.Fatalf("expected insufficient_allowance, got %v", err)
	}

	_ = l.Approve(ctx, "client", "holder", 100, now.Add(time.Hour))
	if err := e.Deposit(ctx, "client", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	mustBalance(t, l, "holder", 10)

	if err := e.Payout(ctx, "freelancer", 11); escrow.CodeOf(err) != escrow.CodeInsufficientFunds {
		t.Fatalf("expected insufficient_funds, got %v", err)
	}
	if !errors.Is(e.Payout(ctx, "freelancer", 11), ErrInsufficientFunds) {
		t.Fatal("translated error should still unwrap to the ledger error")
	}
}

func TestEscrowSettle(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)
	e := NewEscrow(l, "holder")

	_ = l.Mint(ctx, "client", 100)
	_ = l.Approve(ctx, "client", "holder", 100, now.Add(time.Hour))
	_ = e.Deposit(ctx, "client", 50)

	if err := e.Settle(ctx, "client", "freelancer", 50, 100); err != nil {
		t.Fatalf("settle: %v", err)
	}
	mustBalance(t, l, "client", 0)
	mustBalance(t, l, "holder", 0)
	mustBalance(t, l, "freelancer", 100)
}

func TestEscrowSettleFailureMovesNothing(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)
	e := NewEscrow(l, "holder")

	_ = l.Mint(ctx, "client", 60)
	_ = l.Approve(ctx, "client", "holder", 100, now.Add(time.Hour))
	_ = e.Deposit(ctx, "client", 50)

	err := e.Settle(ctx, "client", "freelancer", 50, 100)
	if escrow.CodeOf(err) != escrow.CodeInsufficientFunds {
		t.Fatalf("expected insufficient_funds, got %v", err)
	}
	mustBalance(t, l, "client", 10)
	mustBalance(t, l, "holder", 50)
	mustBalance(t, l, "freelancer", 0)
}

type flakyToken struct {
	escrow.Token
	err   error
	calls int
}

func (f *flakyToken) Payout(context.Context, escrow.Address, uint64) error {
	f.calls++
	return f.err
}

func TestGuardedOpensOnInfrastructureErrors(t *testing.T) {
	ctx := context.Background()
	inner := &flakyToken{Token: NewEscrow(NewMemoryLedger(), "holder"), err: errors.New("connection reset")}
	g := NewGuarded(inner, circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour}, nil)

	_ = g.Payout(ctx, "x", 1)
	_ = g.Payout(ctx, "x", 1)
	err := g.Payout(ctx, "x", 1)
	if !errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner called %d times, want 2", inner.calls)
	}
}

func TestGuardedIgnoresBusinessErrors(t *testing.T) {
	ctx := context.Background()
	inner := &flakyToken{
		Token: NewEscrow(NewMemoryLedger(), "holder"),
		err:   escrow.Wrap(escrow.CodeInsufficientFunds, "token transfer", ErrInsufficientFunds),
	}
	g := NewGuarded(inner, circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour}, nil)

	for i := 0; i < 3; i++ {
		if err := g.Payout(ctx, "x", 1); escrow.CodeOf(err) != escrow.CodeInsufficientFunds {
			t.Fatalf("call %d: expected insufficient_funds, got %v", i, err)
		}
	}
	if inner.calls != 3 {
		t.Fatalf("inner called %d times, want 3", inner.calls)
	}
}

func TestGuardedKeepsSettler(t *testing.T) {
	g := NewGuarded(NewEscrow(NewMemoryLedger(), "holder"), circuitbreaker.DefaultConfig(), nil)
	if _, ok := g.(escrow.Settler); !ok {
		t.Fatal("guarded escrow should expose Settle")
	}

	plain := NewGuarded(&flakyToken{Token: NewEscrow(NewMemoryLedger(), "holder")}, circuitbreaker.DefaultConfig(), nil)
	if _, ok := plain.(escrow.Settler); ok {
		t.Fatal("guarded token without Settle must not expose it")
	}
	if plain.Holder() != "holder" {
		t.Fatalf("holder = %s", plain.Holder())
	}
}
