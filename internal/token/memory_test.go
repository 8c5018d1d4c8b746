package token

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) (*MemoryLedger, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func mustBalance(t *testing.T, l Ledger, addr Address, want uint64) {
	t.Helper()
	got, err := l.Balance(context.Background(), addr)
	if err != nil {
		t.Fatalf("balance %s: %v", addr, err)
	}
	if got != want {
		t.Fatalf("balance %s = %d, want %d", addr, got, want)
	}
}

func TestMemoryLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if err := l.Mint(ctx, "alice", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(ctx, "alice", "bob", 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	mustBalance(t, l, "alice", 60)
	mustBalance(t, l, "bob", 40)

	if err := l.Transfer(ctx, "alice", "bob", 61); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	mustBalance(t, l, "alice", 60)
}

func TestMemoryLedgerTransferFromSpendsAllowance(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)

	_ = l.Mint(ctx, "alice", 100)
	if err := l.Approve(ctx, "alice", "escrow", 50, now.Add(time.Hour)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := l.TransferFrom(ctx, "escrow", "alice", "escrow", 30); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	got, _ := l.Allowance(ctx, "alice", "escrow")
	if got != 20 {
		t.Fatalf("allowance = %d, want 20", got)
	}

	if err := l.TransferFrom(ctx, "escrow", "alice", "escrow", 21); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	mustBalance(t, l, "alice", 70)
	mustBalance(t, l, "escrow", 30)
}

func TestMemoryLedgerAllowanceExpires(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)

	_ = l.Mint(ctx, "alice", 100)
	_ = l.Approve(ctx, "alice", "escrow", 50, now.Add(time.Minute))

	*now = now.Add(time.Minute)
	got, _ := l.Allowance(ctx, "alice", "escrow")
	if got != 0 {
		t.Fatalf("expired allowance = %d, want 0", got)
	}
	if err := l.TransferFrom(ctx, "escrow", "alice", "escrow", 1); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestMemoryLedgerApproveValidation(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)

	if err := l.Approve(ctx, "alice", "escrow", 10, *now); !errors.Is(err, ErrExpiredApproval) {
		t.Fatalf("expected ErrExpiredApproval, got %v", err)
	}
	if err := l.Approve(ctx, "", "escrow", 10, now.Add(time.Hour)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	_ = l.Approve(ctx, "alice", "escrow", 10, now.Add(time.Hour))
	if err := l.Approve(ctx, "alice", "escrow", 0, time.Time{}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, _ := l.Allowance(ctx, "alice", "escrow")
	if got != 0 {
		t.Fatalf("revoked allowance = %d, want 0", got)
	}
}

func TestMemoryLedgerApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLedger(t)

	_ = l.Mint(ctx, "alice", 100)
	_ = l.Approve(ctx, "alice", "escrow", 100, now.Add(time.Hour))

	// Second leg overdraws the escrow, so the first leg must be rolled back.
	err := l.Apply(ctx,
		TransferFromOp("escrow", "alice", "escrow", 50),
		TransferOp("escrow", "bob", 80),
	)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	mustBalance(t, l, "alice", 100)
	mustBalance(t, l, "escrow", 0)
	mustBalance(t, l, "bob", 0)
	got, _ := l.Allowance(ctx, "alice", "escrow")
	if got != 100 {
		t.Fatalf("allowance after rollback = %d, want 100", got)
	}

	if err := l.Apply(ctx,
		TransferFromOp("escrow", "alice", "escrow", 50),
		TransferOp("escrow", "bob", 50),
	); err != nil {
		t.Fatalf("apply: %v", err)
	}
	mustBalance(t, l, "alice", 50)
	mustBalance(t, l, "bob", 50)
}

func TestMemoryLedgerMintOverflow(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_ = l.Mint(ctx, "alice", math.MaxUint64)
	if err := l.Mint(ctx, "alice", 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMemoryLedgerBurn(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_ = l.Mint(ctx, "alice", 10)
	if err := l.Burn(ctx, "alice", 4); err != nil {
		t.Fatalf("burn: %v", err)
	}
	mustBalance(t, l, "alice", 6)
	if err := l.Burn(ctx, "alice", 7); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
