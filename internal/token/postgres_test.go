package token

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JoelVR17/Trustless-Work-Test/internal/repository"
)

func newTestPostgresLedger(t *testing.T) *PostgresLedger {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE ledger_accounts, ledger_allowances`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresLedger(pool)
}

func TestPostgresLedgerApplyRollsBack(t *testing.T) {
	l := newTestPostgresLedger(t)
	ctx := context.Background()

	if err := l.Mint(ctx, "alice", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Approve(ctx, "alice", "escrow", 100, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	err := l.Apply(ctx,
		TransferFromOp("escrow", "alice", "escrow", 50),
		TransferOp("escrow", "bob", 80),
	)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	mustBalance(t, l, "alice", 100)
	mustBalance(t, l, "escrow", 0)

	got, _ := l.Allowance(ctx, "alice", "escrow")
	if got != 100 {
		t.Fatalf("allowance = %d, want 100", got)
	}

	if err := l.TransferFrom(ctx, "escrow", "alice", "bob", 30); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	mustBalance(t, l, "alice", 70)
	mustBalance(t, l, "bob", 30)
}

func TestPostgresLedgerRejectsAllowanceBeyondBigint(t *testing.T) {
	l := newTestPostgresLedger(t)
	ctx := context.Background()

	if err := l.Mint(ctx, "alice", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Approve(ctx, "alice", "escrow", 100, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	err := l.TransferFrom(ctx, "escrow", "alice", "bob", math.MaxInt64+1)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	mustBalance(t, l, "alice", 100)
	got, _ := l.Allowance(ctx, "alice", "escrow")
	if got != 100 {
		t.Fatalf("allowance = %d, want 100", got)
	}
}
