package token

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger stores balances in ledger_accounts and approvals in
// ledger_allowances. Every call runs in its own transaction.
type PostgresLedger struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

func (l *PostgresLedger) Mint(ctx context.Context, to Address, amount uint64) error {
	if err := validateAddress(to); err != nil {
		return err
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		return credit(ctx, tx, to, amount)
	})
}

func (l *PostgresLedger) Burn(ctx context.Context, from Address, amount uint64) error {
	if err := validateAddress(from); err != nil {
		return err
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		return debit(ctx, tx, from, amount)
	})
}

func (l *PostgresLedger) Approve(ctx context.Context, owner, spender Address, amount uint64, expiresAt time.Time) error {
	if err := validateAddress(owner, spender); err != nil {
		return err
	}
	if amount == 0 {
		_, err := l.db.Exec(ctx,
			`DELETE FROM ledger_allowances WHERE owner = $1 AND spender = $2`,
			string(owner), string(spender))
		if err != nil {
			return fmt.Errorf("failed to revoke allowance: %w", err)
		}
		return nil
	}
	if !expiresAt.After(l.now()) {
		return ErrExpiredApproval
	}
	v, err := toBigint(amount)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_allowances (owner, spender, amount, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, spender)
		DO UPDATE SET amount = EXCLUDED.amount, expires_at = EXCLUDED.expires_at
	`
	if _, err := l.db.Exec(ctx, query, string(owner), string(spender), v, expiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert allowance: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Allowance(ctx context.Context, owner, spender Address) (uint64, error) {
	query := `
		SELECT amount FROM ledger_allowances
		WHERE owner = $1 AND spender = $2 AND expires_at > $3
	`
	var amount int64
	err := l.db.QueryRow(ctx, query, string(owner), string(spender), l.now().UTC()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read allowance: %w", err)
	}
	return uint64(amount), nil
}

func (l *PostgresLedger) Balance(ctx context.Context, addr Address) (uint64, error) {
	var balance int64
	err := l.db.QueryRow(ctx,
		`SELECT balance FROM ledger_accounts WHERE address = $1`,
		string(addr)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return uint64(balance), nil
}

func (l *PostgresLedger) Transfer(ctx context.Context, from, to Address, amount uint64) error {
	return l.Apply(ctx, TransferOp(from, to, amount))
}

func (l *PostgresLedger) TransferFrom(ctx context.Context, spender, from, to Address, amount uint64) error {
	return l.Apply(ctx, TransferFromOp(spender, from, to, amount))
}

func (l *PostgresLedger) Apply(ctx context.Context, ops ...Op) error {
	for _, op := range ops {
		if err := validateAddress(op.From, op.To); err != nil {
			return err
		}
		if op.Kind == OpTransferFrom {
			if err := validateAddress(op.Spender); err != nil {
				return err
			}
		}
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		for _, op := range ops {
			if op.Amount == 0 {
				continue
			}
			if op.Kind == OpTransferFrom {
				if err := l.spendAllowance(ctx, tx, op.From, op.Spender, op.Amount); err != nil {
					return err
				}
			}
			if err := debit(ctx, tx, op.From, op.Amount); err != nil {
				return err
			}
			if err := credit(ctx, tx, op.To, op.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *PostgresLedger) spendAllowance(ctx context.Context, tx pgx.Tx, owner, spender Address, amount uint64) error {
	spend, err := toBigint(amount)
	if err != nil {
		return err
	}
	query := `
		SELECT amount, expires_at FROM ledger_allowances
		WHERE owner = $1 AND spender = $2
		FOR UPDATE
	`
	var (
		current   int64
		expiresAt time.Time
	)
	err = tx.QueryRow(ctx, query, string(owner), string(spender)).Scan(&current, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInsufficientAllowance
	}
	if err != nil {
		return fmt.Errorf("failed to lock allowance: %w", err)
	}
	if !expiresAt.After(l.now()) || current < spend {
		return ErrInsufficientAllowance
	}

	_, err = tx.Exec(ctx,
		`UPDATE ledger_allowances SET amount = amount - $3 WHERE owner = $1 AND spender = $2`,
		string(owner), string(spender), spend)
	if err != nil {
		return fmt.Errorf("failed to spend allowance: %w", err)
	}
	return nil
}

func (l *PostgresLedger) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

func credit(ctx context.Context, tx pgx.Tx, to Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	v, err := toBigint(amount)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO ledger_accounts (address, balance)
		VALUES ($1, $2)
		ON CONFLICT (address)
		DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance
		RETURNING balance
	`
	var balance int64
	if err := tx.QueryRow(ctx, query, string(to), v).Scan(&balance); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22003" { // numeric_value_out_of_range
			return ErrInvalidAmount
		}
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// debit only touches the row when the balance covers the amount.
func debit(ctx context.Context, tx pgx.Tx, from Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	v, err := toBigint(amount)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE ledger_accounts SET balance = balance - $2 WHERE address = $1 AND balance >= $2`,
		string(from), v)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func toBigint(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, ErrInvalidAmount
	}
	return int64(amount), nil
}
