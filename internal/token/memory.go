package token

import (
	"context"
	"sync"
	"time"
)

type allowanceKey struct {
	owner, spender Address
}

type allowance struct {
	amount    uint64
	expiresAt time.Time
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[Address]uint64
	allowances map[allowanceKey]allowance
	now        func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[Address]uint64),
		allowances: make(map[allowanceKey]allowance),
		now:        time.Now,
	}
}

// SetClock replaces the clock used for allowance expiry.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryLedger) Mint(_ context.Context, to Address, amount uint64) error {
	if err := validateAddress(to); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(to, amount)
}

func (l *MemoryLedger) Burn(_ context.Context, from Address, amount uint64) error {
	if err := validateAddress(from); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debit(from, amount)
}

func (l *MemoryLedger) Approve(_ context.Context, owner, spender Address, amount uint64, expiresAt time.Time) error {
	if err := validateAddress(owner, spender); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{owner: owner, spender: spender}
	if amount == 0 {
		delete(l.allowances, key)
		return nil
	}
	if !expiresAt.After(l.now()) {
		return ErrExpiredApproval
	}
	l.allowances[key] = allowance{amount: amount, expiresAt: expiresAt}
	return nil
}

func (l *MemoryLedger) Allowance(_ context.Context, owner, spender Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(allowanceKey{owner: owner, spender: spender}), nil
}

func (l *MemoryLedger) Balance(_ context.Context, addr Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr], nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to Address, amount uint64) error {
	return l.Apply(ctx, TransferOp(from, to, amount))
}

func (l *MemoryLedger) TransferFrom(ctx context.Context, spender, from, to Address, amount uint64) error {
	return l.Apply(ctx, TransferFromOp(spender, from, to, amount))
}

func (l *MemoryLedger) Apply(ctx context.Context, ops ...Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
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

	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[Address]uint64)
	allowances := make(map[allowanceKey]allowance)
	for _, op := range ops {
		for _, a := range []Address{op.From, op.To} {
			if _, ok := balances[a]; !ok {
				balances[a] = l.balances[a]
			}
		}
		if op.Kind == OpTransferFrom {
			key := allowanceKey{owner: op.From, spender: op.Spender}
			if _, ok := allowances[key]; !ok {
				allowances[key] = l.allowances[key]
			}
		}
	}

	for _, op := range ops {
		if err := l.apply(op); err != nil {
			l.restore(balances, allowances)
			return err
		}
	}
	return nil
}

func (l *MemoryLedger) apply(op Op) error {
	if op.Amount == 0 {
		return nil
	}
	if op.Kind == OpTransferFrom {
		key := allowanceKey{owner: op.From, spender: op.Spender}
		current := l.allowance(key)
		if current < op.Amount {
			return ErrInsufficientAllowance
		}
		a := l.allowances[key]
		a.amount = current - op.Amount
		l.allowances[key] = a
	}
	if err := l.debit(op.From, op.Amount); err != nil {
		return err
	}
	return l.credit(op.To, op.Amount)
}

func (l *MemoryLedger) restore(balances map[Address]uint64, allowances map[allowanceKey]allowance) {
	for a, b := range balances {
		if b == 0 {
			delete(l.balances, a)
			continue
		}
		l.balances[a] = b
	}
	for k, v := range allowances {
		if v.amount == 0 {
			delete(l.allowances, k)
			continue
		}
		l.allowances[k] = v
	}
}

func (l *MemoryLedger) allowance(key allowanceKey) uint64 {
	a, ok := l.allowances[key]
	if !ok || !a.expiresAt.After(l.now()) {
		return 0
	}
	return a.amount
}

func (l *MemoryLedger) credit(to Address, amount uint64) error {
	sum, err := addBalance(l.balances[to], amount)
	if err != nil {
		return err
	}
	l.balances[to] = sum
	return nil
}

func (l *MemoryLedger) debit(from Address, amount uint64) error {
	if l.balances[from] < amount {
		return ErrInsufficientFunds
	}
	l.balances[from] -= amount
	return nil
}
