package token

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/circuitbreaker"
)

// NewGuarded wraps inner with a circuit breaker. Only infrastructure failures
// (errors without a business code) count against the breaker; an open breaker
// rejects calls before any transfer starts. The returned value keeps the
// escrow.Settler capability when inner has it.
func NewGuarded(inner escrow.Token, cfg circuitbreaker.Config, log *zap.Logger) escrow.Token {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "token"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = isInfrastructureError
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}

	g := &guarded{inner: inner, cb: circuitbreaker.NewCircuitBreaker(cfg)}
	if s, ok := inner.(escrow.Settler); ok {
		return &guardedSettler{guarded: g, settler: s}
	}
	return g
}

type guarded struct {
	inner escrow.Token
	cb    *circuitbreaker.CircuitBreaker
}

func (g *guarded) Holder() escrow.Address { return g.inner.Holder() }

func (g *guarded) Deposit(ctx context.Context, payer escrow.Address, amount uint64) error {
	return g.cb.Execute(func() error { return g.inner.Deposit(ctx, payer, amount) })
}

func (g *guarded) Payout(ctx context.Context, recipient escrow.Address, amount uint64) error {
	return g.cb.Execute(func() error { return g.inner.Payout(ctx, recipient, amount) })
}

func (g *guarded) BalanceOf(ctx context.Context, holder escrow.Address) (uint64, error) {
	var balance uint64
	err := g.cb.Execute(func() error {
		var err error
		balance, err = g.inner.BalanceOf(ctx, holder)
		return err
	})
	return balance, err
}

type guardedSettler struct {
	*guarded
	settler escrow.Settler
}

func (g *guardedSettler) Settle(ctx context.Context, payer, recipient escrow.Address, in, out uint64) error {
	return g.cb.Execute(func() error { return g.settler.Settle(ctx, payer, recipient, in, out) })
}

func isInfrastructureError(err error) bool {
	return escrow.CodeOf(err) == escrow.CodeInternal
}
