package escrow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/metrics"
)

// Store is the persistence boundary for projects. It has no business logic.
type Store interface {
	// Get returns ErrProjectNotFound when no record exists.
	Get(ctx context.Context, id uint64) (*Project, error)
	Put(ctx context.Context, p *Project) error
	Exists(ctx context.Context, id uint64) (bool, error)
	// NextID atomically allocates the next project id, starting at 1.
	NextID(ctx context.Context) (uint64, error)
	// Count returns the highest id allocated so far.
	Count(ctx context.Context) (uint64, error)
}

// Token is the fungible-token capability seen from the escrow holder.
type Token interface {
	// Deposit moves amount from payer to the escrow holder.
	Deposit(ctx context.Context, payer Address, amount uint64) error
	// Payout moves amount from the escrow holder to recipient.
	Payout(ctx context.Context, recipient Address, amount uint64) error
	BalanceOf(ctx context.Context, holder Address) (uint64, error)
	// Holder is the escrow custody address.
	Holder() Address
}

// Settler is implemented by token capabilities that can run the two legs of a
// completion payment (payer -> holder, holder -> recipient) atomically.
type Settler interface {
	Settle(ctx context.Context, payer, recipient Address, in, out uint64) error
}

// Engine owns every project state transition.
type Engine struct {
	store    Store
	token    Token
	notifier Notifier
	locker   Locker
	logger   *zap.Logger
	now      func() time.Time
	// commitTimeout bounds the store write and compensation that follow a
	// token movement.
	commitTimeout time.Duration
}

const defaultCommitTimeout = 5 * time.Second

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCommitTimeout sets how long the post-transfer store write may take.
func WithCommitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.commitTimeout = d
		}
	}
}

func NewEngine(store Store, token Token, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:         store,
		token:         token,
		notifier:      nopNotifier{},
		locker:        NewKeyedMutex(),
		logger:        log,
		now:           time.Now,
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// change is what an operation hands back to mutate for commit.
type change struct {
	events []Event
	// unchanged skips the store write.
	unchanged bool
	// compensate reverses external effects when the store write fails.
	compensate func(ctx context.Context) error
}

// mutate runs fn against a freshly loaded copy of the project while holding the
// project lock, then persists the copy and emits its events. fn must perform
// any token movement before returning; if it returns an error nothing is
// written.
func (e *Engine) mutate(ctx context.Context, op string, projectID uint64, fn func(p *Project) (*change, error)) (err error) {
	start := time.Now()
	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("operation", op),
		zap.Uint64("project_id", projectID),
	)
	defer func() { e.observe(log, op, start, err) }()

	unlock, err := e.locker.Lock(ctx, projectLockKey(projectID))
	if err != nil {
		return Wrap(CodeInternal, "acquire project lock", err)
	}
	defer unlock()

	p, err := e.load(ctx, projectID)
	if err != nil {
		return err
	}

	ch, err := fn(p)
	if err != nil {
		return err
	}

	// fn may already have moved funds: the write and any compensation must not
	// be cut short by the caller going away.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.commitTimeout)
	defer cancel()

	if !ch.unchanged {
		if err := e.store.Put(commitCtx, p); err != nil {
			if ch.compensate != nil {
				if cerr := ch.compensate(commitCtx); cerr != nil {
					log.Error("Failed to compensate token movement after store write failure",
						zap.Error(err),
						zap.NamedError("compensation_error", cerr),
					)
					return Wrap(CodeInternal, "persist project", errors.Join(err, cerr))
				}
			} else {
				log.Error("Project store write failed after funds moved", zap.Error(err))
			}
			return Wrap(CodeInternal, "persist project", err)
		}
	}

	e.emit(commitCtx, ch.events...)
	return nil
}

func (e *Engine) load(ctx context.Context, id uint64) (*Project, error) {
	p, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return nil, errorf(CodeNotFound, "project %d not found", id)
		}
		return nil, Wrap(CodeInternal, "load project", err)
	}
	return p, nil
}

func (e *Engine) emit(ctx context.Context, events ...Event) {
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = e.now().UTC()
		}
		e.notifier.Notify(ctx, ev)
	}
}

func (e *Engine) observe(log *zap.Logger, op string, start time.Time, err error) {
	duration := time.Since(start)
	result := "ok"
	if err != nil {
		result = string(CodeOf(err))
	}
	metrics.RecordEscrowOperation(op, result, duration)

	switch CodeOf(err) {
	case "":
		log.Info("Escrow operation succeeded", zap.Duration("took", duration))
	case CodeInternal:
		log.Error("Escrow operation failed", zap.Error(err), zap.Duration("took", duration))
	default:
		log.Warn("Escrow operation rejected",
			zap.String("code", string(CodeOf(err))),
			zap.Error(err),
		)
	}
}

// tokenError keeps domain codes set by the token capability and classifies
// everything else as internal.
func tokenError(message string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return Wrap(e.Code, message, err)
	}
	return Wrap(CodeInternal, message, err)
}

func requireClient(p *Project, caller Address) error {
	if caller == "" || caller != p.Client {
		return errorf(CodeUnauthorized, "caller %q is not the client of project %d", caller, p.ID)
	}
	return nil
}

func requireFreelancer(p *Project, caller Address) error {
	if caller == "" || caller != p.Freelancer {
		return errorf(CodeUnauthorized, "caller %q is not the freelancer of project %d", caller, p.ID)
	}
	return nil
}
