package escrow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/metrics"
)

const (
	OpCreateProject     = "create_project"
	OpAddObjectives     = "add_objective"
	OpFundObjective     = "fund_objective"
	OpCompleteObjective = "complete_objective"
	OpCancelProject     = "cancel_project"
	OpCompleteProject   = "complete_project"
	OpRefund            = "refund_remaining_funds"
)

// CreateProject allocates a project for client with one unfunded objective per
// price and returns its id. The caller must be the client.
func (e *Engine) CreateProject(ctx context.Context, caller, client, freelancer Address, prices []uint64) (id uint64, err error) {
	start := time.Now()
	log := logger.WithTrace(ctx, e.logger).With(zap.String("operation", OpCreateProject))
	defer func() { e.observe(log.With(zap.Uint64("project_id", id)), OpCreateProject, start, err) }()

	if client == "" || freelancer == "" {
		return 0, New(CodeInvalidInput, "client and freelancer are required")
	}
	if caller != client {
		return 0, errorf(CodeUnauthorized, "caller %q cannot create a project for client %q", caller, client)
	}
	if client == freelancer {
		return 0, New(CodeInvalidInput, "client and freelancer must be different")
	}
	if err := validatePrices(prices); err != nil {
		return 0, err
	}

	id, err = e.store.NextID(ctx)
	if err != nil {
		return 0, Wrap(CodeInternal, "allocate project id", err)
	}

	p := &Project{
		ID:         id,
		Client:     client,
		Freelancer: freelancer,
	}
	p.appendObjectives(prices)

	if err := e.store.Put(ctx, p); err != nil {
		return 0, Wrap(CodeInternal, "persist project", err)
	}

	e.emit(ctx, Event{
		Type:       EventProjectCreated,
		ProjectID:  id,
		Client:     client,
		Freelancer: freelancer,
		Prices:     append([]uint64(nil), prices...),
	})
	return id, nil
}

// AddObjectives appends unfunded objectives to an active project.
func (e *Engine) AddObjectives(ctx context.Context, caller Address, projectID uint64, prices []uint64) error {
	return e.mutate(ctx, OpAddObjectives, projectID, func(p *Project) (*change, error) {
		if err := requireClient(p, caller); err != nil {
			return nil, err
		}
		if !p.Active() {
			return nil, p.terminalError("add objectives")
		}
		if err := validatePrices(prices); err != nil {
			return nil, err
		}

		first := p.appendObjectives(prices)
		events := make([]Event, 0, len(prices))
		for i, price := range prices {
			events = append(events, Event{
				Type:        EventObjectiveAdded,
				ProjectID:   p.ID,
				ObjectiveID: objectiveRef(first + uint64(i)),
				Amount:      price,
			})
		}
		return &change{events: events}, nil
	})
}

// FundObjective escrows half of the objective price from the client. The
// remainder of an odd price stays with the completion payment.
func (e *Engine) FundObjective(ctx context.Context, caller Address, projectID, objectiveID uint64) error {
	return e.mutate(ctx, OpFundObjective, projectID, func(p *Project) (*change, error) {
		if err := requireClient(p, caller); err != nil {
			return nil, err
		}
		if !p.Active() {
			return nil, p.terminalError("fund objective")
		}
		o, err := p.objective(objectiveID)
		if err != nil {
			return nil, err
		}
		if o.Completed {
			return nil, errorf(CodeAlreadyCompleted, "objective %d of project %d is already completed", objectiveID, p.ID)
		}
		if o.Funded || o.DepositPaid > 0 {
			return nil, errorf(CodeAlreadyFunded, "objective %d of project %d is already funded", objectiveID, p.ID)
		}

		half := o.Price / 2
		if half > 0 {
			if err := e.token.Deposit(ctx, p.Client, half); err != nil {
				return nil, tokenError("deposit objective half", err)
			}
			metrics.AddFundsMoved(metrics.DirectionDeposit, half)
		}

		o.DepositPaid = half
		o.Funded = true
		p.Held += half

		client := p.Client
		return &change{
			events: []Event{{
				Type:        EventObjectiveFunded,
				ProjectID:   p.ID,
				ObjectiveID: objectiveRef(objectiveID),
				Amount:      half,
			}},
			compensate: func(ctx context.Context) error {
				if half == 0 {
					return nil
				}
				return e.token.Payout(ctx, client, half)
			},
		}, nil
	})
}

// CompleteObjective collects the remainder from the client and pays the full
// price to the freelancer. The objective is only marked completed once both
// transfers succeeded.
func (e *Engine) CompleteObjective(ctx context.Context, caller Address, projectID, objectiveID uint64) error {
	return e.mutate(ctx, OpCompleteObjective, projectID, func(p *Project) (*change, error) {
		if err := requireFreelancer(p, caller); err != nil {
			return nil, err
		}
		if !p.Active() {
			return nil, p.terminalError("complete objective")
		}
		o, err := p.objective(objectiveID)
		if err != nil {
			return nil, err
		}
		if o.Completed {
			return nil, errorf(CodeAlreadyCompleted, "objective %d of project %d is already completed", objectiveID, p.ID)
		}
		if !o.Funded {
			return nil, errorf(CodeObjectiveNotFunded, "objective %d of project %d is not funded", objectiveID, p.ID)
		}

		remaining := o.Price - o.DepositPaid
		if err := e.settle(ctx, p, remaining, o.Price); err != nil {
			return nil, err
		}

		o.Completed = true
		p.CompletedObjectives++
		p.EarnedAmount += o.Price
		p.Held = subFloor(p.Held+remaining, o.Price)

		return &change{
			events: []Event{{
				Type:        EventObjectiveCompleted,
				ProjectID:   p.ID,
				ObjectiveID: objectiveRef(objectiveID),
				Amount:      o.Price,
			}},
		}, nil
	})
}

// settle runs the completion payment either atomically, when the token
// capability supports it, or as two sequenced legs where the payout is only
// issued after the remainder arrived and a failed payout returns the
// remainder to the payer.
func (e *Engine) settle(ctx context.Context, p *Project, remaining, price uint64) error {
	if s, ok := e.token.(Settler); ok {
		if err := s.Settle(ctx, p.Client, p.Freelancer, remaining, price); err != nil {
			return tokenError("settle objective", err)
		}
		metrics.AddFundsMoved(metrics.DirectionDeposit, remaining)
		metrics.AddFundsMoved(metrics.DirectionPayout, price)
		return nil
	}

	if remaining > 0 {
		if err := e.token.Deposit(ctx, p.Client, remaining); err != nil {
			return tokenError("deposit objective remainder", err)
		}
	}
	if err := e.token.Payout(ctx, p.Freelancer, price); err != nil {
		if remaining > 0 {
			returnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.commitTimeout)
			cerr := e.token.Payout(returnCtx, p.Client, remaining)
			cancel()
			if cerr != nil {
				logger.WithTrace(ctx, e.logger).Error("Failed to return remainder after payout failure",
					zap.Uint64("project_id", p.ID),
					zap.Uint64("remainder", remaining),
					zap.Error(err),
					zap.NamedError("compensation_error", cerr),
				)
				return Wrap(CodeInternal, "pay freelancer", errors.Join(err, cerr))
			}
		}
		return tokenError("pay freelancer", err)
	}
	metrics.AddFundsMoved(metrics.DirectionDeposit, remaining)
	metrics.AddFundsMoved(metrics.DirectionPayout, price)
	return nil
}

// CancelProject moves an active project to the cancelled state. Funds are only
// returned by RefundRemainingFunds.
func (e *Engine) CancelProject(ctx context.Context, caller Address, projectID uint64) error {
	return e.mutate(ctx, OpCancelProject, projectID, func(p *Project) (*change, error) {
		if err := requireClient(p, caller); err != nil {
			return nil, err
		}
		if !p.Active() {
			return nil, p.terminalError("cancel project")
		}
		p.Cancelled = true
		return &change{
			events: []Event{{Type: EventProjectCancelled, ProjectID: p.ID}},
		}, nil
	})
}

// CompleteProject closes an active project once every objective is completed.
func (e *Engine) CompleteProject(ctx context.Context, caller Address, projectID uint64) error {
	return e.mutate(ctx, OpCompleteProject, projectID, func(p *Project) (*change, error) {
		if err := requireClient(p, caller); err != nil {
			return nil, err
		}
		if !p.Active() {
			return nil, p.terminalError("complete project")
		}
		if p.CompletedObjectives < p.ObjectivesCount {
			return nil, errorf(CodeIncompleteObjectives, "project %d has %d of %d objectives completed",
				p.ID, p.CompletedObjectives, p.ObjectivesCount)
		}
		p.Completed = true
		return &change{
			events: []Event{{Type: EventProjectCompleted, ProjectID: p.ID}},
		}, nil
	})
}

// RefundRemainingFunds returns the deposits of every funded, uncompleted
// objective of a cancelled project to the client and reports the amount
// transferred. Deposits are zeroed as they are counted, so a second call moves
// nothing. The transfer never exceeds what the project holds nor the holder's
// actual balance.
func (e *Engine) RefundRemainingFunds(ctx context.Context, caller Address, projectID uint64) (uint64, error) {
	var refunded uint64
	err := e.mutate(ctx, OpRefund, projectID, func(p *Project) (*change, error) {
		if err := requireClient(p, caller); err != nil {
			return nil, err
		}
		if !p.Cancelled {
			return nil, errorf(CodeInvalidState, "cannot refund: project %d is not cancelled", p.ID)
		}

		var refundable uint64
		touched := false
		for i := range p.Objectives {
			o := &p.Objectives[i]
			if o.Completed || !o.Funded || o.Refunded {
				continue
			}
			refundable += o.DepositPaid
			o.DepositPaid = 0
			o.Refunded = true
			touched = true
		}
		if !touched {
			return &change{unchanged: true}, nil
		}

		amount := min(refundable, p.Held)
		if amount > 0 {
			balance, err := e.token.BalanceOf(ctx, e.token.Holder())
			if err != nil {
				return nil, tokenError("read escrow balance", err)
			}
			if balance < amount {
				logger.WithTrace(ctx, e.logger).Warn("Escrow holder balance below refundable amount",
					zap.Uint64("project_id", p.ID),
					zap.Uint64("refundable", amount),
					zap.Uint64("balance", balance),
				)
				amount = balance
			}
		}
		if amount > 0 {
			if err := e.token.Payout(ctx, p.Client, amount); err != nil {
				return nil, tokenError("refund client", err)
			}
			metrics.AddFundsMoved(metrics.DirectionRefund, amount)
		}
		p.Held -= amount
		refunded = amount

		if amount == 0 {
			return &change{}, nil
		}
		client := p.Client
		return &change{
			events: []Event{{
				Type:      EventProjectRefunded,
				ProjectID: p.ID,
				Client:    client,
				Amount:    amount,
			}},
			compensate: func(ctx context.Context) error {
				return e.token.Deposit(ctx, client, amount)
			},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return refunded, nil
}

func subFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
