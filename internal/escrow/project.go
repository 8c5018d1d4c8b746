package escrow

// Address identifies an account: a client, a freelancer or the escrow holder.
type Address string

func (a Address) String() string {
	return string(a)
}

// ObjectiveState is the derived lifecycle position of an objective.
type ObjectiveState string

const (
	StateUnfunded   ObjectiveState = "unfunded"
	StateHalfFunded ObjectiveState = "half_funded"
	StateCompleted  ObjectiveState = "completed"
	StateRefunded   ObjectiveState = "refunded"
)

// Objective is a single priced milestone within a project.
type Objective struct {
	Price       uint64 `json:"price"`
	DepositPaid uint64 `json:"deposit_paid"`
	Funded      bool   `json:"funded"`
	Completed   bool   `json:"completed"`
	Refunded    bool   `json:"refunded"`
}

// State reports where the objective sits in Unfunded -> HalfFunded -> Completed,
// or Refunded after a cancelled project returned its deposit.
func (o Objective) State() ObjectiveState {
	switch {
	case o.Completed:
		return StateCompleted
	case o.Refunded:
		return StateRefunded
	case o.Funded:
		return StateHalfFunded
	default:
		return StateUnfunded
	}
}

// Project is a client/freelancer engagement made of objectives.
type Project struct {
	ID                  uint64      `json:"id"`
	Client              Address     `json:"client"`
	Freelancer          Address     `json:"freelancer"`
	Objectives          []Objective `json:"objectives"`
	ObjectivesCount     uint64      `json:"objectives_count"`
	CompletedObjectives uint64      `json:"completed_objectives"`
	EarnedAmount        uint64      `json:"earned_amount"`
	// Held is what the escrow holder currently keeps on behalf of this project.
	Held      uint64 `json:"held"`
	Cancelled bool   `json:"cancelled"`
	Completed bool   `json:"completed"`
}

// Active reports whether the project has not reached a terminal state.
func (p *Project) Active() bool {
	return !p.Cancelled && !p.Completed
}

// Clone returns a deep copy so callers never share objective storage.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Objectives = append([]Objective(nil), p.Objectives...)
	return &cp
}

func (p *Project) objective(id uint64) (*Objective, error) {
	if id >= uint64(len(p.Objectives)) {
		return nil, errorf(CodeNotFound, "objective %d not found in project %d", id, p.ID)
	}
	return &p.Objectives[id], nil
}

// appendObjectives adds unfunded objectives at the next contiguous indices and
// returns the index of the first one.
func (p *Project) appendObjectives(prices []uint64) uint64 {
	first := uint64(len(p.Objectives))
	for _, price := range prices {
		p.Objectives = append(p.Objectives, Objective{Price: price})
	}
	p.ObjectivesCount = uint64(len(p.Objectives))
	return first
}

func (p *Project) terminalError(op string) *Error {
	state := "completed"
	if p.Cancelled {
		state = "cancelled"
	}
	return errorf(CodeInvalidState, "cannot %s: project %d is %s", op, p.ID, state)
}

func validatePrices(prices []uint64) error {
	if len(prices) == 0 {
		return New(CodeInvalidInput, "at least one objective price is required")
	}
	for i, price := range prices {
		if price == 0 {
			return errorf(CodeInvalidInput, "objective price at position %d must be greater than zero", i)
		}
	}
	return nil
}
