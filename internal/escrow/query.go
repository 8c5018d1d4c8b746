package escrow

import (
	"context"
	"errors"
)

// Project returns a single project by id.
func (e *Engine) Project(ctx context.Context, id uint64) (*Project, error) {
	return e.load(ctx, id)
}

// ProjectsByClient returns the projects whose client is addr, in ascending id order.
func (e *Engine) ProjectsByClient(ctx context.Context, addr Address) ([]*Project, error) {
	return e.scan(ctx, func(p *Project) bool { return p.Client == addr })
}

// ProjectsByFreelancer returns the projects whose freelancer is addr, in ascending id order.
func (e *Engine) ProjectsByFreelancer(ctx context.Context, addr Address) ([]*Project, error) {
	return e.scan(ctx, func(p *Project) bool { return p.Freelancer == addr })
}

// scan walks ids 1..Count. Ids that were allocated but never persisted are skipped.
func (e *Engine) scan(ctx context.Context, match func(*Project) bool) ([]*Project, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return nil, Wrap(CodeInternal, "count projects", err)
	}

	result := []*Project{}
	for id := uint64(1); id <= count; id++ {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(CodeInternal, "scan projects", err)
		}
		p, err := e.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				continue
			}
			return nil, Wrap(CodeInternal, "load project", err)
		}
		if match(p) {
			result = append(result, p)
		}
	}
	return result, nil
}
