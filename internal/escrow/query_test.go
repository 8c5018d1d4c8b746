package escrow_test

import (
	"context"
	"testing"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

func TestProjectsByRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.create(t, 10)
	if _, err := f.engine.CreateProject(ctx, stranger, stranger, client, []uint64{5}); err != nil {
		t.Fatalf("create: %v", err)
	}
	b := f.create(t, 20)

	mine, err := f.engine.ProjectsByClient(ctx, client)
	if err != nil {
		t.Fatalf("by client: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != a || mine[1].ID != b {
		t.Fatalf("unexpected client projects %+v", mine)
	}

	work, err := f.engine.ProjectsByFreelancer(ctx, client)
	if err != nil {
		t.Fatalf("by freelancer: %v", err)
	}
	if len(work) != 1 || work[0].Client != stranger {
		t.Fatalf("unexpected freelancer projects %+v", work)
	}

	none, err := f.engine.ProjectsByClient(ctx, "nobody")
	if err != nil {
		t.Fatalf("by unknown: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", none)
	}
}

func TestProjectsSkipsUnpersistedIDs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// An id allocated without a record, e.g. a crash between NextID and Put.
	if _, err := f.store.NextID(ctx); err != nil {
		t.Fatalf("next id: %v", err)
	}
	id := f.create(t, 10)

	got, err := f.engine.ProjectsByClient(ctx, client)
	if err != nil {
		t.Fatalf("by client: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("unexpected projects %+v", got)
	}

	if _, err := f.engine.Project(ctx, 1); escrow.CodeOf(err) != escrow.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}
