package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

var errOutOfRange = errors.New("value exceeds BIGINT range")

// ProjectRepository stores projects in the projects table. Objectives are
// kept as a JSONB array indexed by objective id.
type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Get returns escrow.ErrProjectNotFound when no row exists.
func (r *ProjectRepository) Get(ctx context.Context, id uint64) (*escrow.Project, error) {
	key, err := toInt64(id)
	if err != nil {
		return nil, escrow.ErrProjectNotFound
	}
	query := `
		SELECT id, client, freelancer, objectives, objectives_count,
		       completed_objectives, earned_amount, held, cancelled, completed
		FROM projects
		WHERE id = $1
	`
	var rowID, count, done, earned, held int64
	var client, freelancer string
	var objectives []byte
	var p escrow.Project
	err = r.db.QueryRow(ctx, query, key).Scan(
		&rowID, &client, &freelancer, &objectives, &count,
		&done, &earned, &held, &p.Cancelled, &p.Completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, escrow.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project %d: %w", id, err)
	}
	if err := json.Unmarshal(objectives, &p.Objectives); err != nil {
		return nil, fmt.Errorf("failed to decode objectives of project %d: %w", id, err)
	}

	p.ID = uint64(rowID)
	p.Client = escrow.Address(client)
	p.Freelancer = escrow.Address(freelancer)
	p.ObjectivesCount = uint64(count)
	p.CompletedObjectives = uint64(done)
	p.EarnedAmount = uint64(earned)
	p.Held = uint64(held)
	return &p, nil
}

// Put upserts the full project row.
func (r *ProjectRepository) Put(ctx context.Context, p *escrow.Project) error {
	objectives, err := json.Marshal(nonNil(p.Objectives))
	if err != nil {
		return fmt.Errorf("failed to encode objectives: %w", err)
	}
	args, err := int64s(p.ID, p.ObjectivesCount, p.CompletedObjectives, p.EarnedAmount, p.Held)
	if err != nil {
		return fmt.Errorf("project %d: %w", p.ID, err)
	}

	query := `
		INSERT INTO projects (id, client, freelancer, objectives, objectives_count,
		                      completed_objectives, earned_amount, held, cancelled, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			objectives           = EXCLUDED.objectives,
			objectives_count     = EXCLUDED.objectives_count,
			completed_objectives = EXCLUDED.completed_objectives,
			earned_amount        = EXCLUDED.earned_amount,
			held                 = EXCLUDED.held,
			cancelled            = EXCLUDED.cancelled,
			completed            = EXCLUDED.completed,
			updated_at           = NOW()
	`
	_, err = r.db.Exec(ctx, query,
		args[0], string(p.Client), string(p.Freelancer), objectives, args[1],
		args[2], args[3], args[4], p.Cancelled, p.Completed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project %d: %w", p.ID, err)
	}
	return nil
}

func (r *ProjectRepository) Exists(ctx context.Context, id uint64) (bool, error) {
	key, err := toInt64(id)
	if err != nil {
		return false, nil
	}
	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check project %d: %w", id, err)
	}
	return exists, nil
}

// NextID draws from project_id_seq, which starts at 1.
func (r *ProjectRepository) NextID(ctx context.Context) (uint64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('project_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate project id: %w", err)
	}
	return uint64(id), nil
}

// Count reports the last value handed out by project_id_seq, or 0 before the
// first allocation.
func (r *ProjectRepository) Count(ctx context.Context) (uint64, error) {
	var (
		last     int64
		isCalled bool
	)
	if err := r.db.QueryRow(ctx, `SELECT last_value, is_called FROM project_id_seq`).Scan(&last, &isCalled); err != nil {
		return 0, fmt.Errorf("failed to read project sequence: %w", err)
	}
	if !isCalled {
		return 0, nil
	}
	return uint64(last), nil
}

func toInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errOutOfRange
	}
	return int64(v), nil
}

func int64s(values ...uint64) ([]int64, error) {
	out := make([]int64, len(values))
	for i, v := range values {
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func nonNil(objectives []escrow.Objective) []escrow.Objective {
	if objectives == nil {
		return []escrow.Objective{}
	}
	return objectives
}

var _ escrow.Store = (*ProjectRepository)(nil)
