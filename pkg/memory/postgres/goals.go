package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duskmire/pkg/memory"
)

// GoalStoreImpl is the goal store backed by the npc_goals table.
//
// Obtain one via [Store.Goals] rather than constructing directly.
// All methods are safe for concurrent use.
type GoalStoreImpl struct {
	pool *pgxpool.Pool
}

// Upsert implements [memory.NpcGoalStore]. It inserts or replaces the goal
// row for (goal.NpcID, goal.GoalType). The survive drive is rejected; it is a
// need, never a goal.
func (s *GoalStoreImpl) Upsert(ctx context.Context, goal memory.NpcGoal) error {
	if goal.NpcID == "" {
		return fmt.Errorf("goal store: upsert: empty npc id")
	}
	if goal.GoalType == "" {
		return fmt.Errorf("goal store: upsert: empty goal type")
	}
	if goal.GoalType == memory.GoalTypeSurvive {
		return fmt.Errorf("goal store: upsert: %q is a drive, not a goal", memory.GoalTypeSurvive)
	}

	paramsJSON, err := marshalParams(goal.Params)
	if err != nil {
		return fmt.Errorf("goal store: upsert: %w", err)
	}
	status := goal.Status
	if status == "" {
		status = memory.StatusActive
	}

	const q = `
		INSERT INTO npc_goals
		    (npc_id, goal_type, target_player, params, status, importance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (npc_id, goal_type) DO UPDATE SET
		    target_player = EXCLUDED.target_player,
		    params        = EXCLUDED.params,
		    status        = EXCLUDED.status,
		    importance    = EXCLUDED.importance,
		    updated_at    = now()`

	_, err = s.pool.Exec(ctx, q,
		goal.NpcID,
		goal.GoalType,
		goal.TargetPlayer,
		paramsJSON,
		status,
		goal.Importance,
	)
	if err != nil {
		return fmt.Errorf("goal store: upsert: %w", err)
	}
	return nil
}

// Get implements [memory.NpcGoalStore]. Returns (nil, nil) when no goal
// exists for (npcID, goalType).
func (s *GoalStoreImpl) Get(ctx context.Context, npcID, goalType string) (*memory.NpcGoal, error) {
	const q = `
		SELECT npc_id, goal_type, target_player, params, status, importance, updated_at
		FROM   npc_goals
		WHERE  npc_id = $1 AND goal_type = $2`

	rows, err := s.pool.Query(ctx, q, npcID, goalType)
	if err != nil {
		return nil, fmt.Errorf("goal store: get: %w", err)
	}
	goals, err := collectGoals(rows)
	if err != nil {
		return nil, fmt.Errorf("goal store: get: %w", err)
	}
	if len(goals) == 0 {
		return nil, nil
	}
	return &goals[0], nil
}

// GetAll implements [memory.NpcGoalStore]. It returns every goal for npcID
// ordered by ascending importance, excluding the survive drive.
func (s *GoalStoreImpl) GetAll(ctx context.Context, npcID string) ([]memory.NpcGoal, error) {
	const q = `
		SELECT npc_id, goal_type, target_player, params, status, importance, updated_at
		FROM   npc_goals
		WHERE  npc_id = $1 AND goal_type <> $2
		ORDER  BY importance, updated_at DESC`

	rows, err := s.pool.Query(ctx, q, npcID, memory.GoalTypeSurvive)
	if err != nil {
		return nil, fmt.Errorf("goal store: get all: %w", err)
	}
	goals, err := collectGoals(rows)
	if err != nil {
		return nil, fmt.Errorf("goal store: get all: %w", err)
	}
	return goals, nil
}

// UpdateParams implements [memory.NpcGoalStore]. It replaces the params
// document of an existing goal. Returns an error when the goal does not
// exist.
func (s *GoalStoreImpl) UpdateParams(ctx context.Context, npcID, goalType string, params map[string]any) error {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("goal store: update params: %w", err)
	}

	const q = `
		UPDATE npc_goals
		SET    params = $3, updated_at = now()
		WHERE  npc_id = $1 AND goal_type = $2`

	tag, err := s.pool.Exec(ctx, q, npcID, goalType, paramsJSON)
	if err != nil {
		return fmt.Errorf("goal store: update params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal store: update params: goal (%q, %q) not found", npcID, goalType)
	}
	return nil
}

// Clear implements [memory.NpcGoalStore]. Clearing a missing goal is not an
// error.
func (s *GoalStoreImpl) Clear(ctx context.Context, npcID, goalType string) error {
	const q = `DELETE FROM npc_goals WHERE npc_id = $1 AND goal_type = $2`
	if _, err := s.pool.Exec(ctx, q, npcID, goalType); err != nil {
		return fmt.Errorf("goal store: clear: %w", err)
	}
	return nil
}

// ClearAll implements [memory.NpcGoalStore]. When preserveSurvival is true
// any row typed survive is kept.
func (s *GoalStoreImpl) ClearAll(ctx context.Context, npcID string, preserveSurvival bool) error {
	q := `DELETE FROM npc_goals WHERE npc_id = $1`
	args := []any{npcID}
	if preserveSurvival {
		q += ` AND goal_type <> $2`
		args = append(args, memory.GoalTypeSurvive)
	}
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("goal store: clear all: %w", err)
	}
	return nil
}

// collectGoals scans pgx rows into a slice of NpcGoal values.
func collectGoals(rows pgx.Rows) ([]memory.NpcGoal, error) {
	goals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.NpcGoal, error) {
		var (
			g          memory.NpcGoal
			paramsJSON []byte
		)
		if err := row.Scan(
			&g.NpcID,
			&g.GoalType,
			&g.TargetPlayer,
			&paramsJSON,
			&g.Status,
			&g.Importance,
			&g.UpdatedAt,
		); err != nil {
			return memory.NpcGoal{}, err
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &g.Params); err != nil {
				return memory.NpcGoal{}, fmt.Errorf("unmarshal goal params: %w", err)
			}
		}
		if g.Params == nil {
			g.Params = map[string]any{}
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []memory.NpcGoal{}
	}
	return goals, nil
}

// marshalParams encodes a params map as JSONB, mapping nil to an empty
// object.
func marshalParams(params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return b, nil
}
