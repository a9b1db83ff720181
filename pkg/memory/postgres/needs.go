package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duskmire/pkg/memory"
)

// NeedStoreImpl is the need store backed by the npc_needs table.
//
// Obtain one via [Store.Needs] rather than constructing directly.
// All methods are safe for concurrent use.
type NeedStoreImpl struct {
	pool *pgxpool.Pool
}

// Upsert implements [memory.NpcNeedStore]. It inserts or replaces the need
// row for (need.NpcID, need.NeedType).
func (s *NeedStoreImpl) Upsert(ctx context.Context, need memory.NpcNeed) error {
	if need.NpcID == "" {
		return fmt.Errorf("need store: upsert: empty npc id")
	}
	if need.NeedType == "" {
		return fmt.Errorf("need store: upsert: empty need type")
	}

	paramsJSON, err := marshalParams(need.Params)
	if err != nil {
		return fmt.Errorf("need store: upsert: %w", err)
	}
	status := need.Status
	if status == "" {
		status = memory.StatusActive
	}
	level := need.Level
	if level < 1 {
		level = 1
	}

	const q = `
		INSERT INTO npc_needs
		    (npc_id, need_type, level, params, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (npc_id, need_type) DO UPDATE SET
		    level      = EXCLUDED.level,
		    params     = EXCLUDED.params,
		    status     = EXCLUDED.status,
		    updated_at = now()`

	_, err = s.pool.Exec(ctx, q,
		need.NpcID,
		need.NeedType,
		level,
		paramsJSON,
		status,
	)
	if err != nil {
		return fmt.Errorf("need store: upsert: %w", err)
	}
	return nil
}

// GetAll implements [memory.NpcNeedStore]. It returns every need for npcID
// ordered by ascending level, strongest drive first.
func (s *NeedStoreImpl) GetAll(ctx context.Context, npcID string) ([]memory.NpcNeed, error) {
	const q = `
		SELECT npc_id, need_type, level, params, status, updated_at
		FROM   npc_needs
		WHERE  npc_id = $1
		ORDER  BY level, updated_at DESC`

	rows, err := s.pool.Query(ctx, q, npcID)
	if err != nil {
		return nil, fmt.Errorf("need store: get all: %w", err)
	}
	needs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.NpcNeed, error) {
		var (
			n          memory.NpcNeed
			paramsJSON []byte
		)
		if err := row.Scan(
			&n.NpcID,
			&n.NeedType,
			&n.Level,
			&paramsJSON,
			&n.Status,
			&n.UpdatedAt,
		); err != nil {
			return memory.NpcNeed{}, err
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &n.Params); err != nil {
				return memory.NpcNeed{}, fmt.Errorf("unmarshal need params: %w", err)
			}
		}
		if n.Params == nil {
			n.Params = map[string]any{}
		}
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("need store: get all: scan: %w", err)
	}
	if needs == nil {
		needs = []memory.NpcNeed{}
	}
	return needs, nil
}

// Clear implements [memory.NpcNeedStore]. Clearing a missing need is not an
// error.
func (s *NeedStoreImpl) Clear(ctx context.Context, npcID, needType string) error {
	const q = `DELETE FROM npc_needs WHERE npc_id = $1 AND need_type = $2`
	if _, err := s.pool.Exec(ctx, q, npcID, needType); err != nil {
		return fmt.Errorf("need store: clear: %w", err)
	}
	return nil
}
