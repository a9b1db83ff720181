// Package postgres provides the PostgreSQL-backed implementation of the
// Duskmire memory architecture (episodic memories, world knowledge base,
// goals, needs).
//
// All four stores share a single [pgxpool.Pool]. Vector similarity is
// optional: when [Config.UseVector] is set, bootstrap attempts CREATE
// EXTENSION vector and, on success, adds embedding columns and HNSW indexes.
// When the extension is unavailable the store falls back to importance and
// recency ordering and reports the downgrade via [Store.VectorEnabled].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, postgres.Config{DSN: dsn, UseVector: true})
//	if err != nil { … }
//
//	_ = store.Memories().Add(ctx, mem)
//	hits, _ := store.KB().Search(ctx, q)
//	goals, _ := store.Goals().GetAll(ctx, npcID)
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — episodic memories
// ─────────────────────────────────────────────────────────────────────────────

const ddlMemories = `
CREATE TABLE IF NOT EXISTS npc_memories (
    id             TEXT         PRIMARY KEY,
    npc_id         TEXT         NOT NULL,
    subject_player TEXT         NOT NULL DEFAULT '',
    room_id        TEXT         NOT NULL DEFAULT '',
    area_id        TEXT         NOT NULL DEFAULT '',
    kind           TEXT         NOT NULL DEFAULT '',
    importance     INT          NOT NULL DEFAULT 0 CHECK (importance BETWEEN 0 AND 100),
    tags           TEXT[]       NOT NULL DEFAULT '{}',
    content        TEXT         NOT NULL,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expires_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_npc_memories_npc_created
    ON npc_memories (npc_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_npc_memories_subject
    ON npc_memories (subject_player);

CREATE INDEX IF NOT EXISTS idx_npc_memories_tags
    ON npc_memories USING GIN (tags);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — world knowledge base
// ─────────────────────────────────────────────────────────────────────────────

const ddlWorldKb = `
CREATE TABLE IF NOT EXISTS world_kb (
    key        TEXT         PRIMARY KEY,
    value      JSONB        NOT NULL DEFAULT 'null',
    tags       TEXT[]       NOT NULL DEFAULT '{}',
    visibility TEXT         NOT NULL DEFAULT 'public',
    npc_ids    TEXT[],
    summary    TEXT         NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_world_kb_tags
    ON world_kb USING GIN (tags);

CREATE INDEX IF NOT EXISTS idx_world_kb_fts
    ON world_kb USING GIN (to_tsvector('english', summary || ' ' || value::text));
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — goals and needs
// ─────────────────────────────────────────────────────────────────────────────

const ddlGoalsNeeds = `
CREATE TABLE IF NOT EXISTS npc_goals (
    npc_id        TEXT        NOT NULL,
    goal_type     TEXT        NOT NULL,
    target_player TEXT        NOT NULL DEFAULT '',
    params        JSONB       NOT NULL DEFAULT '{}',
    status        TEXT        NOT NULL DEFAULT 'active',
    importance    INT         NOT NULL DEFAULT 50,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (npc_id, goal_type)
);

CREATE INDEX IF NOT EXISTS idx_npc_goals_npc_importance
    ON npc_goals (npc_id, importance);

CREATE TABLE IF NOT EXISTS npc_needs (
    npc_id     TEXT        NOT NULL,
    need_type  TEXT        NOT NULL,
    level      INT         NOT NULL DEFAULT 1,
    params     JSONB       NOT NULL DEFAULT '{}',
    status     TEXT        NOT NULL DEFAULT 'active',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (npc_id, need_type)
);

CREATE INDEX IF NOT EXISTS idx_npc_needs_npc_level
    ON npc_needs (npc_id, level);
`

// ddlVector returns the vector-column DDL with the embedding dimension
// substituted. The dimension is baked into the column type at schema creation
// time; changing it later requires a manual migration.
func ddlVector(embeddingDimensions int) string {
	return fmt.Sprintf(`
ALTER TABLE npc_memories ADD COLUMN IF NOT EXISTS embedding vector(%[1]d);
ALTER TABLE world_kb     ADD COLUMN IF NOT EXISTS embedding vector(%[1]d);

CREATE INDEX IF NOT EXISTS idx_npc_memories_embedding
    ON npc_memories USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_world_kb_embedding
    ON world_kb USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// ensureDatabase connects to the administrative "postgres" database and
// creates the database named in dsn when it does not exist. Failures are
// logged and swallowed; the subsequent pool connect surfaces the real error
// when the database genuinely cannot be reached.
func ensureDatabase(ctx context.Context, dsn string) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil || cfg.Database == "" || cfg.Database == "postgres" {
		return
	}
	target := cfg.Database

	admin := cfg.Copy()
	admin.Database = "postgres"
	conn, err := pgx.ConnectConfig(ctx, admin)
	if err != nil {
		slog.Warn("memory bootstrap: administrative connect failed, skipping database creation",
			"database", target, "error", err)
		return
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, target,
	).Scan(&exists)
	if err != nil {
		slog.Warn("memory bootstrap: database existence check failed",
			"database", target, "error", err)
		return
	}
	if exists {
		return
	}

	// CREATE DATABASE cannot be parameterized; the identifier is quoted.
	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{target}.Sanitize())
	if err != nil {
		slog.Warn("memory bootstrap: create database failed",
			"database", target, "error", err)
		return
	}
	slog.Info("memory bootstrap: created database", "database", target)
}

// migrate creates or ensures all required tables, indexes, and (optionally)
// the vector extension on a single bootstrap connection. It is idempotent and
// safe to run on every application start.
//
// Returns whether vector support was activated.
func migrate(ctx context.Context, conn *pgx.Conn, useVector bool, embeddingDimensions int) (bool, error) {
	vectorEnabled := false
	if useVector {
		if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			slog.Warn("memory bootstrap: vector extension unavailable, similarity rerank disabled",
				"error", err)
		} else {
			vectorEnabled = true
		}
	}

	statements := []string{
		ddlMemories,
		ddlWorldKb,
		ddlGoalsNeeds,
	}
	if vectorEnabled {
		statements = append(statements, ddlVector(embeddingDimensions))
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return false, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return vectorEnabled, nil
}
