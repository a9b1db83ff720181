package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"duskmire/pkg/memory"
)

// Compile-time interface checks.
//
// Episodic memories and the knowledge base both define Search-shaped methods
// with conflicting signatures, so each concern is exposed as a sub-type via
// [Store.Memories], [Store.KB], [Store.Goals], and [Store.Needs].
var (
	_ memory.NpcMemoryStore     = (*MemoryStoreImpl)(nil)
	_ memory.WorldKnowledgeBase = (*KnowledgeBaseImpl)(nil)
	_ memory.NpcGoalStore       = (*GoalStoreImpl)(nil)
	_ memory.NpcNeedStore       = (*NeedStoreImpl)(nil)
	_ memory.Store              = (*Store)(nil)
)

// defaultEmbeddingDimensions matches nomic-embed-text, the embedding model
// the default deployment runs.
const defaultEmbeddingDimensions = 768

// defaultCandidateLimit is the recency pre-filter cap applied when the
// configuration does not set one.
const defaultCandidateLimit = 500

// Config configures a [Store].
type Config struct {
	// DSN is the PostgreSQL connection string. Required.
	DSN string

	// UseVector requests pgvector-backed similarity rerank. When the
	// extension cannot be installed the store downgrades to importance
	// ordering and logs a warning.
	UseVector bool

	// EmbeddingDimensions is the width of stored embedding vectors.
	// Defaults to 768 (nomic-embed-text) if zero.
	EmbeddingDimensions int

	// CandidateLimit caps the recency pre-filter of two-stage recall.
	// Clamped into [memory.MinCandidateLimit, memory.MaxCandidateLimit].
	CandidateLimit int

	// EmbedText derives an embedding for knowledge-base entries that arrive
	// without one. Optional; nil disables auto-embedding.
	EmbedText func(ctx context.Context, text string) ([]float32, error)
}

// Store is the PostgreSQL-backed [memory.Store]. It holds a single
// [pgxpool.Pool] and exposes the four memory concerns as sub-types.
//
// All operations are safe for concurrent use.
type Store struct {
	pool          *pgxpool.Pool
	vectorEnabled bool

	memories *MemoryStoreImpl
	kb       *KnowledgeBaseImpl
	goals    *GoalStoreImpl
	needs    *NeedStoreImpl
}

// NewStore bootstraps the schema and returns a connected [Store].
//
// Bootstrap order: create the database via the administrative connection when
// absent, install the vector extension when requested, create missing tables
// and indexes, then open the pool (registering pgvector types on every
// connection when vector support was activated).
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres store: empty dsn")
	}
	dims := cfg.EmbeddingDimensions
	if dims <= 0 {
		dims = defaultEmbeddingDimensions
	}
	candidateLimit := cfg.CandidateLimit
	if candidateLimit == 0 {
		candidateLimit = defaultCandidateLimit
	}
	candidateLimit = memory.ClampCandidateLimit(candidateLimit)

	ensureDatabase(ctx, cfg.DSN)

	// Run DDL on a dedicated connection before the pool exists, so the pool's
	// AfterConnect hook can assume the vector type is already present.
	boot, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: bootstrap connect: %w", err)
	}
	vectorEnabled, err := migrate(ctx, boot, cfg.UseVector, dims)
	_ = boot.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if vectorEnabled {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	slog.Info("memory store ready",
		"vector_enabled", vectorEnabled,
		"embedding_dimensions", dims,
		"candidate_limit", candidateLimit,
	)

	return &Store{
		pool:          pool,
		vectorEnabled: vectorEnabled,
		memories: &MemoryStoreImpl{
			pool:           pool,
			vectorEnabled:  vectorEnabled,
			candidateLimit: candidateLimit,
		},
		kb: &KnowledgeBaseImpl{
			pool:          pool,
			vectorEnabled: vectorEnabled,
			embedText:     cfg.EmbedText,
		},
		goals: &GoalStoreImpl{pool: pool},
		needs: &NeedStoreImpl{pool: pool},
	}, nil
}

// Memories returns the episodic memory store implementing [memory.NpcMemoryStore].
func (s *Store) Memories() memory.NpcMemoryStore { return s.memories }

// KB returns the knowledge base implementing [memory.WorldKnowledgeBase].
func (s *Store) KB() memory.WorldKnowledgeBase { return s.kb }

// Goals returns the goal store implementing [memory.NpcGoalStore].
func (s *Store) Goals() memory.NpcGoalStore { return s.goals }

// Needs returns the need store implementing [memory.NpcNeedStore].
func (s *Store) Needs() memory.NpcNeedStore { return s.needs }

// VectorEnabled reports whether bootstrap activated pgvector support.
func (s *Store) VectorEnabled() bool { return s.vectorEnabled }

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
