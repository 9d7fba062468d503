package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/candidex/search/internal/repository"
)

// EmbeddingRepo implements repository.EmbeddingRepository on a pgvector
// table.
type EmbeddingRepo struct {
	db *DB
}

// NewEmbeddingRepo creates a new embedding repository
func NewEmbeddingRepo(db *DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// Upsert writes a complete embedding row, replacing any previous vector for
// the same entity. The entity id must be the canonical candidate id: a
// prefixed id is rejected here rather than silently breaking retrieval joins
// later.
func (r *EmbeddingRepo) Upsert(ctx context.Context, rec *repository.EmbeddingRecord) error {
	if err := repository.ValidateEntityID(rec.TenantID, rec.EntityID, rec.EntityID); err != nil {
		return fmt.Errorf("invalid embedding entity id: %w", err)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}

	query := `
		INSERT INTO candidate_embeddings
			(entity_id, tenant_id, embedding, source, model_version, prompt_version, created_at)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, entity_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			source = EXCLUDED.source,
			model_version = EXCLUDED.model_version,
			prompt_version = EXCLUDED.prompt_version,
			created_at = EXCLUDED.created_at
	`
	_, err := r.db.Pool.Exec(ctx, query,
		rec.EntityID, rec.TenantID, VectorLiteral(rec.Vector),
		rec.Metadata.Source, rec.Metadata.ModelVersion, rec.Metadata.PromptVersion,
		rec.Metadata.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// VectorLiteral renders a float32 slice in pgvector's input format,
// e.g. [0.1,0.2,0.3].
func VectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Ensure EmbeddingRepo implements the interface
var _ repository.EmbeddingRepository = (*EmbeddingRepo)(nil)
