// Package indexing writes candidate embeddings for enriched profiles so
// they become retrievable.
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/embedder"
	"github.com/candidex/search/internal/repository"
)

// PromptVersion identifies the embedding-text template. Bump it when
// buildEmbeddingText changes so stale vectors can be told apart.
const PromptVersion = "profile-v1"

// Indexer turns a candidate profile into a complete embedding row. The
// entity id is always the canonical candidate id; a prefixed or rewritten id
// is rejected before anything is written.
type Indexer struct {
	embedder   embedder.Embedder
	embeddings repository.EmbeddingRepository
	profiles   repository.ProfileRepository
	logger     *slog.Logger
}

// NewIndexer creates an Indexer. The profile repository backs Reindex and
// may be nil when only push-style indexing is needed.
func NewIndexer(e embedder.Embedder, embeddings repository.EmbeddingRepository, profiles repository.ProfileRepository, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: e, embeddings: embeddings, profiles: profiles, logger: logger}
}

// IndexProfile embeds the profile and upserts its embedding record.
// Re-indexing the same candidate overwrites the previous vector.
func (ix *Indexer) IndexProfile(ctx context.Context, profile *repository.CandidateProfile) error {
	if err := repository.ValidateEntityID(profile.TenantID, profile.CandidateID, profile.CandidateID); err != nil {
		return fmt.Errorf("rejecting profile with non-canonical id: %w", err)
	}

	text := buildEmbeddingText(profile)
	vector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding profile %s: %w", profile.CandidateID, err)
	}

	rec := &repository.EmbeddingRecord{
		EntityID: profile.CandidateID,
		TenantID: profile.TenantID,
		Vector:   vector,
		Metadata: repository.EmbeddingMetadata{
			Source:        "enrichment",
			ModelVersion:  ix.embedder.ModelName(),
			PromptVersion: PromptVersion,
			CreatedAt:     time.Now().UTC(),
		},
	}
	if err := ix.embeddings.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upserting embedding for %s: %w", profile.CandidateID, err)
	}

	ix.logger.Info("profile indexed",
		"tenant_id", profile.TenantID,
		"candidate_id", profile.CandidateID,
		"dimensions", len(vector),
	)
	return nil
}

// Reindex re-embeds a profile already stored by the enrichment pipeline,
// for example after an embedding model upgrade.
func (ix *Indexer) Reindex(ctx context.Context, tenantID uuid.UUID, candidateID string) error {
	if ix.profiles == nil {
		return fmt.Errorf("reindex requires a profile repository")
	}
	profile, err := ix.profiles.Get(ctx, tenantID, candidateID)
	if err != nil {
		return fmt.Errorf("loading profile %s: %w", candidateID, err)
	}
	return ix.IndexProfile(ctx, profile)
}

// buildEmbeddingText flattens the profile into the text that gets embedded.
// Skills and seniority are appended so they pull semantically similar
// queries toward the profile even when the summary omits them.
func buildEmbeddingText(profile *repository.CandidateProfile) string {
	var sb strings.Builder
	sb.WriteString(profile.Summary)

	if profile.Seniority != "" {
		sb.WriteString("\nSeniority: ")
		sb.WriteString(profile.Seniority)
	}
	if profile.YearsExperience > 0 {
		sb.WriteString(fmt.Sprintf("\nYears of experience: %.0f", profile.YearsExperience))
	}
	if len(profile.Skills) > 0 {
		names := make([]string, 0, len(profile.Skills))
		for _, s := range profile.Skills {
			names = append(names, s.Name)
		}
		sb.WriteString("\nSkills: ")
		sb.WriteString(strings.Join(names, ", "))
	}
	return sb.String()
}
