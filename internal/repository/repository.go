// Package repository defines domain models and data access interfaces for
// tenants, candidate profiles, and candidate embeddings.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SkillCategory classifies a candidate skill.
type SkillCategory string

const (
	SkillTechnical  SkillCategory = "technical"
	SkillSoft       SkillCategory = "soft"
	SkillLeadership SkillCategory = "leadership"
	SkillDomain     SkillCategory = "domain"
)

// Skill is one structured skill on a candidate profile.
type Skill struct {
	Name       string        `json:"name"`
	Category   SkillCategory `json:"category"`
	Confidence float64       `json:"confidence"` // 0..100
	Evidence   []string      `json:"evidence,omitempty"`
}

// CandidateProfile is the enriched, read-only view of a candidate. Profiles
// are produced by the upstream enrichment pipeline; this service only reads
// them.
type CandidateProfile struct {
	CandidateID     string    `json:"candidate_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Skills          []Skill   `json:"skills"`
	Seniority       string    `json:"seniority"`
	YearsExperience float64   `json:"years_experience"`
	CompanyTier     string    `json:"company_tier"`
	Summary         string    `json:"summary"`
	Confidence      float64   `json:"confidence"` // enrichment confidence, 0..100
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EmbeddingMetadata describes how an embedding vector was produced.
type EmbeddingMetadata struct {
	Source        string    `json:"source"`
	ModelVersion  string    `json:"model_version"`
	PromptVersion string    `json:"prompt_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// EmbeddingRecord is one candidate embedding row. EntityID must be the
// canonical candidate id, byte for byte: retrieval joins embedding rows to
// profile rows on it, and a mismatch silently produces zero results.
type EmbeddingRecord struct {
	EntityID string
	TenantID uuid.UUID
	Vector   []float32
	Metadata EmbeddingMetadata
}

// Tenant represents a tenant in the system
type Tenant struct {
	ID        uuid.UUID
	Name      string
	APIKey    string
	Config    TenantConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantConfig holds tenant-specific search configuration
type TenantConfig struct {
	RerankEnabled bool    `json:"rerank_enabled"`
	TopK          int     `json:"top_k"`
	MinScore      float32 `json:"min_score"`
}

// TenantRepository defines the tenant lookups the service needs.
// Provisioning is owned by an external system.
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
}

// ProfileRepository reads candidate profiles written by the enrichment
// pipeline.
type ProfileRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID, candidateID string) (*CandidateProfile, error)
}

// EmbeddingRepository persists candidate embeddings. Upsert writes a complete
// vector+metadata row or nothing.
type EmbeddingRepository interface {
	Upsert(ctx context.Context, rec *EmbeddingRecord) error
}

// ValidateEntityID enforces the canonical-id join contract: the embedding
// entity id must equal the candidate id exactly, with no tenant prefix. A
// prefixed id would never join back to a profile row and the candidate would
// silently vanish from search results.
func ValidateEntityID(tenantID uuid.UUID, entityID, candidateID string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is empty")
	}
	if entityID != candidateID {
		return fmt.Errorf("entity id %q does not match candidate id %q", entityID, candidateID)
	}
	if strings.Contains(entityID, ":") {
		return fmt.Errorf("entity id %q contains a prefix separator", entityID)
	}
	if strings.HasPrefix(entityID, tenantID.String()) {
		return fmt.Errorf("entity id %q is prefixed with the tenant id", entityID)
	}
	return nil
}
