package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/candidex/search/internal/repository"
)

// ProfileRepo implements repository.ProfileRepository
type ProfileRepo struct {
	db *DB
}

// NewProfileRepo creates a new candidate profile repository
func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Get retrieves a candidate profile by its canonical candidate id, scoped to
// a tenant.
func (r *ProfileRepo) Get(ctx context.Context, tenantID uuid.UUID, candidateID string) (*repository.CandidateProfile, error) {
	query := `
		SELECT candidate_id, tenant_id, skills, seniority, years_experience,
		       company_tier, summary, confidence, created_at, updated_at
		FROM candidate_profiles
		WHERE tenant_id = $1 AND candidate_id = $2
	`

	var p repository.CandidateProfile
	var skillsJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, tenantID, candidateID).Scan(
		&p.CandidateID, &p.TenantID, &skillsJSON, &p.Seniority, &p.YearsExperience,
		&p.CompanyTier, &p.Summary, &p.Confidence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := json.Unmarshal(skillsJSON, &p.Skills); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skills: %w", err)
	}

	return &p, nil
}

// Ensure ProfileRepo implements the interface
var _ repository.ProfileRepository = (*ProfileRepo)(nil)
