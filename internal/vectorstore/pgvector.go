package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/repository"
	"github.com/candidex/search/internal/repository/postgres"
)

// PgVectorStore implements Retriever against Postgres with the pgvector
// extension. One query does ANN, the profile join, and lexical ranking.
type PgVectorStore struct {
	db         *postgres.DB
	logger     *slog.Logger
	joinMisses atomic.Int64
}

// NewPgVectorStore creates a retriever on the shared connection pool.
func NewPgVectorStore(db *postgres.DB, logger *slog.Logger) *PgVectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgVectorStore{db: db, logger: logger}
}

// JoinMisses returns the cumulative join-miss count for this process.
func (s *PgVectorStore) JoinMisses() int64 {
	return s.joinMisses.Load()
}

// annRow is one scanned retrieval row. Profile columns are nullable because
// the join to candidate_profiles is a LEFT JOIN: an embedding written before
// its profile (or with a non-canonical entity id) has no match.
type annRow struct {
	EntityID   string
	Similarity float64
	TextScore  float64
	Profile    *repository.CandidateProfile
}

// Retrieve runs the ANN query pre-filtered by tenant and minimum years,
// joined to profiles on the unprefixed candidate id.
func (s *PgVectorStore) Retrieve(ctx context.Context, tenantID uuid.UUID, queryVector []float32, queryText string, filters Filters, topK int) ([]Candidate, int, error) {
	if topK <= 0 {
		return nil, 0, nil
	}

	query := `
		SELECT e.entity_id,
		       1 - (e.embedding <=> $3::vector) AS similarity,
		       CASE WHEN p.candidate_id IS NULL OR $4 = ''
		            THEN 0
		            ELSE ts_rank(p.summary_tsv, plainto_tsquery('english', $4))
		       END AS text_score,
		       p.candidate_id, p.skills, p.seniority, p.years_experience,
		       p.company_tier, p.summary, p.confidence
		FROM candidate_embeddings e
		LEFT JOIN candidate_profiles p
		       ON p.tenant_id = e.tenant_id AND p.candidate_id = e.entity_id
		WHERE e.tenant_id = $1
		  AND ($5::float8 <= 0 OR p.years_experience IS NULL OR p.years_experience >= $5)
		ORDER BY e.embedding <=> $3::vector
		LIMIT $2
	`

	rows, err := s.db.Pool.Query(ctx, query,
		tenantID, topK, postgres.VectorLiteral(queryVector), queryText, filters.MinYears)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to run ANN query: %w", err)
	}
	defer rows.Close()

	var scanned []annRow
	for rows.Next() {
		var r annRow
		var candidateID, seniority, companyTier, summary *string
		var years, confidence *float64
		var skillsJSON []byte

		if err := rows.Scan(&r.EntityID, &r.Similarity, &r.TextScore,
			&candidateID, &skillsJSON, &seniority, &years,
			&companyTier, &summary, &confidence); err != nil {
			return nil, 0, fmt.Errorf("failed to scan retrieval row: %w", err)
		}

		if candidateID != nil {
			p := repository.CandidateProfile{
				CandidateID: *candidateID,
				TenantID:    tenantID,
			}
			if seniority != nil {
				p.Seniority = *seniority
			}
			if years != nil {
				p.YearsExperience = *years
			}
			if companyTier != nil {
				p.CompanyTier = *companyTier
			}
			if summary != nil {
				p.Summary = *summary
			}
			if confidence != nil {
				p.Confidence = *confidence
			}
			if len(skillsJSON) > 0 {
				if err := json.Unmarshal(skillsJSON, &p.Skills); err != nil {
					return nil, 0, fmt.Errorf("failed to unmarshal skills for %s: %w", *candidateID, err)
				}
			}
			r.Profile = &p
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("retrieval rows error: %w", err)
	}

	candidates, misses := assemble(scanned)
	if misses > 0 {
		s.joinMisses.Add(int64(misses))
		s.logger.Debug("excluded embeddings with no profile match",
			"tenant_id", tenantID, "join_misses", misses)
	}

	return candidates, misses, nil
}

// RetrieveLexical returns candidates by full-text rank alone.
func (s *PgVectorStore) RetrieveLexical(ctx context.Context, tenantID uuid.UUID, queryText string, filters Filters, topK int) ([]Candidate, error) {
	if topK <= 0 || queryText == "" {
		return nil, nil
	}

	query := `
		SELECT p.candidate_id, p.skills, p.seniority, p.years_experience,
		       p.company_tier, p.summary, p.confidence,
		       ts_rank(p.summary_tsv, plainto_tsquery('english', $3)) AS text_score
		FROM candidate_profiles p
		WHERE p.tenant_id = $1
		  AND p.summary_tsv @@ plainto_tsquery('english', $3)
		  AND ($4::float8 <= 0 OR p.years_experience >= $4)
		ORDER BY text_score DESC, p.candidate_id
		LIMIT $2
	`

	rows, err := s.db.Pool.Query(ctx, query, tenantID, topK, queryText, filters.MinYears)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical query: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var p repository.CandidateProfile
		var seniority, companyTier *string
		var years *float64
		var skillsJSON []byte
		var textScore float64

		if err := rows.Scan(&p.CandidateID, &skillsJSON, &seniority, &years,
			&companyTier, &p.Summary, &p.Confidence, &textScore); err != nil {
			return nil, fmt.Errorf("failed to scan lexical row: %w", err)
		}
		p.TenantID = tenantID
		if seniority != nil {
			p.Seniority = *seniority
		}
		if years != nil {
			p.YearsExperience = *years
		}
		if companyTier != nil {
			p.CompanyTier = *companyTier
		}
		if len(skillsJSON) > 0 {
			if err := json.Unmarshal(skillsJSON, &p.Skills); err != nil {
				return nil, fmt.Errorf("failed to unmarshal skills for %s: %w", p.CandidateID, err)
			}
		}

		candidates = append(candidates, Candidate{Profile: p, TextScore: textScore})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical rows error: %w", err)
	}

	return candidates, nil
}

// assemble turns scanned rows into candidates, excluding join misses and
// counting them. Order is preserved (rows arrive sorted by similarity).
func assemble(rows []annRow) ([]Candidate, int) {
	candidates := make([]Candidate, 0, len(rows))
	misses := 0
	for _, r := range rows {
		if r.Profile == nil {
			misses++
			continue
		}
		candidates = append(candidates, Candidate{
			Profile:          *r.Profile,
			VectorSimilarity: r.Similarity,
			TextScore:        r.TextScore,
		})
	}
	return candidates, misses
}

// Ensure PgVectorStore implements Retriever
var _ Retriever = (*PgVectorStore)(nil)
