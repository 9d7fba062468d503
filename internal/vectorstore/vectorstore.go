// Package vectorstore provides ANN retrieval of candidate profiles from the
// relational store's vector extension.
package vectorstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/repository"
)

// Filters are the structured constraints of a search query. MinYears is
// applied by the store as a pre-filter; skill lists travel with the query and
// are scored (never excluded) by the composite ranker, since a candidate
// missing a required skill must be demoted rather than dropped.
type Filters struct {
	MinYears       float64
	RequiredSkills []string
	AvoidSkills    []string
}

// Candidate is one retrieval hit: the joined profile plus the store-computed
// similarity and lexical scores.
type Candidate struct {
	Profile          repository.CandidateProfile
	VectorSimilarity float64 // cosine, [-1, 1]
	TextScore        float64 // lexical rank, >= 0
}

// Retriever issues tenant-scoped retrieval queries.
type Retriever interface {
	// Retrieve runs a cosine ANN query joined to profiles, ordered by raw
	// vector similarity. The int return is the number of join misses for this
	// call: embedding rows whose entity id matched no profile, silently
	// excluded (expected during backfills, never an error).
	Retrieve(ctx context.Context, tenantID uuid.UUID, queryVector []float32, queryText string, filters Filters, topK int) ([]Candidate, int, error)

	// RetrieveLexical is the degraded path used when no query embedding is
	// available: full-text rank only, VectorSimilarity reported as zero.
	RetrieveLexical(ctx context.Context, tenantID uuid.UUID, queryText string, filters Filters, topK int) ([]Candidate, error)
}
