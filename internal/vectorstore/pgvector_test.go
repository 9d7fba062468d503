package vectorstore

import (
	"testing"

	"github.com/candidex/search/internal/repository"
)

func profileRow(id string, similarity float64) annRow {
	return annRow{
		EntityID:   id,
		Similarity: similarity,
		Profile:    &repository.CandidateProfile{CandidateID: id},
	}
}

func TestAssemble_ExcludesAndCountsJoinMisses(t *testing.T) {
	rows := []annRow{
		profileRow("cand-001", 0.9),
		// An embedding written with a prefixed entity id joins to nothing.
		{EntityID: "tenant-a:cand-002", Similarity: 0.95},
		profileRow("cand-003", 0.7),
		{EntityID: "cand-orphan", Similarity: 0.6},
	}

	candidates, misses := assemble(rows)

	if misses != 2 {
		t.Errorf("expected 2 join misses, got %d", misses)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Profile.CandidateID != "cand-001" || candidates[1].Profile.CandidateID != "cand-003" {
		t.Errorf("expected joined candidates in similarity order, got %s, %s",
			candidates[0].Profile.CandidateID, candidates[1].Profile.CandidateID)
	}
}

func TestAssemble_JoinMissIsNotAnError(t *testing.T) {
	// Partial coverage is expected during backfills: all-miss input yields an
	// empty result, not a failure.
	rows := []annRow{
		{EntityID: "a", Similarity: 0.9},
		{EntityID: "b", Similarity: 0.8},
	}

	candidates, misses := assemble(rows)
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %d", len(candidates))
	}
	if misses != 2 {
		t.Errorf("expected 2 misses, got %d", misses)
	}
}

func TestAssemble_PreservesSimilarityAndTextScore(t *testing.T) {
	rows := []annRow{{
		EntityID:   "cand-001",
		Similarity: 0.83,
		TextScore:  0.42,
		Profile:    &repository.CandidateProfile{CandidateID: "cand-001"},
	}}

	candidates, _ := assemble(rows)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].VectorSimilarity != 0.83 {
		t.Errorf("expected similarity 0.83, got %f", candidates[0].VectorSimilarity)
	}
	if candidates[0].TextScore != 0.42 {
		t.Errorf("expected text score 0.42, got %f", candidates[0].TextScore)
	}
}
