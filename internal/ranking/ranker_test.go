package ranking

import (
	"testing"

	"github.com/candidex/search/internal/repository"
	"github.com/candidex/search/internal/vectorstore"
)

func mustRanker(t *testing.T) *Ranker {
	t.Helper()
	r, err := NewRanker(DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func candidate(id string, similarity float64, confidence float64, years float64, skills ...string) vectorstore.Candidate {
	profile := repository.CandidateProfile{
		CandidateID:     id,
		Confidence:      confidence,
		YearsExperience: years,
	}
	for _, s := range skills {
		profile.Skills = append(profile.Skills, repository.Skill{Name: s, Category: repository.SkillTechnical, Confidence: 90})
	}
	return vectorstore.Candidate{Profile: profile, VectorSimilarity: similarity}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights must be valid: %v", err)
	}

	bad := Weights{SkillMatch: 0.5, Confidence: 0.5, VectorSimilarity: 0.5, ExperienceMatch: 0.1}
	if err := bad.Validate(); err == nil {
		t.Error("expected rejection of weights not summing to 1.0")
	}

	negative := Weights{SkillMatch: -0.1, Confidence: 0.5, VectorSimilarity: 0.5, ExperienceMatch: 0.1}
	if err := negative.Validate(); err == nil {
		t.Error("expected rejection of negative weight")
	}

	if _, err := NewRanker(bad); err == nil {
		t.Error("NewRanker must reject invalid weights")
	}
}

func TestRank_MissingRequiredSkillCannotOutrankViaSimilarity(t *testing.T) {
	r := mustRanker(t)

	// High similarity without the hard requirement versus moderate
	// similarity with it.
	candidates := []vectorstore.Candidate{
		candidate("cand-similar", 0.95, 90, 6, "java"),
		candidate("cand-skilled", 0.60, 90, 6, "python", "aws"),
	}

	ranked := r.Rank(candidates, Query{RequiredSkills: []string{"Python"}, MinYears: 5})

	if ranked[0].CandidateID != "cand-skilled" {
		t.Errorf("expected candidate with required skill first, got %s", ranked[0].CandidateID)
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Errorf("expected ranks 1,2 got %d,%d", ranked[0].Rank, ranked[1].Rank)
	}
}

func TestRank_AliasedSkillMatches(t *testing.T) {
	r := mustRanker(t)

	candidates := []vectorstore.Candidate{
		candidate("cand-react", 0.5, 80, 3, "React.js"),
		candidate("cand-none", 0.5, 80, 3, "java"),
	}

	ranked := r.Rank(candidates, Query{RequiredSkills: []string{"React"}})
	if ranked[0].CandidateID != "cand-react" {
		t.Errorf("expected alias React.js to satisfy React requirement, got %s first", ranked[0].CandidateID)
	}
	if ranked[0].SkillMatchScore != 1.0 {
		t.Errorf("expected full skill match, got %f", ranked[0].SkillMatchScore)
	}
}

func TestRank_LowConfidenceDemotedNotDropped(t *testing.T) {
	r := mustRanker(t)

	candidates := []vectorstore.Candidate{
		candidate("cand-low", 0.9, 20, 5, "python"),
		candidate("cand-high", 0.9, 90, 5, "python"),
	}

	ranked := r.Rank(candidates, Query{RequiredSkills: []string{"python"}})
	if len(ranked) != 2 {
		t.Fatalf("low-confidence candidates must be kept, got %d results", len(ranked))
	}
	if ranked[0].CandidateID != "cand-high" {
		t.Errorf("expected high-confidence candidate first, got %s", ranked[0].CandidateID)
	}
	if ranked[1].CompositeScore >= ranked[0].CompositeScore {
		t.Error("expected demotion to lower the composite score")
	}
}

func TestRank_AvoidSkillPenalized(t *testing.T) {
	r := mustRanker(t)

	candidates := []vectorstore.Candidate{
		candidate("cand-avoid", 0.7, 80, 4, "python", "php"),
		candidate("cand-clean", 0.7, 80, 4, "python"),
	}

	ranked := r.Rank(candidates, Query{RequiredSkills: []string{"python"}, AvoidSkills: []string{"PHP"}})
	if ranked[0].CandidateID != "cand-clean" {
		t.Errorf("expected candidate without avoided skill first, got %s", ranked[0].CandidateID)
	}
}

func TestRank_TieBreakByCandidateID(t *testing.T) {
	r := mustRanker(t)

	candidates := []vectorstore.Candidate{
		candidate("cand-b", 0.8, 80, 5, "go"),
		candidate("cand-a", 0.8, 80, 5, "go"),
	}

	ranked := r.Rank(candidates, Query{RequiredSkills: []string{"go"}})
	if ranked[0].CandidateID != "cand-a" || ranked[1].CandidateID != "cand-b" {
		t.Errorf("expected deterministic id-ascending tie break, got %s, %s",
			ranked[0].CandidateID, ranked[1].CandidateID)
	}
}

func TestRank_ExperienceMatchScaling(t *testing.T) {
	if got := experienceMatchScore(10, 5); got != 1.0 {
		t.Errorf("expected saturation at 1.0, got %f", got)
	}
	if got := experienceMatchScore(2, 4); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
	if got := experienceMatchScore(0, 5); got != 0 {
		t.Errorf("expected 0 for unknown experience, got %f", got)
	}
	if got := experienceMatchScore(3, 0); got != 1.0 {
		t.Errorf("expected neutral 1.0 without a minimum, got %f", got)
	}
}

func TestRank_MatchReasonsExplainScore(t *testing.T) {
	r := mustRanker(t)

	ranked := r.Rank(
		[]vectorstore.Candidate{candidate("cand-001", 0.8, 85, 7, "python")},
		Query{RequiredSkills: []string{"python", "kubernetes"}, MinYears: 5},
	)

	reasons := ranked[0].MatchReasons
	var hasMatch, hasMissing, hasYears bool
	for _, reason := range reasons {
		switch reason {
		case `has required skill "python"`:
			hasMatch = true
		case `missing required skill "kubernetes"`:
			hasMissing = true
		case "7 years experience meets minimum of 5":
			hasYears = true
		}
	}
	if !hasMatch || !hasMissing || !hasYears {
		t.Errorf("incomplete match reasons: %v", reasons)
	}
}
