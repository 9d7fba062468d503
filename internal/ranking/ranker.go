// Package ranking computes the composite pre-rerank ordering of retrieved
// candidates from vector similarity, lexical score, skill match, and
// experience fit.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/candidex/search/internal/vectorstore"
)

const (
	// weightEpsilon is the tolerance when checking that weights sum to 1.0.
	weightEpsilon = 1e-9

	// missingRequiredPenalty multiplies the composite score once per missing
	// required skill, so a strong vector score cannot out-rank a candidate
	// who actually has the hard requirement.
	missingRequiredPenalty = 0.6

	// avoidSkillPenalty multiplies the composite score once per matched
	// avoid-listed skill.
	avoidSkillPenalty = 0.8

	// lowConfidenceThreshold is the enrichment confidence (0..100) below
	// which a candidate is demoted, never dropped.
	lowConfidenceThreshold = 40.0

	// lowConfidencePenalty multiplies the composite score of demoted
	// candidates.
	lowConfidencePenalty = 0.5
)

// Weights are the composite-score coefficients. They must be non-negative
// and sum to exactly 1.0; Validate rejects anything else at startup.
type Weights struct {
	SkillMatch       float64
	Confidence       float64
	VectorSimilarity float64
	ExperienceMatch  float64
}

// DefaultWeights returns the production coefficients.
func DefaultWeights() Weights {
	return Weights{
		SkillMatch:       0.40,
		Confidence:       0.25,
		VectorSimilarity: 0.25,
		ExperienceMatch:  0.10,
	}
}

// Validate checks the weight invariant.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"skill_match":       w.SkillMatch,
		"confidence":        w.Confidence,
		"vector_similarity": w.VectorSimilarity,
		"experience_match":  w.ExperienceMatch,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %f", name, v)
		}
	}
	sum := w.SkillMatch + w.Confidence + w.VectorSimilarity + w.ExperienceMatch
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// Query carries the ranking-relevant parts of a search request.
type Query struct {
	Text            string
	RequiredSkills  []string
	PreferredSkills []string
	AvoidSkills     []string
	MinYears        int
}

// ScoredCandidate is one ranked result. RerankScore and Reranked are filled
// in only after the rerank stage.
type ScoredCandidate struct {
	CandidateID      string   `json:"candidateId"`
	VectorSimilarity float64  `json:"vectorSimilarity"`
	TextScore        float64  `json:"textScore"`
	SkillMatchScore  float64  `json:"skillMatchScore"`
	CompositeScore   float64  `json:"compositeScore"`
	RerankScore      float64  `json:"rerankScore,omitempty"`
	Reranked         bool     `json:"reranked,omitempty"`
	Rank             int      `json:"rank"`
	MatchReasons     []string `json:"matchReasons"`
}

// Ranker applies the composite scoring pass.
type Ranker struct {
	weights Weights
}

// NewRanker creates a Ranker, rejecting invalid weights.
func NewRanker(weights Weights) (*Ranker, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking weights: %w", err)
	}
	return &Ranker{weights: weights}, nil
}

// Rank scores and orders the retrieved candidates. Ties are broken by
// candidate id ascending so test runs are deterministic.
func (r *Ranker) Rank(candidates []vectorstore.Candidate, query Query) []ScoredCandidate {
	required := newSkillSet(query.RequiredSkills)
	preferred := newSkillSet(query.PreferredSkills)
	avoid := newSkillSet(query.AvoidSkills)

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, r.score(c, query, required, preferred, avoid))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].CompositeScore != scored[j].CompositeScore {
			return scored[i].CompositeScore > scored[j].CompositeScore
		}
		return scored[i].CandidateID < scored[j].CandidateID
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func (r *Ranker) score(c vectorstore.Candidate, query Query, required, preferred, avoid skillSet) ScoredCandidate {
	var reasons []string

	have := make(skillSet, len(c.Profile.Skills))
	for _, s := range c.Profile.Skills {
		have[NormalizeSkill(s.Name)] = struct{}{}
	}

	matchedRequired, missingRequired := 0, 0
	for name := range required {
		if _, ok := have[name]; ok {
			matchedRequired++
			reasons = append(reasons, fmt.Sprintf("has required skill %q", name))
		} else {
			missingRequired++
			reasons = append(reasons, fmt.Sprintf("missing required skill %q", name))
		}
	}

	matchedPreferred := 0
	for name := range preferred {
		if _, ok := have[name]; ok {
			matchedPreferred++
			reasons = append(reasons, fmt.Sprintf("has preferred skill %q", name))
		}
	}

	matchedAvoid := 0
	for name := range avoid {
		if _, ok := have[name]; ok {
			matchedAvoid++
			reasons = append(reasons, fmt.Sprintf("has avoided skill %q", name))
		}
	}

	skillMatch := skillMatchScore(len(required), matchedRequired, len(preferred), matchedPreferred)
	confidence := clamp01(c.Profile.Confidence / 100.0)
	similarity := clamp01(c.VectorSimilarity)
	experience := experienceMatchScore(c.Profile.YearsExperience, query.MinYears)

	if query.MinYears > 0 && c.Profile.YearsExperience >= float64(query.MinYears) {
		reasons = append(reasons, fmt.Sprintf("%.0f years experience meets minimum of %d", c.Profile.YearsExperience, query.MinYears))
	}

	composite := r.weights.SkillMatch*skillMatch +
		r.weights.Confidence*confidence +
		r.weights.VectorSimilarity*similarity +
		r.weights.ExperienceMatch*experience

	composite *= math.Pow(missingRequiredPenalty, float64(missingRequired))
	composite *= math.Pow(avoidSkillPenalty, float64(matchedAvoid))

	if c.Profile.Confidence < lowConfidenceThreshold {
		composite *= lowConfidencePenalty
		reasons = append(reasons, "demoted for low enrichment confidence")
	}

	return ScoredCandidate{
		CandidateID:      c.Profile.CandidateID,
		VectorSimilarity: c.VectorSimilarity,
		TextScore:        c.TextScore,
		SkillMatchScore:  skillMatch,
		CompositeScore:   composite,
		MatchReasons:     reasons,
	}
}

// skillMatchScore fuses required and preferred coverage into [0,1]. With no
// skill lists in the query the signal is neutral.
func skillMatchScore(requiredTotal, requiredMatched, preferredTotal, preferredMatched int) float64 {
	switch {
	case requiredTotal == 0 && preferredTotal == 0:
		return 0.5
	case requiredTotal == 0:
		return float64(preferredMatched) / float64(preferredTotal)
	case preferredTotal == 0:
		return float64(requiredMatched) / float64(requiredTotal)
	default:
		req := float64(requiredMatched) / float64(requiredTotal)
		pref := float64(preferredMatched) / float64(preferredTotal)
		return 0.7*req + 0.3*pref
	}
}

// experienceMatchScore is the ratio of candidate years to the requested
// minimum, clamped to [0,1]. Without a minimum the signal is fully met.
func experienceMatchScore(years float64, minYears int) float64 {
	if minYears <= 0 {
		return 1.0
	}
	if years <= 0 {
		return 0
	}
	return clamp01(years / float64(minYears))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
