package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		WeightSkillMatch:       0.40,
		WeightConfidence:       0.25,
		WeightVectorSimilarity: 0.25,
		WeightExperienceMatch:  0.10,
		SearchTimeout:          2 * time.Second,
		RerankBudget:           900 * time.Millisecond,
		RerankPerCallCap:       600 * time.Millisecond,
		RerankReserve:          50 * time.Millisecond,
		EmbeddingDimension:     768,
		BreakerMaxFailures:     3,
		RetrievalMultiplier:    3,
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cases := []struct {
		name                                  string
		skill, confidence, vector, experience float64
	}{
		{"all zero", 0, 0, 0, 0},
		{"sums above one", 0.5, 0.3, 0.3, 0.1},
		{"sums below one", 0.4, 0.2, 0.2, 0.1},
		{"off by a little", 0.41, 0.25, 0.25, 0.10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.WeightSkillMatch = tc.skill
			cfg.WeightConfidence = tc.confidence
			cfg.WeightVectorSimilarity = tc.vector
			cfg.WeightExperienceMatch = tc.experience

			if err := cfg.Validate(); err == nil {
				t.Errorf("expected weight validation error for %s", tc.name)
			}
		})
	}
}

func TestValidate_NegativeWeightRejected(t *testing.T) {
	cfg := validConfig()
	cfg.WeightSkillMatch = -0.1
	cfg.WeightConfidence = 0.75
	cfg.WeightVectorSimilarity = 0.25
	cfg.WeightExperienceMatch = 0.10

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestValidate_ReserveMustFitBudget(t *testing.T) {
	cfg := validConfig()
	cfg.RerankReserve = cfg.RerankBudget

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when reserve consumes the whole budget")
	}
}

func TestValidate_TimeoutsMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.SearchTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero search timeout")
	}

	cfg = validConfig()
	cfg.RerankBudget = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative rerank budget")
	}
}
