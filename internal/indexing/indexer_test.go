package indexing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/repository"
)

type stubEmbedder struct {
	lastText string
	fail     bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.lastText = text
	if s.fail {
		return nil, errors.New("provider down")
	}
	return []float32{0.1, 0.2}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int    { return 2 }
func (s *stubEmbedder) ModelName() string { return "stub-model" }

type captureRepo struct {
	rec  *repository.EmbeddingRecord
	fail bool
}

func (c *captureRepo) Upsert(_ context.Context, rec *repository.EmbeddingRecord) error {
	if c.fail {
		return errors.New("db down")
	}
	c.rec = rec
	return nil
}

func profile(tenantID uuid.UUID, candidateID string) *repository.CandidateProfile {
	return &repository.CandidateProfile{
		CandidateID:     candidateID,
		TenantID:        tenantID,
		Summary:         "Backend engineer with distributed-systems experience.",
		Seniority:       "senior",
		YearsExperience: 7,
		Skills: []repository.Skill{
			{Name: "Go", Category: repository.SkillTechnical, Confidence: 95},
			{Name: "Kubernetes", Category: repository.SkillTechnical, Confidence: 80},
		},
	}
}

func TestIndexProfile_WritesCanonicalRecord(t *testing.T) {
	tenantID := uuid.New()
	emb := &stubEmbedder{}
	repo := &captureRepo{}
	ix := NewIndexer(emb, repo, nil, nil)

	if err := ix.IndexProfile(context.Background(), profile(tenantID, "cand-001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.rec == nil {
		t.Fatal("expected an upserted record")
	}
	if repo.rec.EntityID != "cand-001" {
		t.Errorf("entity id must be the canonical candidate id, got %q", repo.rec.EntityID)
	}
	if repo.rec.TenantID != tenantID {
		t.Error("tenant id must carry through")
	}
	if repo.rec.Metadata.ModelVersion != "stub-model" || repo.rec.Metadata.PromptVersion != PromptVersion {
		t.Errorf("incomplete metadata: %+v", repo.rec.Metadata)
	}
	if len(repo.rec.Vector) == 0 {
		t.Error("record must carry the vector")
	}
}

func TestIndexProfile_RejectsPrefixedID(t *testing.T) {
	tenantID := uuid.New()
	repo := &captureRepo{}
	ix := NewIndexer(&stubEmbedder{}, repo, nil, nil)

	err := ix.IndexProfile(context.Background(), profile(tenantID, tenantID.String()+":cand-001"))
	if err == nil {
		t.Fatal("expected rejection of prefixed candidate id")
	}
	if repo.rec != nil {
		t.Error("nothing may be written for a rejected profile")
	}
}

func TestIndexProfile_EmbedderFailureWritesNothing(t *testing.T) {
	repo := &captureRepo{}
	ix := NewIndexer(&stubEmbedder{fail: true}, repo, nil, nil)

	if err := ix.IndexProfile(context.Background(), profile(uuid.New(), "cand-001")); err == nil {
		t.Fatal("expected embedding failure to propagate")
	}
	if repo.rec != nil {
		t.Error("a failed embedding must not produce a partial row")
	}
}

type stubProfileRepo struct {
	profile *repository.CandidateProfile
}

func (s *stubProfileRepo) Get(_ context.Context, tenantID uuid.UUID, candidateID string) (*repository.CandidateProfile, error) {
	if s.profile != nil && s.profile.TenantID == tenantID && s.profile.CandidateID == candidateID {
		return s.profile, nil
	}
	return nil, repository.ErrNotFound
}

func TestReindex_LoadsProfileAndUpserts(t *testing.T) {
	tenantID := uuid.New()
	repo := &captureRepo{}
	profiles := &stubProfileRepo{profile: profile(tenantID, "cand-001")}
	ix := NewIndexer(&stubEmbedder{}, repo, profiles, nil)

	if err := ix.Reindex(context.Background(), tenantID, "cand-001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.rec == nil || repo.rec.EntityID != "cand-001" {
		t.Error("expected reindexed embedding record")
	}
}

func TestReindex_UnknownProfileFails(t *testing.T) {
	ix := NewIndexer(&stubEmbedder{}, &captureRepo{}, &stubProfileRepo{}, nil)

	if err := ix.Reindex(context.Background(), uuid.New(), "cand-missing"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestBuildEmbeddingText_IncludesSignals(t *testing.T) {
	text := buildEmbeddingText(profile(uuid.New(), "cand-001"))

	for _, want := range []string{"Backend engineer", "senior", "Go, Kubernetes", "7"} {
		if !strings.Contains(text, want) {
			t.Errorf("embedding text missing %q:\n%s", want, text)
		}
	}
}
