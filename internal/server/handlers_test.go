package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/auth"
	"github.com/candidex/search/internal/ranking"
	"github.com/candidex/search/internal/rerank"
	"github.com/candidex/search/internal/repository"
	"github.com/candidex/search/internal/search"
)

type stubSearcher struct {
	lastReq *search.Request
	resp    *search.Response
}

func (s *stubSearcher) Search(_ context.Context, req *search.Request) (*search.Response, error) {
	s.lastReq = req
	if s.resp != nil {
		return s.resp, nil
	}
	return &search.Response{
		Results: []search.ResultItem{
			{CandidateID: "cand-001", Score: 0.9, MatchReasons: []string{"strong match"}},
		},
		Metadata: search.Metadata{Provider: "gemini"},
	}, nil
}

type stubReranker struct{}

func (s *stubReranker) Rerank(_ context.Context, req *rerank.Request) *rerank.Result {
	out := make([]ranking.ScoredCandidate, len(req.Candidates))
	copy(out, req.Candidates)
	for i := range out {
		out[i].RerankScore = 0.9 - float64(i)*0.1
		out[i].Reranked = true
		out[i].MatchReasons = append(out[i].MatchReasons, "scored")
	}
	return &rerank.Result{Candidates: out, Provider: "gemini"}
}

type stubIndexer struct {
	lastProfile *repository.CandidateProfile
}

func (s *stubIndexer) IndexProfile(_ context.Context, profile *repository.CandidateProfile) error {
	s.lastProfile = profile
	return nil
}

func (s *stubIndexer) Reindex(_ context.Context, tenantID uuid.UUID, candidateID string) error {
	if candidateID == "cand-missing" {
		return repository.ErrNotFound
	}
	s.lastProfile = &repository.CandidateProfile{CandidateID: candidateID, TenantID: tenantID}
	return nil
}

type stubTenantRepo struct {
	tenant *repository.Tenant
}

func (s *stubTenantRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepo) GetByAPIKey(_ context.Context, apiKey string) (*repository.Tenant, error) {
	if s.tenant != nil && s.tenant.APIKey == apiKey {
		return s.tenant, nil
	}
	return nil, repository.ErrNotFound
}

type testEnv struct {
	server   *httptest.Server
	tenant   *repository.Tenant
	token    string
	searcher *stubSearcher
	indexer  *stubIndexer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tenant := &repository.Tenant{
		ID:     uuid.New(),
		Name:   "acme",
		APIKey: "key-123",
		Config: repository.TenantConfig{RerankEnabled: true},
	}
	jwtManager := auth.NewJWTManager(auth.DefaultJWTConfig("test-secret"))
	token, err := jwtManager.GenerateToken("enrichment-pipeline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	searcher := &stubSearcher{}
	indexer := &stubIndexer{}
	handlers := NewHandlers(searcher, &stubReranker{}, indexer, nil)

	srv, err := NewHTTPServer(HTTPServerConfig{Port: 0}, handlers, &stubTenantRepo{tenant: tenant}, jwtManager, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := httptest.NewServer(srv.GetRouter())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, tenant: tenant, token: token, searcher: searcher, indexer: indexer}
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestHybridSearch_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/search/hybrid",
		map[string]any{"query": "senior python engineer", "limit": 10},
		map[string]string{auth.APIKeyHeader: "key-123"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body search.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].CandidateID != "cand-001" {
		t.Errorf("unexpected results: %+v", body.Results)
	}
	if env.searcher.lastReq.TenantID != env.tenant.ID {
		t.Error("search must run under the API-key tenant")
	}
}

func TestHybridSearch_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/search/hybrid",
		map[string]any{"query": "anything"}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without API key, got %d", resp.StatusCode)
	}
}

func TestHybridSearch_RejectsForeignTenantID(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/search/hybrid",
		map[string]any{"query": "anything", "tenantId": uuid.NewString()},
		map[string]string{auth.APIKeyHeader: "key-123"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for mismatched tenant id, got %d", resp.StatusCode)
	}
}

func TestHybridSearch_RequiresQuery(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/search/hybrid",
		map[string]any{"limit": 5},
		map[string]string{auth.APIKeyHeader: "key-123"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without query, got %d", resp.StatusCode)
	}
}

func TestRerank_RequiresServiceToken(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/rerank",
		map[string]any{"tenantId": env.tenant.ID.String()}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestRerank_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/rerank", map[string]any{
		"tenantId": env.tenant.ID.String(),
		"candidates": []map[string]any{
			{"candidateId": "cand-001", "compositeScore": 0.8},
			{"candidateId": "cand-002", "compositeScore": 0.7},
		},
		"jobContext": map[string]any{"function": "engineering"},
	}, map[string]string{"Authorization": "Bearer " + env.token})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Provider != "gemini" || len(body.Candidates) != 2 {
		t.Errorf("unexpected response: %+v", body)
	}
	if body.Candidates[0].Rank != 1 || body.Candidates[0].Score != 0.9 {
		t.Errorf("unexpected first candidate: %+v", body.Candidates[0])
	}
}

func TestIndexProfile_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/index/profile", map[string]any{
		"tenantId": env.tenant.ID.String(),
		"profile": map[string]any{
			"candidate_id": "cand-001",
			"summary":      "Backend engineer",
		},
	}, map[string]string{"Authorization": "Bearer " + env.token})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.indexer.lastProfile == nil || env.indexer.lastProfile.CandidateID != "cand-001" {
		t.Error("expected profile forwarded to indexer")
	}
	if env.indexer.lastProfile.TenantID != env.tenant.ID {
		t.Error("tenant id from the request body must be applied to the profile")
	}
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/index/reindex", map[string]any{
		"tenantId":    env.tenant.ID.String(),
		"candidateId": "cand-001",
	}, map[string]string{"Authorization": "Bearer " + env.token})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = postJSON(t, env.server.URL+"/index/reindex", map[string]any{
		"tenantId":    env.tenant.ID.String(),
		"candidateId": "cand-missing",
	}, map[string]string{"Authorization": "Bearer " + env.token})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown profile, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected healthy, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/readyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected ready, got %d", resp.StatusCode)
	}
}
