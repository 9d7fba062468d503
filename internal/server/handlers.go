package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/auth"
	"github.com/candidex/search/internal/ranking"
	"github.com/candidex/search/internal/rerank"
	"github.com/candidex/search/internal/repository"
	"github.com/candidex/search/internal/search"
)

// Searcher is the search service surface the handlers need.
type Searcher interface {
	Search(ctx context.Context, req *search.Request) (*search.Response, error)
}

// Reranker runs the provider chain directly for internal callers.
type Reranker interface {
	Rerank(ctx context.Context, req *rerank.Request) *rerank.Result
}

// ProfileIndexer writes candidate embeddings.
type ProfileIndexer interface {
	IndexProfile(ctx context.Context, profile *repository.CandidateProfile) error
	Reindex(ctx context.Context, tenantID uuid.UUID, candidateID string) error
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	search  Searcher
	rerank  Reranker
	indexer ProfileIndexer
	logger  *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(s Searcher, r Reranker, ix ProfileIndexer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{search: s, rerank: r, indexer: ix, logger: logger}
}

// hybridSearchRequest is the POST /search/hybrid body.
type hybridSearchRequest struct {
	TenantID     string            `json:"tenantId,omitempty"`
	Query        string            `json:"query"`
	Limit        int               `json:"limit,omitempty"`
	Filters      search.Filters    `json:"filters,omitempty"`
	Job          rerank.JobContext `json:"jobContext,omitempty"`
	IncludeDebug bool              `json:"includeDebug,omitempty"`
}

// HybridSearch serves POST /search/hybrid. The tenant comes from the API
// key; a body tenantId that names a different tenant is rejected, never
// honored.
func (h *Handlers) HybridSearch(w http.ResponseWriter, r *http.Request) {
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant not resolved")
		return
	}

	var body hybridSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if body.TenantID != "" {
		id, err := uuid.Parse(body.TenantID)
		if err != nil || id != tenant.ID {
			writeError(w, http.StatusForbidden, "tenant mismatch")
			return
		}
	}

	resp, err := h.search.Search(r.Context(), &search.Request{
		TenantID:     tenant.ID,
		Tenant:       tenant,
		Query:        body.Query,
		Limit:        body.Limit,
		Filters:      body.Filters,
		Job:          body.Job,
		IncludeDebug: body.IncludeDebug,
	})
	if err != nil {
		h.logger.Error("search failed", "tenant_id", tenant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// rerankRequest is the POST /rerank body.
type rerankRequest struct {
	TenantID   string                 `json:"tenantId"`
	Candidates []rerankInputCandidate `json:"candidates"`
	Job        rerank.JobContext      `json:"jobContext"`
}

type rerankInputCandidate struct {
	CandidateID      string   `json:"candidateId"`
	VectorSimilarity float64  `json:"vectorSimilarity,omitempty"`
	TextScore        float64  `json:"textScore,omitempty"`
	SkillMatchScore  float64  `json:"skillMatchScore,omitempty"`
	CompositeScore   float64  `json:"compositeScore,omitempty"`
	MatchReasons     []string `json:"matchReasons,omitempty"`
}

type rerankResponse struct {
	Candidates []rerank.RankedCandidate `json:"candidates"`
	Provider   string                   `json:"provider"`
	Fallback   bool                     `json:"usedFallback"`
	CacheHit   bool                     `json:"cacheHit"`
}

// Rerank serves POST /rerank for internal callers that already hold a
// scored shortlist.
func (h *Handlers) Rerank(w http.ResponseWriter, r *http.Request) {
	var body rerankRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, "candidates are required")
		return
	}
	tenantID, err := uuid.Parse(body.TenantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid tenantId is required")
		return
	}

	req := &rerank.Request{TenantID: tenantID, Job: body.Job}
	for _, c := range body.Candidates {
		req.Candidates = append(req.Candidates, ranking.ScoredCandidate{
			CandidateID:      c.CandidateID,
			VectorSimilarity: c.VectorSimilarity,
			TextScore:        c.TextScore,
			SkillMatchScore:  c.SkillMatchScore,
			CompositeScore:   c.CompositeScore,
			MatchReasons:     c.MatchReasons,
		})
	}

	result := h.rerank.Rerank(r.Context(), req)

	out := rerankResponse{
		Candidates: make([]rerank.RankedCandidate, 0, len(result.Candidates)),
		Provider:   result.Provider,
		Fallback:   result.UsedFallback,
		CacheHit:   result.CacheHit,
	}
	for i, c := range result.Candidates {
		score := c.CompositeScore
		if c.Reranked {
			score = c.RerankScore
		}
		out.Candidates = append(out.Candidates, rerank.RankedCandidate{
			CandidateID: c.CandidateID,
			Rank:        i + 1,
			Score:       score,
			Reasons:     c.MatchReasons,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// indexProfileRequest is the POST /index/profile body.
type indexProfileRequest struct {
	TenantID string                      `json:"tenantId"`
	Profile  repository.CandidateProfile `json:"profile"`
}

// IndexProfile serves POST /index/profile: it embeds an enriched profile
// and upserts its vector row.
func (h *Handlers) IndexProfile(w http.ResponseWriter, r *http.Request) {
	var body indexProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenantID, err := uuid.Parse(body.TenantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid tenantId is required")
		return
	}
	if body.Profile.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "profile.candidateId is required")
		return
	}
	body.Profile.TenantID = tenantID

	if err := h.indexer.IndexProfile(r.Context(), &body.Profile); err != nil {
		h.logger.Error("indexing failed",
			"tenant_id", tenantID,
			"candidate_id", body.Profile.CandidateID,
			"error", err)
		writeError(w, http.StatusUnprocessableEntity, "indexing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "indexed",
		"candidateId": body.Profile.CandidateID,
	})
}

// reindexRequest is the POST /index/reindex body.
type reindexRequest struct {
	TenantID    string `json:"tenantId"`
	CandidateID string `json:"candidateId"`
}

// Reindex serves POST /index/reindex: it re-embeds a profile already held
// by the profile store, typically after a model or prompt upgrade.
func (h *Handlers) Reindex(w http.ResponseWriter, r *http.Request) {
	var body reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenantID, err := uuid.Parse(body.TenantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid tenantId is required")
		return
	}
	if body.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "candidateId is required")
		return
	}

	if err := h.indexer.Reindex(r.Context(), tenantID, body.CandidateID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("reindex failed",
			"tenant_id", tenantID,
			"candidate_id", body.CandidateID,
			"error", err)
		writeError(w, http.StatusUnprocessableEntity, "reindex failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "indexed",
		"candidateId": body.CandidateID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
