// Package search implements the top-level hybrid search flow: embed the
// query, retrieve by vector similarity, composite-rank, then refine the head
// of the list with the rerank chain.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/ranking"
	"github.com/candidex/search/internal/rerank"
	"github.com/candidex/search/internal/repository"
	"github.com/candidex/search/internal/vectorstore"
)

const (
	// DefaultLimit is the result-set size when the request does not set one.
	DefaultLimit = 50

	// DefaultRetrievalMultiplier over-fetches ANN results so composite
	// ranking has enough candidates to reorder.
	DefaultRetrievalMultiplier = 3

	// DefaultRerankTopK is how many head candidates go to the LLM chain.
	DefaultRerankTopK = 200
)

// QueryEmbedder embeds query text, reporting cache hits.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, bool, error)
}

// Reranker refines a shortlist. It never fails; a passthrough result is
// tagged in the metadata.
type Reranker interface {
	Rerank(ctx context.Context, req *rerank.Request) *rerank.Result
}

// Filters are the structured constraints of a search request.
type Filters struct {
	MinYears        int      `json:"minYears,omitempty"`
	RequiredSkills  []string `json:"requiredSkills,omitempty"`
	PreferredSkills []string `json:"preferredSkills,omitempty"`
	AvoidSkills     []string `json:"avoidSkills,omitempty"`
}

// Request is one hybrid search invocation. Tenant carries the per-tenant
// search configuration resolved by the caller.
type Request struct {
	TenantID     uuid.UUID
	Tenant       *repository.Tenant
	Query        string
	Limit        int
	Filters      Filters
	Job          rerank.JobContext
	IncludeDebug bool
}

// ResultItem is one search hit.
type ResultItem struct {
	CandidateID  string   `json:"candidateId"`
	Score        float64  `json:"score"`
	MatchReasons []string `json:"matchReasons"`

	// Debug fields, populated only when the request asks for them.
	VectorSimilarity float64 `json:"vectorSimilarity,omitempty"`
	TextScore        float64 `json:"textScore,omitempty"`
	SkillMatchScore  float64 `json:"skillMatchScore,omitempty"`
	CompositeScore   float64 `json:"compositeScore,omitempty"`
	Reranked         bool    `json:"reranked,omitempty"`
}

// Timings are per-stage latencies in milliseconds. They are fractional so a
// fast stage that did run never reports a hard zero.
type Timings struct {
	EmbeddingMs float64 `json:"embeddingMs"`
	RetrievalMs float64 `json:"retrievalMs"`
	RankingMs   float64 `json:"rankingMs"`
	RerankMs    float64 `json:"rerankMs"`
}

// Metadata describes how the response was produced.
type Metadata struct {
	CacheHit     bool   `json:"cacheHit"`
	Provider     string `json:"provider"`
	UsedFallback bool   `json:"usedFallback"`
	LexicalOnly  bool   `json:"lexicalOnly,omitempty"`
}

// Response is the assembled search result.
type Response struct {
	Results  []ResultItem `json:"results"`
	Timings  Timings      `json:"timings"`
	Metadata Metadata     `json:"metadata"`
}

// Service sequences the search stages. All collaborators are injected at
// construction; the service holds no per-request state.
type Service struct {
	embedder   QueryEmbedder
	retriever  vectorstore.Retriever
	ranker     *ranking.Ranker
	reranker   Reranker
	logger        *slog.Logger
	limit         int
	multiplier    int
	rerankTopK    int
	minSimilarity float64
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultLimit sets the fallback result-set size.
func WithDefaultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithRetrievalMultiplier sets the ANN over-fetch factor.
func WithRetrievalMultiplier(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.multiplier = n
		}
	}
}

// WithRerankTopK sets the shortlist size sent to the rerank chain.
func WithRerankTopK(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rerankTopK = n
		}
	}
}

// WithMinSimilarity drops retrieved candidates below a vector-similarity
// floor. Zero keeps everything the ANN query returns.
func WithMinSimilarity(min float64) Option {
	return func(s *Service) {
		if min > 0 {
			s.minSimilarity = min
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the search service.
func NewService(e QueryEmbedder, r vectorstore.Retriever, rk *ranking.Ranker, rr Reranker, opts ...Option) *Service {
	s := &Service{
		embedder:   e,
		retriever:  r,
		ranker:     rk,
		reranker:   rr,
		logger:     slog.Default(),
		limit:      DefaultLimit,
		multiplier: DefaultRetrievalMultiplier,
		rerankTopK: DefaultRerankTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs the full pipeline. Degradations (embedding outage, rerank
// fallback) produce a usable response, never an error; only retrieval
// failures propagate.
func (s *Service) Search(ctx context.Context, req *Request) (*Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.limit
	}
	resp := &Response{Results: []ResultItem{}, Metadata: Metadata{Provider: "none"}}

	// Embedding, with one retry before degrading to lexical-only scoring.
	embedStart := time.Now()
	vector, cacheHit, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		vector, cacheHit, err = s.embedder.EmbedQuery(ctx, req.Query)
	}
	resp.Timings.EmbeddingMs = millisSince(embedStart)
	resp.Metadata.CacheHit = cacheHit
	lexicalOnly := err != nil
	if lexicalOnly {
		s.logger.Warn("embedding unavailable, degrading to lexical scoring",
			"tenant_id", req.TenantID, "error", err)
		resp.Metadata.LexicalOnly = true
	}

	filters := vectorstore.Filters{
		MinYears:       float64(req.Filters.MinYears),
		RequiredSkills: req.Filters.RequiredSkills,
		AvoidSkills:    req.Filters.AvoidSkills,
	}
	fetch := limit * s.multiplier

	retrievalStart := time.Now()
	var candidates []vectorstore.Candidate
	if lexicalOnly {
		candidates, err = s.retriever.RetrieveLexical(ctx, req.TenantID, req.Query, filters, fetch)
	} else {
		var joinMisses int
		candidates, joinMisses, err = s.retriever.Retrieve(ctx, req.TenantID, vector, req.Query, filters, fetch)
		if joinMisses > 0 {
			s.logger.Warn("embeddings without profile rows excluded",
				"tenant_id", req.TenantID, "join_misses", joinMisses)
		}
	}
	resp.Timings.RetrievalMs = millisSince(retrievalStart)
	if err != nil {
		return nil, err
	}
	if !lexicalOnly && s.minSimilarity > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.VectorSimilarity >= s.minSimilarity {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	// Empty retrieval short-circuits: no ranking work, no LLM spend.
	if len(candidates) == 0 {
		s.logRequest(req, resp, 0)
		return resp, nil
	}

	rankStart := time.Now()
	ranked := s.ranker.Rank(candidates, ranking.Query{
		Text:            req.Query,
		RequiredSkills:  req.Filters.RequiredSkills,
		PreferredSkills: req.Filters.PreferredSkills,
		AvoidSkills:     req.Filters.AvoidSkills,
		MinYears:        req.Filters.MinYears,
	})
	resp.Timings.RankingMs = millisSince(rankStart)

	if s.rerankEnabled(req) {
		topK := s.rerankTopK
		if req.Tenant != nil && req.Tenant.Config.TopK > 0 {
			topK = req.Tenant.Config.TopK
		}
		head := ranked
		if len(head) > topK {
			head = head[:topK]
		}

		// The clock spans the whole orchestrator call, cache path and
		// fallback included, so a reranked response never reports zero.
		rerankStart := time.Now()
		result := s.reranker.Rerank(ctx, &rerank.Request{
			TenantID:   req.TenantID,
			Candidates: head,
			Job:        s.jobContext(req),
		})
		resp.Timings.RerankMs = millisSince(rerankStart)

		merged := make([]ranking.ScoredCandidate, 0, len(ranked))
		merged = append(merged, result.Candidates...)
		merged = append(merged, ranked[len(head):]...)
		for i := range merged {
			merged[i].Rank = i + 1
		}
		ranked = merged

		resp.Metadata.Provider = result.Provider
		resp.Metadata.UsedFallback = result.UsedFallback
		resp.Metadata.CacheHit = resp.Metadata.CacheHit || result.CacheHit
	} else {
		resp.Metadata.UsedFallback = false
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	resp.Results = assembleResults(ranked, req.IncludeDebug)

	s.logRequest(req, resp, len(resp.Results))
	return resp, nil
}

// rerankEnabled checks the tenant switch; without tenant config the chain
// runs whenever a reranker was wired in.
func (s *Service) rerankEnabled(req *Request) bool {
	if s.reranker == nil {
		return false
	}
	if req.Tenant != nil {
		return req.Tenant.Config.RerankEnabled
	}
	return true
}

// jobContext builds the provider-facing job description from the request,
// preferring explicit job fields over derived ones.
func (s *Service) jobContext(req *Request) rerank.JobContext {
	job := req.Job
	if len(job.RequiredSkills) == 0 {
		job.RequiredSkills = req.Filters.RequiredSkills
	}
	if len(job.AvoidSkills) == 0 {
		job.AvoidSkills = req.Filters.AvoidSkills
	}
	if job.FreeText == "" {
		job.FreeText = req.Query
	}
	return job
}

func assembleResults(ranked []ranking.ScoredCandidate, debug bool) []ResultItem {
	items := make([]ResultItem, 0, len(ranked))
	for _, c := range ranked {
		item := ResultItem{
			CandidateID:  c.CandidateID,
			Score:        finalScore(c),
			MatchReasons: c.MatchReasons,
		}
		if debug {
			item.VectorSimilarity = c.VectorSimilarity
			item.TextScore = c.TextScore
			item.SkillMatchScore = c.SkillMatchScore
			item.CompositeScore = c.CompositeScore
			item.Reranked = c.Reranked
		}
		items = append(items, item)
	}
	return items
}

// finalScore is the provider judgment when the candidate was reranked, the
// composite score otherwise.
func finalScore(c ranking.ScoredCandidate) float64 {
	if c.Reranked {
		return c.RerankScore
	}
	return c.CompositeScore
}

// logRequest emits the single structured observability line per request.
func (s *Service) logRequest(req *Request, resp *Response, results int) {
	s.logger.Info("search completed",
		"tenant_id", req.TenantID,
		"query_chars", len(req.Query),
		"results", results,
		"embedding_ms", resp.Timings.EmbeddingMs,
		"retrieval_ms", resp.Timings.RetrievalMs,
		"ranking_ms", resp.Timings.RankingMs,
		"rerank_ms", resp.Timings.RerankMs,
		"cache_hit", resp.Metadata.CacheHit,
		"provider", resp.Metadata.Provider,
		"used_fallback", resp.Metadata.UsedFallback,
		"lexical_only", resp.Metadata.LexicalOnly,
	)
}

// millisSince returns fractional milliseconds, keeping sub-millisecond
// stages visible instead of truncating them to zero.
func millisSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
