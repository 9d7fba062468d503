package rerank

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/candidex/search/internal/breaker"
	"github.com/candidex/search/internal/cache"
	"github.com/candidex/search/internal/ranking"
)

const (
	// DefaultBudget is the total rerank latency budget per request.
	DefaultBudget = 900 * time.Millisecond

	// DefaultPerCallCap bounds a single provider attempt so one slow
	// provider cannot eat the whole budget.
	DefaultPerCallCap = 600 * time.Millisecond

	// DefaultReserve is kept back from every provider deadline so the
	// passthrough answer always fits inside the budget.
	DefaultReserve = 50 * time.Millisecond
)

// ProviderEntry pairs a provider with its circuit breaker.
type ProviderEntry struct {
	Provider Provider
	Breaker  *breaker.Breaker
}

// Result is the orchestrator output. It always carries a usable candidate
// order; UsedFallback distinguishes a passthrough from a real rerank.
type Result struct {
	Candidates   []ranking.ScoredCandidate
	Provider     string
	UsedFallback bool
	CacheHit     bool
	Attempts     int
}

// Orchestrator drives the provider fallback chain. Breakers choose which
// provider is tried first; the deadline bounds the whole chain, so a request
// can never be blocked indefinitely by breaker state.
type Orchestrator struct {
	providers  []ProviderEntry
	retry      RetryPolicy
	budget     time.Duration
	perCallCap time.Duration
	reserve    time.Duration
	cache      cache.Cache
	logger     *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBudget sets the total rerank budget.
func WithBudget(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.budget = d
		}
	}
}

// WithPerCallCap sets the single-attempt deadline cap.
func WithPerCallCap(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.perCallCap = d
		}
	}
}

// WithReserve sets the passthrough reserve.
func WithReserve(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.reserve = d
		}
	}
}

// WithRetryPolicy sets the per-provider retry policy.
func WithRetryPolicy(p RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) { o.retry = p }
}

// WithCache enables rerank memoization.
func WithCache(c cache.Cache) OrchestratorOption {
	return func(o *Orchestrator) { o.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator over the provider chain in
// fallback order.
func NewOrchestrator(providers []ProviderEntry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		providers:  providers,
		retry:      DefaultRetryPolicy(),
		budget:     DefaultBudget,
		perCallCap: DefaultPerCallCap,
		reserve:    DefaultReserve,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// cachedResult is the memoized form of a successful rerank.
type cachedResult struct {
	Provider string   `json:"provider"`
	Response Response `json:"response"`
}

// Rerank runs the fallback chain. It never returns an error: when every
// provider fails or the budget runs out, the input order comes back
// unchanged with UsedFallback set.
func (o *Orchestrator) Rerank(ctx context.Context, req *Request) *Result {
	if len(req.Candidates) == 0 {
		return o.passthrough(req, 0)
	}

	key := o.cacheKey(req)
	if o.cache != nil {
		if raw, ok := o.cache.Get(key); ok {
			var cached cachedResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &Result{
					Candidates: applyResponse(req.Candidates, &cached.Response),
					Provider:   cached.Provider,
					CacheHit:   true,
				}
			}
		}
	}

	deadline := time.Now().Add(o.budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	attempts := 0
	for _, entry := range o.providers {
		slice := o.callSlice(deadline)
		if slice <= 0 {
			break
		}
		if !entry.Breaker.Allow() {
			o.logger.Debug("skipping provider, breaker open", "provider", entry.Provider.Name())
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, slice)
		resp, n, err := o.retry.Do(callCtx, func(ctx context.Context) (*Response, error) {
			return entry.Provider.Submit(ctx, req)
		})
		cancel()
		attempts += n

		if err != nil {
			entry.Breaker.RecordFailure()
			o.logger.Warn("rerank provider failed",
				"provider", entry.Provider.Name(),
				"attempts", n,
				"error", err)
			continue
		}

		entry.Breaker.RecordSuccess()
		if o.cache != nil {
			if raw, err := json.Marshal(cachedResult{Provider: entry.Provider.Name(), Response: *resp}); err == nil {
				o.cache.Set(key, raw)
			}
		}
		return &Result{
			Candidates: applyResponse(req.Candidates, resp),
			Provider:   entry.Provider.Name(),
			Attempts:   attempts,
		}
	}

	return o.passthrough(req, attempts)
}

// callSlice carves the next provider deadline from the remaining budget,
// holding back the passthrough reserve and capping single attempts.
func (o *Orchestrator) callSlice(deadline time.Time) time.Duration {
	remaining := time.Until(deadline) - o.reserve
	if remaining <= 0 {
		return 0
	}
	if remaining > o.perCallCap {
		return o.perCallCap
	}
	return remaining
}

func (o *Orchestrator) passthrough(req *Request, attempts int) *Result {
	return &Result{
		Candidates:   req.Candidates,
		Provider:     "none",
		UsedFallback: true,
		Attempts:     attempts,
	}
}

// cacheKey derives the memoization key from the tenant, the sorted
// candidate-id list, and the job-context fingerprint.
func (o *Orchestrator) cacheKey(req *Request) string {
	ids := make([]string, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		ids = append(ids, c.CandidateID)
	}
	sort.Strings(ids)
	return cache.Key(req.TenantID.String(), strings.Join(ids, ","), req.Job.Fingerprint())
}

// applyResponse folds the provider judgment back onto the shortlist:
// reranked candidates lead in provider order, candidates the provider did
// not mention keep their composite order behind them.
func applyResponse(input []ranking.ScoredCandidate, resp *Response) []ranking.ScoredCandidate {
	byID := make(map[string]ranking.ScoredCandidate, len(input))
	for _, c := range input {
		byID[c.CandidateID] = c
	}

	out := make([]ranking.ScoredCandidate, 0, len(input))
	mentioned := make(map[string]struct{}, len(resp.Candidates))
	for _, rc := range resp.Candidates {
		c, ok := byID[rc.CandidateID]
		if !ok {
			continue
		}
		c.RerankScore = rc.Score
		c.Reranked = true
		c.MatchReasons = append(c.MatchReasons, rc.Reasons...)
		mentioned[rc.CandidateID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range input {
		if _, ok := mentioned[c.CandidateID]; !ok {
			out = append(out, c)
		}
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
