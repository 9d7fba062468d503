// Package rerank refines a shortlist of composite-ranked candidates with a
// chain of LLM providers behind circuit breakers, falling back to the input
// order when no provider answers in budget.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/candidex/search/internal/ranking"
)

// ErrSchemaViolation marks a provider response that breaks the contract
// (malformed payload, missing score or reasons). It is a hard provider
// failure: counted against the breaker, never retried on this request.
var ErrSchemaViolation = errors.New("rerank schema violation")

// ErrProviderUnavailable marks a transient provider-side failure such as a
// refused connection or an overloaded backend.
var ErrProviderUnavailable = errors.New("rerank provider unavailable")

// JobContext carries the job-side inputs a provider sees alongside the
// candidates.
type JobContext struct {
	Function       string   `json:"function,omitempty"`
	Level          string   `json:"level,omitempty"`
	RequiredSkills []string `json:"requiredSkills,omitempty"`
	AvoidSkills    []string `json:"avoidSkills,omitempty"`
	FreeText       string   `json:"freeText,omitempty"`
}

// Fingerprint returns a stable string over the job context for cache-key
// derivation. Skill lists are sorted so list order does not split cache
// entries.
func (j JobContext) Fingerprint() string {
	req := append([]string(nil), j.RequiredSkills...)
	avoid := append([]string(nil), j.AvoidSkills...)
	sort.Strings(req)
	sort.Strings(avoid)
	return strings.Join([]string{
		j.Function,
		j.Level,
		strings.Join(req, ","),
		strings.Join(avoid, ","),
		j.FreeText,
	}, "|")
}

// Request is the provider input: the top-K shortlist plus job context.
// TenantID scopes memoization; results are never shared across tenants.
type Request struct {
	TenantID   uuid.UUID                 `json:"tenantId"`
	Candidates []ranking.ScoredCandidate `json:"candidates"`
	Job        JobContext                `json:"jobContext"`
}

// RankedCandidate is one provider judgment.
type RankedCandidate struct {
	CandidateID string   `json:"candidateId"`
	Rank        int      `json:"rank"`
	Score       float64  `json:"score"`
	Reasons     []string `json:"reasons"`
}

// Response is the validated provider output.
type Response struct {
	Candidates []RankedCandidate `json:"candidates"`
}

// Provider is one rerank-capable model behind a uniform interface. The
// orchestrator iterates providers and never switches on concrete types.
type Provider interface {
	// Name identifies the provider in logs and response metadata.
	Name() string

	// Submit reranks the request's candidates. The context carries the
	// per-call deadline slice; implementations must respect it.
	Submit(ctx context.Context, req *Request) (*Response, error)
}

// ValidateResponse enforces the output contract against the request:
// candidate ids outside the request's id set are dropped, not merged, and
// every kept entry must carry a score in [0,1] and at least one reason.
// An empty response after filtering is a schema violation.
func ValidateResponse(req *Request, resp *Response) (*Response, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrSchemaViolation)
	}

	inputIDs := make(map[string]struct{}, len(req.Candidates))
	for _, c := range req.Candidates {
		inputIDs[c.CandidateID] = struct{}{}
	}

	kept := make([]RankedCandidate, 0, len(resp.Candidates))
	seen := make(map[string]struct{}, len(resp.Candidates))
	for _, rc := range resp.Candidates {
		if _, ok := inputIDs[rc.CandidateID]; !ok {
			// Foreign id: contract violation by the provider, discarded.
			continue
		}
		if _, dup := seen[rc.CandidateID]; dup {
			continue
		}
		if rc.Score < 0 || rc.Score > 1 {
			return nil, fmt.Errorf("%w: score %f out of range for candidate %s", ErrSchemaViolation, rc.Score, rc.CandidateID)
		}
		if len(rc.Reasons) == 0 {
			return nil, fmt.Errorf("%w: no reasons for candidate %s", ErrSchemaViolation, rc.CandidateID)
		}
		seen[rc.CandidateID] = struct{}{}
		kept = append(kept, rc)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no valid candidates in response", ErrSchemaViolation)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].CandidateID < kept[j].CandidateID
	})
	for i := range kept {
		kept[i].Rank = i + 1
	}

	return &Response{Candidates: kept}, nil
}

// IsTransient classifies an error as retryable. Timeouts, cancellation from
// an expired budget, connection failures, and provider unavailability are
// transient; schema violations never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaViolation) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, ErrProviderUnavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return isTransientStatus(err)
}
