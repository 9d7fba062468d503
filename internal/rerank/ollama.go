package rerank

import (
	"context"
	"fmt"

	"github.com/candidex/search/internal/llm"
)

// OllamaProvider reranks candidates with a local Ollama model. Ollama has no
// schema-enforced output mode beyond "format": "json", so the raw response
// is validated and repaired before it reaches the orchestrator.
type OllamaProvider struct {
	client llm.LLM
	model  string
}

// NewOllamaProvider creates the provider on an existing LLM client.
func NewOllamaProvider(client llm.LLM, model string) *OllamaProvider {
	if model == "" {
		model = llm.DefaultModel
	}
	return &OllamaProvider{client: client, model: model}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// Submit implements Provider.
func (p *OllamaProvider) Submit(ctx context.Context, req *Request) (*Response, error) {
	text, err := p.client.Generate(ctx, buildPrompt(req), llm.GenerateOptions{
		Model:       p.model,
		Temperature: 0.0,
		MaxTokens:   2048,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	parsed, err := parseResponse(text)
	if err != nil {
		return nil, err
	}
	return ValidateResponse(req, parsed)
}

// Ensure OllamaProvider implements Provider.
var _ Provider = (*OllamaProvider)(nil)
