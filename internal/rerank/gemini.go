package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is the rerank model used when none is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider reranks candidates with a Gemini model in structured-output
// mode: the response schema is enforced by the API, so malformed payloads
// are rare but still validated before use.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates the provider. The API key is required.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Submit implements Provider.
func (p *GeminiProvider) Submit(ctx context.Context, req *Request) (*Response, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = rerankSchema

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	parsed, err := parseResponse(text)
	if err != nil {
		return nil, err
	}
	return ValidateResponse(req, parsed)
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// rerankSchema constrains the model output to the provider contract.
var rerankSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"candidates": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"candidateId": {Type: genai.TypeString},
					"score":       {Type: genai.TypeNumber},
					"reasons": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
				},
				Required: []string{"candidateId", "score", "reasons"},
			},
		},
	},
	Required: []string{"candidates"},
}

// buildPrompt renders the request as a scoring prompt shared by all
// providers.
func buildPrompt(req *Request) string {
	var sb strings.Builder

	sb.WriteString("You are a recruiting relevance scorer. Score each candidate's fit for the job from 0.0 to 1.0 and give at least one short reason per candidate.\n\n")

	sb.WriteString("Job:\n")
	if req.Job.Function != "" {
		sb.WriteString("  Function: " + req.Job.Function + "\n")
	}
	if req.Job.Level != "" {
		sb.WriteString("  Level: " + req.Job.Level + "\n")
	}
	if len(req.Job.RequiredSkills) > 0 {
		sb.WriteString("  Required skills: " + strings.Join(req.Job.RequiredSkills, ", ") + "\n")
	}
	if len(req.Job.AvoidSkills) > 0 {
		sb.WriteString("  Skills to avoid: " + strings.Join(req.Job.AvoidSkills, ", ") + "\n")
	}
	if req.Job.FreeText != "" {
		sb.WriteString("  Description: " + req.Job.FreeText + "\n")
	}
	sb.WriteString("\nCandidates:\n")

	for _, c := range req.Candidates {
		sb.WriteString(fmt.Sprintf("  - id=%s similarity=%.3f skillMatch=%.3f", c.CandidateID, c.VectorSimilarity, c.SkillMatchScore))
		if len(c.MatchReasons) > 0 {
			sb.WriteString(" signals: " + strings.Join(c.MatchReasons, "; "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nReturn JSON with a \"candidates\" array of {candidateId, score, reasons}. Use only the ids listed above.\n")
	return sb.String()
}

// parseResponse decodes the raw provider text, stripping markdown fences
// some models wrap around JSON.
func parseResponse(text string) (*Response, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrSchemaViolation, err)
	}
	return &resp, nil
}

// extractText pulls the text parts out of a Gemini response.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// classifyGeminiError maps API errors onto the transient/hard taxonomy.
// Rate limits and server-side errors are transient; everything else is a
// hard failure for this request.
func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fmt.Errorf("%w: gemini status %d: %v", ErrProviderUnavailable, apiErr.Code, err)
		}
		return fmt.Errorf("gemini request failed: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// isTransientStatus is the provider-specific arm of IsTransient.
func isTransientStatus(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return false
}

// Ensure GeminiProvider implements Provider.
var _ Provider = (*GeminiProvider)(nil)
