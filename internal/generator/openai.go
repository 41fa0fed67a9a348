// Package generator provides the model-backed hypothesis generator. It is one
// implementation of the engine.Generator capability; the rule-based generator
// in internal/engine is the other.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/incidentstack/faultline/internal/engine"
)

const systemPrompt = `You are an incident analysis assistant. Given evidence about correlated
application events and service dependencies, propose root-cause hypotheses.
Respond with a JSON array of objects with fields: title, description,
confidence (0-100), evidence (array of {type, source, detail, confidence}),
suggested_actions (array of strings), related_services (array of strings).
Order hypotheses from most to least likely. Respond with JSON only.`

// ModelGenerator produces hypothesis candidates from a chat-completion model.
type ModelGenerator struct {
	client openai.Client
	model  openai.ChatModel
	logger *slog.Logger
}

// NewModelGenerator constructs a generator against the configured model.
func NewModelGenerator(apiKey, model string, logger *slog.Logger) *ModelGenerator {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
		logger: logger,
	}
}

// Generate renders the evidence bundle into the model prompt and decodes the
// candidate list from the response. The caller's context bounds the call.
func (g *ModelGenerator) Generate(ctx context.Context, bundle engine.EvidenceBundle) ([]engine.Candidate, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(bundle.Render()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	candidates, err := ParseCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		g.logger.Debug("model response unparseable", slog.Any("error", err))
		return nil, err
	}
	return candidates, nil
}

// ParseCandidates repairs and decodes a JSON candidate list produced by a
// model. Fences and minor syntax damage are tolerated; both a bare array and
// a {"hypotheses": [...]} wrapper are accepted.
func ParseCandidates(raw string) ([]engine.Candidate, error) {
	raw = stripFences(strings.TrimSpace(raw))
	if raw == "" {
		return nil, fmt.Errorf("empty model response")
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair model response: %w", err)
	}

	var candidates []engine.Candidate
	if err := json.Unmarshal([]byte(repaired), &candidates); err == nil {
		return candidates, nil
	}

	var wrapper struct {
		Hypotheses []engine.Candidate `json:"hypotheses"`
	}
	if err := json.Unmarshal([]byte(repaired), &wrapper); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(wrapper.Hypotheses) == 0 {
		return nil, fmt.Errorf("model response contained no hypotheses")
	}
	return wrapper.Hypotheses, nil
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
