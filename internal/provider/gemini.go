package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"clarabot/internal/domain"
)

// Gemini implements domain.Provider using the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

type GeminiConfig struct {
	APIKey string
	Model  string
	Logger *slog.Logger
}

// NewGemini creates the Gemini provider. A missing API key is a
// constructor error so it can be treated as fatal at startup.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Healthy(ctx context.Context) error {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: "ping"}},
	}}
	if _, err := g.client.Models.CountTokens(ctx, g.model, contents, nil); err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	return nil
}

// Complete issues one stateless generation call: the persona as system
// instruction, the context window as prior contents, and the inbound
// text as the final user content.
func (g *Gemini) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	})

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &domain.Completion{
		Text:      resp.Text(),
		Model:     model,
		LatencyMs: time.Since(started).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}
