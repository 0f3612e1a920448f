package llm

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient is a thin wrapper around the official genai client.
// Rate limiting and retries are applied via Middleware.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	// an empty key lets genai fall back to GEMINI_API_KEY / GOOGLE_API_KEY
	if k := strings.TrimSpace(apiKey); k != "" {
		cfg.APIKey = k
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Summarize(ctx context.Context, content, typeHint string) (string, error) {
	prompt := BuildPrompt(content, typeHint)
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		if fr := resp.Candidates[0].FinishReason; fr != "" {
			return "", NewPermanentError(fmt.Errorf("%w (finish reason %s)", ErrEmptyResponse, fr))
		}
		return "", ErrEmptyResponse
	}
	return out, nil
}
