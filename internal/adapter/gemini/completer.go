package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"paperbase/backend/internal/apperr"
)

// Completer sends a single user turn to a Gemini generative model and
// returns the text of the first candidate.
type Completer struct {
	client *genai.Client
	model  string
}

func NewCompleter(ctx context.Context, apiKey, model string) (*Completer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Completer{client: client, model: model}, nil
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	slog.DebugContext(ctx, "generating completion", "model", c.model, "prompt_length", len(prompt))
	gm := c.client.GenerativeModel(c.model)
	res, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "error", err)
		return "", fmt.Errorf("%w: complete: %v", apperr.ErrExternal, err)
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: complete: no candidates", apperr.ErrExternal)
	}
	var out string
	for _, part := range res.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out += string(txt)
		}
	}
	if out == "" {
		return "", fmt.Errorf("%w: complete: empty candidate", apperr.ErrExternal)
	}
	return out, nil
}
