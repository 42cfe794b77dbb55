package llm

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	constrainedSystemPrompt = "You must respond with exactly one of the allowed values, nothing else."

	// Constrained completions are a single label, so the token budget is
	// capped well below the configured maximum.
	constrainedMaxTokens = 50
)

// openAIBackend talks to a plain OpenAI-compatible chat endpoint. The API has
// no constrained-decoding feature, so constrained calls rewrite the prompt:
// a system instruction plus the comma-joined value list appended to the user
// message. The returned label is not re-validated against the allowed set;
// that soft-constraint limitation is accepted behavior.
type openAIBackend struct {
	cfg        EngineConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func newOpenAIBackend(cfg EngineConfig, client *http.Client, logger *zap.Logger) *openAIBackend {
	return &openAIBackend{cfg: cfg, httpClient: client, logger: logger}
}

func (b *openAIBackend) Complete(ctx context.Context, promptText string, allowedValues []string) (string, error) {
	temp := b.cfg.Temperature
	req := chatRequest{
		Model:       b.cfg.Model,
		Temperature: &temp,
	}

	if len(allowedValues) > 0 {
		valuesStr := strings.Join(allowedValues, ", ")
		req.Messages = []chatMessage{
			{Role: "system", Content: constrainedSystemPrompt},
			{Role: "user", Content: promptText + "\n\nPlease choose exactly one of these options: " + valuesStr},
		}
		req.MaxTokens = constrainedMaxTokens
	} else {
		req.Messages = []chatMessage{{Role: "user", Content: promptText}}
		req.MaxTokens = b.cfg.MaxTokens
	}

	return postChatCompletion(ctx, b.httpClient, b.cfg.ChatBaseURL(), b.cfg.APIKey, req)
}
