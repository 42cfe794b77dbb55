package llm

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// fixedSeed keeps unconstrained vLLM completions reproducible.
const fixedSeed = 1337

// vllmBackend talks to an OpenAI-compatible endpoint with the vLLM
// guided_choice extension. Constrained calls restrict decoding server-side,
// so every non-error completion is a member of the allowed value set.
type vllmBackend struct {
	cfg        EngineConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func newVLLMBackend(cfg EngineConfig, client *http.Client, logger *zap.Logger) *vllmBackend {
	return &vllmBackend{cfg: cfg, httpClient: client, logger: logger}
}

func (b *vllmBackend) Complete(ctx context.Context, promptText string, allowedValues []string) (string, error) {
	req := chatRequest{
		Model:    b.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: promptText}},
	}

	if len(allowedValues) > 0 {
		req.GuidedChoice = allowedValues
	} else {
		zero := 0.0
		seed := fixedSeed
		req.Temperature = &zero
		req.Seed = &seed
		req.MaxTokens = b.cfg.MaxTokens
	}

	return postChatCompletion(ctx, b.httpClient, b.cfg.ChatBaseURL(), b.cfg.APIKey, req)
}
