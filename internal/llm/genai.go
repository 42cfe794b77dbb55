package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// genaiBackend talks to the token-exchange chat endpoint: an OAuth2
// client-credentials exchange against the token URL, then a bearer-authorized
// POST of {message, model} to <genai_base_url>/chat. The token is fetched per
// call; the source re-authenticated on every request and nothing depends on
// reuse.
type genaiBackend struct {
	cfg        EngineConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func newGenAIBackend(cfg EngineConfig, client *http.Client, logger *zap.Logger) *genaiBackend {
	return &genaiBackend{cfg: cfg, httpClient: client, logger: logger}
}

type genaiChatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

type genaiChatResponse struct {
	Response string `json:"response"`
}

func (b *genaiBackend) Complete(ctx context.Context, promptText string, allowedValues []string) (string, error) {
	if len(allowedValues) > 0 {
		promptText = promptText + "\n\nYou must choose exactly one of these options: " + strings.Join(allowedValues, ", ")
	}

	token, err := b.fetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	reqBody := genaiChatRequest{Message: promptText, Model: b.cfg.Model}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", trimSlash(b.cfg.GenAIBaseURL)+"/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp genaiChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResp.Response == "" {
		return "", fmt.Errorf("missing response field in chat reply")
	}
	return chatResp.Response, nil
}

func (b *genaiBackend) fetchToken(ctx context.Context) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		TokenURL:     b.cfg.TokenURL,
	}
	// Route the oauth2 exchange through our timeout-bearing client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	token, err := cc.Token(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
