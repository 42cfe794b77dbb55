package llm

// Framework identifiers understood by the dispatcher.
const (
	FrameworkVLLM   = "vLLM"        // OpenAI-compatible endpoint with guided_choice decoding
	FrameworkOpenAI = "OpenAI"      // plain OpenAI-compatible chat endpoint
	FrameworkGenAI  = "TN-GenAI-V1" // token-exchange chat endpoint

	// FrameworkPrivateGPT is the legacy name of the token-exchange backend.
	FrameworkPrivateGPT = "PrivateGPT"
)

// EngineConfig carries everything one completion call needs. It is an explicit
// value passed to every dispatcher call rather than process-global state; the
// settings surface replaces it wholesale and the last writer wins.
type EngineConfig struct {
	Framework           string  `yaml:"framework" json:"framework"`
	BaseURL             string  `yaml:"base_url" json:"base_url"`
	APIKey              string  `yaml:"api_key" json:"api_key"`
	Model               string  `yaml:"model" json:"model"`
	MaxTokens           int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature         float64 `yaml:"temperature" json:"temperature"`
	MaxTranscriptLength int     `yaml:"max_transcript_length" json:"max_transcript_length"`

	// EmbeddingModel is used by the agreement engine for freetext similarity.
	EmbeddingModel string `yaml:"embedding_model" json:"embedding_model"`

	// Token-exchange backend fields.
	TokenURL     string `yaml:"token_url" json:"token_url"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	GenAIBaseURL string `yaml:"genai_base_url" json:"genai_base_url"`

	// Legacy fields accepted from the settings surface but not used.
	ChatID      string `yaml:"chat_id" json:"chat_id"`
	HistorySize int    `yaml:"history_size" json:"history_size"`
}

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// ChatBaseURL resolves the OpenAI-compatible endpoint for the configuration:
// the configured URL for vLLM, the public OpenAI endpoint otherwise.
func (c EngineConfig) ChatBaseURL() string {
	if c.Framework == FrameworkVLLM && c.BaseURL != "" {
		return trimSlash(c.BaseURL)
	}
	if c.BaseURL != "" {
		return trimSlash(c.BaseURL)
	}
	return openAIDefaultBaseURL
}

func trimSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}
