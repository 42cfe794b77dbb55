// Package llm dispatches completion requests to the configured backend.
//
// Three backend shapes are supported: an OpenAI-compatible endpoint with
// constrained (guided_choice) decoding, a plain OpenAI-compatible chat
// endpoint, and a token-exchange chat endpoint. The dispatcher selects the
// backend from the engine configuration on every call.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorValuePrefix marks completion failures captured as cell values. A call
// failure never aborts a batch; the failing row's cell carries the message.
const ErrorValuePrefix = "Error querying LLM: "

// Backend issues one completion request. A non-empty allowedValues restricts
// the expected output to that closed set, by whatever mechanism the backend
// supports.
type Backend interface {
	Complete(ctx context.Context, promptText string, allowedValues []string) (string, error)
}

// Dispatcher routes completion calls to the backend named by the
// configuration passed with each call.
type Dispatcher struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher with a per-call HTTP timeout.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

// backendFor builds the backend for the configured framework.
func (d *Dispatcher) backendFor(cfg EngineConfig) (Backend, error) {
	switch cfg.Framework {
	case FrameworkVLLM:
		return newVLLMBackend(cfg, d.httpClient, d.logger), nil
	case FrameworkOpenAI:
		return newOpenAIBackend(cfg, d.httpClient, d.logger), nil
	case FrameworkGenAI, FrameworkPrivateGPT:
		return newGenAIBackend(cfg, d.httpClient, d.logger), nil
	default:
		return nil, fmt.Errorf("unknown framework %q", cfg.Framework)
	}
}

// Complete issues one completion and returns the text. Failures of any kind
// are converted into an "Error querying LLM: ..." string so callers can store
// partial batch results instead of losing them to a single bad row.
func (d *Dispatcher) Complete(ctx context.Context, cfg EngineConfig, promptText string, allowedValues []string) string {
	backend, err := d.backendFor(cfg)
	if err != nil {
		d.logger.Error("Backend selection failed", zap.Error(err))
		return ErrorValue(err)
	}

	result, err := backend.Complete(ctx, promptText, allowedValues)
	if err != nil {
		d.logger.Error("Completion failed",
			zap.String("framework", cfg.Framework),
			zap.String("model", cfg.Model),
			zap.Error(err))
		return ErrorValue(err)
	}
	return result
}

// ErrorValue formats a failure as the sentinel cell value.
func ErrorValue(err error) string {
	return ErrorValuePrefix + err.Error()
}

// IsErrorValue reports whether a cell value is a captured call failure.
func IsErrorValue(value string) bool {
	return strings.HasPrefix(value, ErrorValuePrefix)
}
