package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"synapse/internal/flow"
)

const (
	GeneratorNone   = "none"
	GeneratorOllama = "ollama"
	GeneratorGemini = "gemini"
)

type Backend interface {
	flow.Backend
	Name() string
	Close() error
}

type Options struct {
	Generator    string
	OllamaURL    string
	Model        string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

// New returns a nil Backend for GeneratorNone.
func New(ctx context.Context, opts Options, log *zap.Logger) (Backend, error) {
	switch opts.Generator {
	case "", GeneratorNone:
		return nil, nil
	case GeneratorOllama:
		return NewOllama(opts.OllamaURL, opts.Model, opts.Timeout, log), nil
	case GeneratorGemini:
		g, err := NewGemini(ctx, opts.GeminiAPIKey, opts.GeminiModel, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generator %q", opts.Generator)
	}
}
