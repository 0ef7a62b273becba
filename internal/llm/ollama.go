package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"synapse/internal/flow"
)

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  any            `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type OllamaBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewOllama(baseURL, model string, timeout time.Duration, log *zap.Logger) *OllamaBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &OllamaBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (o *OllamaBackend) Name() string { return "ollama/" + o.model }

func (o *OllamaBackend) Generate(ctx context.Context, req flow.Request) (map[string]any, error) {
	body, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  req.Prompt,
		Stream:  false,
		Format:  req.Output.JSONSchema(),
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", out.Error)
	}
	o.log.Debug("ollama generate", zap.String("model", o.model), zap.String("task", string(req.Task)), zap.Int("response_bytes", len(out.Response)))
	return decodeObject(out.Response, req.Output)
}

func (o *OllamaBackend) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama is unreachable at %s: %w (is Ollama running?)", o.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	return nil
}

func (o *OllamaBackend) Close() error { return nil }
