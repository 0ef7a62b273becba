package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"synapse/internal/contract"
	"synapse/internal/flow"
)

var ErrEmptyResponse = errors.New("model returned no text")

type GeminiBackend struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GeminiBackend{client: client, model: model, log: log}, nil
}

func (g *GeminiBackend) Name() string { return "gemini/" + g.model }

func (g *GeminiBackend) Generate(ctx context.Context, req flow.Request) (map[string]any, error) {
	// GenerativeModel carries per-call settings, so each call gets its own.
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = toGenaiSchema(req.Output)

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	g.log.Debug("gemini generate", zap.String("model", g.model), zap.String("task", string(req.Task)), zap.Int("response_bytes", len(text)))
	return decodeObject(text, req.Output)
}

func (g *GeminiBackend) Close() error {
	return g.client.Close()
}

func toGenaiSchema(shape contract.Shape) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(shape)),
		Required:   shape.Names(),
	}
	for _, f := range shape {
		p := &genai.Schema{Type: genai.TypeString, Description: f.Description}
		if f.Kind == contract.KindStringList {
			p.Type = genai.TypeArray
			p.Items = &genai.Schema{Type: genai.TypeString}
		}
		out.Properties[f.Name] = p
	}
	return out
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
