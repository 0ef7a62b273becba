package orchestrator

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"synapse/internal/api"
	"synapse/internal/extract"
	"synapse/internal/flow"
)

// DefaultContentLimit bounds the document text handed to generation prompts.
const DefaultContentLimit = 24000

// RemoteBackend ingests and queries through the external document service.
// With WithLocalContent it also keeps the document text for suggestions.
type RemoteBackend struct {
	client       *api.Client
	localContent bool
	limit        int
	log          *zap.Logger
}

type RemoteOption func(*RemoteBackend)

func WithLocalContent(limit int) RemoteOption {
	return func(r *RemoteBackend) {
		r.localContent = true
		r.limit = limit
	}
}

func NewRemoteBackend(client *api.Client, log *zap.Logger, opts ...RemoteOption) *RemoteBackend {
	if log == nil {
		log = zap.NewNop()
	}
	r := &RemoteBackend{client: client, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteBackend) Ingest(ctx context.Context, doc Document) (Receipt, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return Receipt{}, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	receipt, err := r.client.Ingest(ctx, doc.Name, extract.ContentType(doc.Path), f)
	if err != nil {
		return Receipt{}, err
	}

	out := Receipt{Message: receipt.Message}
	if r.localContent {
		text, err := extract.Text(doc.Path, r.limit)
		if err != nil {
			r.log.Warn("local text extraction failed", zap.String("file", doc.Name), zap.Error(err))
		} else {
			out.Content = text
		}
	}
	return out, nil
}

func (r *RemoteBackend) Query(ctx context.Context, q Query) (Answer, error) {
	res, err := r.client.Query(ctx, q.Question)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: res.Answer, Sources: res.Sources}, nil
}

// LocalBackend answers from the document text with the answer-question flow,
// without an ingestion service. Answers carry no sources.
type LocalBackend struct {
	invoker *flow.Invoker
	limit   int
}

func NewLocalBackend(invoker *flow.Invoker, limit int) *LocalBackend {
	return &LocalBackend{invoker: invoker, limit: limit}
}

func (l *LocalBackend) Ingest(_ context.Context, doc Document) (Receipt, error) {
	text, err := extract.Text(doc.Path, l.limit)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Message: fmt.Sprintf("Extracted %d characters from %s", len([]rune(text)), doc.Name),
		Content: text,
	}, nil
}

func (l *LocalBackend) Query(ctx context.Context, q Query) (Answer, error) {
	out, err := l.invoker.AnswerQuestion(ctx, flow.AnswerQuestionInput{
		Question:        q.Question,
		DocumentContent: q.DocumentContent,
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: out.Answer, Sources: []string{}}, nil
}

type FlowSuggester struct {
	invoker *flow.Invoker
}

func NewFlowSuggester(invoker *flow.Invoker) *FlowSuggester {
	return &FlowSuggester{invoker: invoker}
}

func (s *FlowSuggester) Suggest(ctx context.Context, documentContent string) ([]string, error) {
	out, err := s.invoker.SuggestQuestions(ctx, flow.SuggestQuestionsInput{DocumentContent: documentContent})
	if err != nil {
		return nil, err
	}
	return out.Questions, nil
}
