package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"synapse/internal/contract"
)

var (
	ErrNoResult    = errors.New("backend returned no result")
	ErrEmptyResult = errors.New("backend returned an empty result")
)

type Request struct {
	Task   contract.Task
	Prompt string
	Output contract.Shape
}

// Backend produces a structured object for a rendered prompt. Implementations
// should constrain the model to Request.Output where they can.
type Backend interface {
	Generate(ctx context.Context, req Request) (map[string]any, error)
}

type BackendFunc func(ctx context.Context, req Request) (map[string]any, error)

func (f BackendFunc) Generate(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

type BackendError struct {
	Task contract.Task
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: generation backend: %v", e.Task, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Invoker holds no per-call state and may be shared between goroutines.
type Invoker struct {
	backend Backend
	log     *zap.Logger
}

func NewInvoker(backend Backend, log *zap.Logger) *Invoker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invoker{backend: backend, log: log}
}

func (i *Invoker) Run(ctx context.Context, task contract.Task, input map[string]any) (map[string]any, error) {
	c, err := contract.Lookup(task)
	if err != nil {
		return nil, err
	}
	if err := c.Input.Validate(task, contract.DirectionInput, input); err != nil {
		return nil, err
	}

	text, err := Render(ctx, c.Template, c.Input.Project(input))
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", task, err)
	}

	start := time.Now()
	raw, err := i.backend.Generate(ctx, Request{Task: task, Prompt: text, Output: c.Output})
	if err != nil {
		i.log.Warn("generation failed", zap.String("task", string(task)), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, &BackendError{Task: task, Err: err}
	}
	if raw == nil {
		return nil, &BackendError{Task: task, Err: ErrNoResult}
	}

	if err := c.Output.Validate(task, contract.DirectionOutput, raw); err != nil {
		var v *contract.Violation
		if errors.As(err, &v) && v.Reason == contract.ReasonMissing {
			return nil, &BackendError{Task: task, Err: err}
		}
		return nil, err
	}

	out := c.Output.Project(raw)
	for _, f := range c.Output {
		if isEmpty(out[f.Name]) {
			return nil, &BackendError{Task: task, Err: fmt.Errorf("%w: field %q", ErrEmptyResult, f.Name)}
		}
	}
	i.log.Debug("generation finished", zap.String("task", string(task)), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

type AnswerQuestionInput struct {
	Question        string
	DocumentContent string
}

type AnswerQuestionOutput struct {
	Answer string
}

func (i *Invoker) AnswerQuestion(ctx context.Context, in AnswerQuestionInput) (AnswerQuestionOutput, error) {
	out, err := i.Run(ctx, contract.TaskAnswerQuestion, map[string]any{
		"question":        in.Question,
		"documentContent": in.DocumentContent,
	})
	if err != nil {
		return AnswerQuestionOutput{}, err
	}
	answer, _ := out["answer"].(string)
	return AnswerQuestionOutput{Answer: strings.TrimSpace(answer)}, nil
}

type SuggestQuestionsInput struct {
	DocumentContent string
}

type SuggestQuestionsOutput struct {
	Questions []string
}

func (i *Invoker) SuggestQuestions(ctx context.Context, in SuggestQuestionsInput) (SuggestQuestionsOutput, error) {
	out, err := i.Run(ctx, contract.TaskSuggestQuestions, map[string]any{
		"documentContent": in.DocumentContent,
	})
	if err != nil {
		return SuggestQuestionsOutput{}, err
	}
	list, _ := out["questions"].([]string)
	questions := make([]string, 0, len(list))
	for _, q := range list {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == contract.SuggestedQuestionCount {
			break
		}
	}
	if len(questions) == 0 {
		return SuggestQuestionsOutput{}, &BackendError{Task: contract.TaskSuggestQuestions, Err: fmt.Errorf("%w: no questions", ErrEmptyResult)}
	}
	return SuggestQuestionsOutput{Questions: questions}, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	default:
		return v == nil
	}
}
