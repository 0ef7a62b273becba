package contract

import (
	"errors"
	"fmt"
	"sort"
)

type Task string

const (
	TaskAnswerQuestion   Task = "answer-question"
	TaskSuggestQuestions Task = "suggest-questions"
)

// SuggestedQuestionCount is how many questions the suggest-questions prompt asks for.
const SuggestedQuestionCount = 5

var ErrUnknownTask = errors.New("unknown generation task")

type Kind string

const (
	KindString     Kind = "string"
	KindStringList Kind = "array"
)

type Field struct {
	Name        string
	Kind        Kind
	Description string
}

// Shape is an ordered set of required fields.
type Shape []Field

type Contract struct {
	Task     Task
	Name     string
	Input    Shape
	Output   Shape
	Template string
}

// Templates use single-brace placeholders and must not contain literal braces.
const answerQuestionTemplate = `You are an AI assistant that answers questions based on the content of a document.

Document Content: {documentContent}

Question: {question}

Answer:`

const suggestQuestionsTemplate = `You are an AI assistant that suggests relevant questions a user can ask about a given document.

Document Content: {documentContent}

Please suggest 5 relevant questions that the user can ask to explore the document's content more effectively. Format the questions as a JSON array of strings.`

var registry = map[Task]Contract{
	TaskAnswerQuestion: {
		Task: TaskAnswerQuestion,
		Name: "answerQuestionPrompt",
		Input: Shape{
			{Name: "question", Kind: KindString, Description: "The question to answer about the document."},
			{Name: "documentContent", Kind: KindString, Description: "The content of the document to answer questions about."},
		},
		Output: Shape{
			{Name: "answer", Kind: KindString, Description: "The answer to the question about the document."},
		},
		Template: answerQuestionTemplate,
	},
	TaskSuggestQuestions: {
		Task: TaskSuggestQuestions,
		Name: "suggestQuestionsPrompt",
		Input: Shape{
			{Name: "documentContent", Kind: KindString, Description: "The content of the document to generate questions for."},
		},
		Output: Shape{
			{Name: "questions", Kind: KindStringList, Description: "An array of suggested questions about the document."},
		},
		Template: suggestQuestionsTemplate,
	},
}

func Lookup(task Task) (Contract, error) {
	c, ok := registry[task]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return c, nil
}

func Tasks() []Task {
	out := make([]Task, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ValidateInput(task Task, candidate map[string]any) error {
	c, err := Lookup(task)
	if err != nil {
		return err
	}
	return c.Input.Validate(task, DirectionInput, candidate)
}

func ValidateOutput(task Task, candidate map[string]any) error {
	c, err := Lookup(task)
	if err != nil {
		return err
	}
	return c.Output.Validate(task, DirectionOutput, candidate)
}

// Validate stops at the first offending field; nothing is partially accepted.
func (s Shape) Validate(task Task, dir Direction, candidate map[string]any) error {
	for _, f := range s {
		v, ok := candidate[f.Name]
		if !ok || v == nil {
			return &Violation{Task: task, Direction: dir, Field: f.Name, Reason: ReasonMissing, Want: f.Kind}
		}
		if _, ok := coerce(f.Kind, v); !ok {
			return &Violation{Task: task, Direction: dir, Field: f.Name, Reason: ReasonWrongType, Want: f.Kind, Got: describe(v)}
		}
	}
	return nil
}

// Project keeps only the declared fields, normalized to string or []string.
// Callers validate first; undeclared or ill-typed entries are dropped.
func (s Shape) Project(candidate map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for _, f := range s {
		if v, ok := coerce(f.Kind, candidate[f.Name]); ok {
			out[f.Name] = v
		}
	}
	return out
}

func (s Shape) Names() []string {
	out := make([]string, 0, len(s))
	for _, f := range s {
		out = append(out, f.Name)
	}
	return out
}

func coerce(kind Kind, v any) (any, bool) {
	switch kind {
	case KindString:
		s, ok := v.(string)
		return s, ok
	case KindStringList:
		switch list := v.(type) {
		case []string:
			return append([]string(nil), list...), true
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, s)
			}
			return out, true
		}
	}
	return nil, false
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
