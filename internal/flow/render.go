package flow

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Render substitutes each {name} placeholder with vars[name] in a single pass.
// Values are inserted verbatim; braces inside a value are never expanded.
func Render(ctx context.Context, tpl string, vars map[string]any) (string, error) {
	msgs, err := prompt.FromMessages(schema.FString, schema.UserMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", errors.New("template produced no messages")
	}
	return msgs[0].Content, nil
}
