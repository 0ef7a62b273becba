package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"synapse/internal/orchestrator"
)

// runHeadless drives the orchestrator without the terminal UI. A failed
// question is reported and the remaining ones are still asked.
func runHeadless(orch *orchestrator.Orchestrator, docPath string, questions []string, out io.Writer) error {
	orch.Drain(orch.SubmitDocument(orchestrator.Document{Name: filepath.Base(docPath), Path: docPath}))
	if n, ok := orch.TakeNotice(); ok {
		return fmt.Errorf("%s: %w", n.Text, n.Err)
	}
	snap := orch.Snapshot()
	fmt.Fprintf(out, "%s: %s\n", snap.DocumentName, snap.StatusText)

	failed := 0
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		fmt.Fprintf(out, "\nQ: %s\n", q)
		orch.Drain(orch.SubmitQuestion(q))
		if n, ok := orch.TakeNotice(); ok {
			failed++
			fmt.Fprintf(out, "error: %s\n", n.Text)
			continue
		}
		last, ok := orch.Snapshot().LastAssistantMessage()
		if !ok {
			continue
		}
		fmt.Fprintf(out, "A: %s\n", last.Text)
		for i, src := range last.Sources {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, strings.Join(strings.Fields(src), " "))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(questions))
	}
	return nil
}
