package ui

import (
	"context"
	"os"
	"strings"
	"testing"

	"synapse/internal/api"
	"synapse/internal/config"
	"synapse/internal/export"
	"synapse/internal/index"
	"synapse/internal/orchestrator"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

type stubBackend struct {
	receipt  orchestrator.Receipt
	answer   orchestrator.Answer
	queryErr error
}

func (s stubBackend) Ingest(context.Context, orchestrator.Document) (orchestrator.Receipt, error) {
	return s.receipt, nil
}

func (s stubBackend) Query(context.Context, orchestrator.Query) (orchestrator.Answer, error) {
	return s.answer, s.queryErr
}

func authorBackend() stubBackend {
	return stubBackend{
		receipt: orchestrator.Receipt{Message: "Indexed 12 pages"},
		answer: orchestrator.Answer{
			Text:    "Jane Doe",
			Sources: []string{"By Jane Doe, 2021"},
		},
	}
}

func newTestModel(t *testing.T, b stubBackend) Model {
	t.Helper()
	idx, err := index.New()
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	exp, err := export.New(t.TempDir())
	if err != nil {
		t.Fatalf("export.New: %v", err)
	}

	orch := orchestrator.New(b, b)
	m := NewModel(config.AppConfig{Document: "report.pdf"}, orch, idx, exp, nil)
	next, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return drive(t, next.(Model), cmd)
}

// drive runs cmd and every follow-up synchronously, feeding results back
// through Update. Spinner ticks are dropped so the loop terminates.
func drive(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 200 {
			t.Fatalf("command loop did not settle")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg, tea.QuitMsg, nil:
		default:
			next, follow := m.Update(msg)
			m = next.(Model)
			queue = append(queue, follow)
		}
	}
	return m
}

func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	return drive(t, next.(Model), cmd)
}

func ask(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	return press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func ingested(t *testing.T, b stubBackend) Model {
	t.Helper()
	m := newTestModel(t, b)
	m = drive(t, m, m.Init())
	if got := m.orch.Phase(); got != orchestrator.ReadyForQuery {
		t.Fatalf("expected ready phase after start-up document, got %s", got)
	}
	return m
}

func plain(m Model) string {
	return ansi.Strip(m.rendered)
}

func TestStartupDocumentThenQuestion(t *testing.T) {
	m := ingested(t, authorBackend())

	snap := m.orch.Snapshot()
	if snap.StatusText != "Indexed 12 pages" || snap.DocumentName != "report.pdf" {
		t.Fatalf("unexpected session after ingestion: %#v", snap)
	}
	if !strings.Contains(plain(m), "Document processed successfully") {
		t.Fatalf("expected ready announcement in transcript, got:\n%s", plain(m))
	}

	m = ask(t, m, "Who is the author?")

	if m.input.Value() != "" {
		t.Fatalf("expected input to be cleared, got %q", m.input.Value())
	}
	if got := m.orch.Phase(); got != orchestrator.ReadyForQuery {
		t.Fatalf("expected ready phase after answer, got %s", got)
	}
	out := plain(m)
	if !strings.Contains(out, "Who is the author?") || !strings.Contains(out, "Jane Doe") {
		t.Fatalf("expected question and answer in transcript, got:\n%s", out)
	}
	if strings.Contains(out, "Sources") {
		t.Fatalf("expected sources hidden by default, got:\n%s", out)
	}
}

func TestToggleSourcesShowsPassages(t *testing.T) {
	m := ingested(t, authorBackend())
	m = ask(t, m, "Who is the author?")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if !m.showSources {
		t.Fatalf("expected sources toggle on")
	}
	out := plain(m)
	if !strings.Contains(out, "Sources") || !strings.Contains(out, "By Jane Doe, 2021") {
		t.Fatalf("expected source passage in transcript, got:\n%s", out)
	}

	m = ask(t, m, "/sources")
	if m.showSources {
		t.Fatalf("expected /sources to toggle sources off")
	}
}

func TestQueryFailureShowsDetail(t *testing.T) {
	b := authorBackend()
	b.queryErr = &api.QueryError{StatusCode: 400, Detail: "Query too long"}
	m := ingested(t, b)

	m = ask(t, m, "Who is the author?")

	if m.notice != "Query too long" {
		t.Fatalf("expected server detail as notice, got %q", m.notice)
	}
	snap := m.orch.Snapshot()
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Text != "Who is the author?" {
		t.Fatalf("expected user message to remain last, got %#v", last)
	}
	if m.orch.Phase() != orchestrator.ReadyForQuery {
		t.Fatalf("expected ready phase after failure, got %s", m.orch.Phase())
	}
}

func TestSubmitWhileQueryingKeepsInput(t *testing.T) {
	m := ingested(t, authorBackend())
	m.input.SetValue("first")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.orch.Phase() != orchestrator.Querying {
		t.Fatalf("expected querying phase, got %s", m.orch.Phase())
	}

	m.input.SetValue("second")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd != nil {
		t.Fatalf("expected no command while querying")
	}
	if m.input.Value() != "second" || m.status != "Waiting for the current answer..." {
		t.Fatalf("unexpected state: input=%q status=%q", m.input.Value(), m.status)
	}
}

func TestSearchCommandCountsMatchingMessages(t *testing.T) {
	m := ingested(t, authorBackend())
	m = ask(t, m, "Who is the author?")

	m = ask(t, m, "/search jane")
	if m.searchQuery != "jane" || m.searchHits != 1 {
		t.Fatalf("unexpected search state: query=%q hits=%d", m.searchQuery, m.searchHits)
	}
	if m.matchCount == 0 || !strings.Contains(m.viewport.View(), "Jane") {
		t.Fatalf("expected highlighted match in viewport, count=%d", m.matchCount)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.searchQuery != "" || m.matchCount != 0 {
		t.Fatalf("expected esc to clear search, got query=%q count=%d", m.searchQuery, m.matchCount)
	}
}

func TestSuggestionCommandWithoutSuggestions(t *testing.T) {
	m := ingested(t, authorBackend())
	m = ask(t, m, "/3")
	if m.status != "No suggested question 3" {
		t.Fatalf("unexpected status: %q", m.status)
	}
	m = ask(t, m, "/frobnicate")
	if m.status != "Unknown command: /frobnicate" {
		t.Fatalf("unexpected status: %q", m.status)
	}
}

func TestCopySendsLatestAnswer(t *testing.T) {
	m := ingested(t, authorBackend())
	m = ask(t, m, "Who is the author?")

	var copied string
	m.copy = func(_ context.Context, text string) error {
		copied = text
		return nil
	}
	m = ask(t, m, "/copy")

	if copied != "Jane Doe" {
		t.Fatalf("unexpected clipboard text: %q", copied)
	}
	if m.status != "Copied answer to clipboard" {
		t.Fatalf("unexpected status: %q", m.status)
	}
}

func TestExportWritesConversation(t *testing.T) {
	m := ingested(t, authorBackend())
	m = ask(t, m, "Who is the author?")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	path, ok := strings.CutPrefix(m.status, "Exported: ")
	if !ok {
		t.Fatalf("expected export status, got %q", m.status)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(raw), "## Synapse\n\nJane Doe") {
		t.Fatalf("unexpected export:\n%s", raw)
	}
}

func TestClampLongLines(t *testing.T) {
	in := strings.Repeat("a", 30) + "\nshort"
	out := clampLongLines(in, 10)
	if !strings.Contains(out, "[line truncated 20 chars]") || !strings.HasSuffix(out, "\nshort") {
		t.Fatalf("unexpected clamp output: %q", out)
	}
}
