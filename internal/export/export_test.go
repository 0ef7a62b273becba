package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"synapse/internal/session"
)

func sampleState() session.State {
	s := session.New()
	s.BeginIngestion("Annual Report.pdf")
	s.CompleteIngestion("Indexed 12 pages")
	s.Announce(session.ReadyMessage)
	s.AppendUserMessage("Who is the author?")
	s.BeginQuery()
	s.CompleteQuery(session.NewMessage(session.SenderAssistant, "Jane Doe", []string{"By Jane Doe, 2021\nAll rights reserved"}))
	return s.Snapshot()
}

func TestBuildTranscriptMarkdown_OrdersSections(t *testing.T) {
	out := BuildTranscriptMarkdown(sampleState().Transcript, Options{})
	ready := strings.Index(out, "## Synapse\n\nDocument processed successfully.")
	question := strings.Index(out, "## You\n\nWho is the author?")
	answer := strings.LastIndex(out, "## Synapse\n\nJane Doe")
	if ready < 0 || question < 0 || answer < 0 || !(ready < question && question < answer) {
		t.Fatalf("unexpected section order:\n%s", out)
	}
	if strings.Contains(out, "**Sources**") {
		t.Fatalf("expected sources to be omitted, got:\n%s", out)
	}
}

func TestBuildTranscriptMarkdown_IncludesQuotedSources(t *testing.T) {
	out := BuildTranscriptMarkdown(sampleState().Transcript, Options{IncludeSources: true})
	if !strings.Contains(out, "> **[1]** By Jane Doe, 2021\n> All rights reserved") {
		t.Fatalf("expected quoted multi-line source, got:\n%s", out)
	}
}

func TestBuildTranscriptMarkdown_Empty(t *testing.T) {
	if out := BuildTranscriptMarkdown(nil, Options{}); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestExportWritesMarkdownFile(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := e.Export(sampleState(), now)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := filepath.Join(dir, "Annual_Report-20260304-050607.md")
	if path != want {
		t.Fatalf("unexpected path: got=%s want=%s", path, want)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	md := string(raw)
	for _, needle := range []string{
		"# Synapse conversation: Annual Report.pdf",
		"Exported: 2026-03-04T05:06:07Z",
		"status: Indexed 12 pages",
		"message_count: 3",
		"**Sources**",
	} {
		if !strings.Contains(md, needle) {
			t.Fatalf("expected %q in export:\n%s", needle, md)
		}
	}
}

func TestSafeFileName(t *testing.T) {
	if got := safeFileName(" a/b:c d "); got != "a_b_c_d" {
		t.Fatalf("unexpected safe name: %q", got)
	}
	if got := safeFileName(""); got != "conversation" {
		t.Fatalf("unexpected fallback name: %q", got)
	}
}
