package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"synapse/internal/session"
)

type Exporter struct {
	overrideDir string
	cwd         string
}

func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{overrideDir: strings.TrimSpace(overrideDir), cwd: cwd}, nil
}

type Options struct {
	IncludeSources bool
}

func (e *Exporter) Export(state session.State, now time.Time) (string, error) {
	path := e.outputPath(state, now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	body := BuildTranscriptMarkdown(state.Transcript, Options{IncludeSources: true})
	md := BuildSessionMarkdown(state, body, now.UTC())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

func BuildTranscriptMarkdown(messages []session.Message, opts Options) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Text)
		if content == "" {
			continue
		}
		switch m.Sender {
		case session.SenderUser:
			b.WriteString("## You\n\n")
		default:
			b.WriteString("## Synapse\n\n")
		}
		b.WriteString(content + "\n\n")

		if opts.IncludeSources && len(m.Sources) > 0 {
			b.WriteString(SourcesMarkdown(m.Sources))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return ""
	}
	return out + "\n"
}

// SourcesMarkdown renders passages as numbered block quotes.
func SourcesMarkdown(sources []string) string {
	var b strings.Builder
	b.WriteString("**Sources**\n\n")
	for i, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("> **[%d]** ", i+1))
		b.WriteString(strings.ReplaceAll(src, "\n", "\n> "))
		b.WriteString("\n\n")
	}
	return b.String()
}

func BuildSessionMarkdown(state session.State, transcript string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Synapse conversation: " + safeValue(state.DocumentName) + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("session: " + safeValue(state.ID) + "\n")
	b.WriteString("document: " + safeValue(state.DocumentName) + "\n")
	b.WriteString("status: " + safeValue(state.StatusText) + "\n")
	b.WriteString(fmt.Sprintf("message_count: %d\n", len(state.Transcript)))
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) outputPath(state session.State, now time.Time) string {
	dir := e.overrideDir
	if dir == "" {
		dir = filepath.Join(e.cwd, "synapse-exports")
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.cwd, dir)
	}
	name := safeFileName(strings.TrimSuffix(state.DocumentName, filepath.Ext(state.DocumentName)))
	return filepath.Join(dir, name+"-"+now.UTC().Format("20060102-150405")+".md")
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "conversation"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
