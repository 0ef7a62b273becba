package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"synapse/internal/clipboard"
	"synapse/internal/config"
	"synapse/internal/export"
	"synapse/internal/extract"
	"synapse/internal/highlight"
	"synapse/internal/index"
	"synapse/internal/orchestrator"
	"synapse/internal/session"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"
)

var errNothingToExport = errors.New("no document loaded yet")

type Model struct {
	cfg      config.AppConfig
	orch     *orchestrator.Orchestrator
	indexer  *index.Indexer
	exporter *export.Exporter
	copy     func(context.Context, string) error
	log      *zap.Logger

	picker   filepicker.Model
	viewport viewport.Model
	input    textinput.Model
	search   textinput.Model
	help     help.Model
	spinner  spinner.Model
	keys     keyMap

	width  int
	height int

	ticking     bool
	searchMode  bool
	searchQuery string
	searchHits  int
	showSources bool
	rendering   bool
	renderNonce int

	rendered   string
	matchLines []int
	matchCount int
	matchIndex int

	status string
	notice string
}

type exportMsg struct {
	path string
	err  error
}
type renderMsg struct {
	rendered string
	follow   bool
	nonce    int
}
type copyMsg struct {
	err error
}

func NewModel(cfg config.AppConfig, orch *orchestrator.Orchestrator, idx *index.Indexer, exp *export.Exporter, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}

	fp := filepicker.New()
	fp.AllowedTypes = append([]string(nil), extract.AcceptedExtensions...)
	fp.AutoHeight = false
	fp.Height = 10

	vp := viewport.New(60, 20)

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	in := textinput.New()
	in.Placeholder = "Ask a question about the document, or /help"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	ti := textinput.New()
	ti.Placeholder = "Search the conversation..."
	ti.Prompt = "search: "
	ti.CharLimit = 256

	return Model{
		cfg:      cfg,
		orch:     orch,
		indexer:  idx,
		exporter: exp,
		copy:     clipboard.Copy,
		log:      log,
		picker:   fp,
		viewport: vp,
		input:    in,
		search:   ti,
		help:     h,
		spinner:  sp,
		keys:     defaultKeys(),

		matchIndex: -1,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.picker.Init()}
	if m.cfg.Document != "" {
		cmds = append(cmds, m.orch.SubmitDocument(documentFor(m.cfg.Document)))
	}
	return tea.Batch(cmds...)
}

func documentFor(path string) orchestrator.Document {
	return orchestrator.Document{Name: filepath.Base(path), Path: path}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if next, ok := m.orch.Update(msg); ok {
		refresh := m.afterSessionChange()
		return m, tea.Batch(next, refresh)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		cmd := m.renderTranscript(false)
		return m, cmd

	case renderMsg:
		if msg.nonce != m.renderNonce {
			return m, nil
		}
		m.rendering = false
		m.setViewportFromRendered(msg.rendered, msg.follow)
		return m, nil

	case exportMsg:
		if msg.err != nil {
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}
		return m, nil

	case copyMsg:
		switch {
		case msg.err == nil:
			m.status = "Copied answer to clipboard"
		case errors.Is(msg.err, clipboard.ErrToolNotFound):
			m.status = "Could not copy: clipboard tool not found"
		case errors.Is(msg.err, clipboard.ErrNothingToCopy):
			m.status = "Nothing to copy yet"
		default:
			m.status = "Could not copy: " + msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			m.ticking = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.orch.Phase() {
		case orchestrator.AwaitingDocument:
			return m.updatePicker(msg)
		case orchestrator.Ingesting:
			return m, nil
		}
		return m.handleKey(msg)
	}

	if m.orch.Phase() == orchestrator.AwaitingDocument {
		return m.updatePicker(msg)
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.notice = ""
		submit := m.orch.SubmitDocument(documentFor(path))
		refresh := m.afterSessionChange()
		return m, tea.Batch(cmd, submit, refresh)
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.notice = fmt.Sprintf("%s is not a supported document (%s)", filepath.Base(path), strings.Join(extract.AcceptedExtensions, " "))
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchMode {
		switch msg.String() {
		case "esc":
			m.searchMode = false
			m.search.SetValue("")
			m.search.Blur()
			m.applySearch("")
			return m, nil
		case "enter":
			m.searchMode = false
			m.search.Blur()
			m.applySearch(m.search.Value())
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submitInput()
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		m.search.Focus()
		return m, nil
	case key.Matches(msg, m.keys.ClearSearch):
		if m.searchQuery != "" {
			m.applySearch("")
		}
		return m, nil
	case key.Matches(msg, m.keys.ToggleSources):
		cmd := m.toggleSources()
		return m, cmd
	case key.Matches(msg, m.keys.NextMatch):
		m.jumpToMatch(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevMatch):
		m.jumpToMatch(-1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.Copy):
		return m, m.copyCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		return m, nil
	}
	if strings.HasPrefix(raw, "/") {
		m.input.SetValue("")
		return m.runCommand(raw)
	}

	cmd := m.orch.SubmitQuestion(raw)
	if cmd == nil {
		m.status = "Waiting for the current answer..."
		return m, nil
	}
	m.input.SetValue("")
	m.notice = ""
	refresh := m.afterSessionChange()
	return m, tea.Batch(cmd, refresh)
}

func (m Model) runCommand(raw string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(raw, "/"), " ")
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "quit", "exit":
		return m, tea.Quit
	case "copy":
		return m, m.copyCmd()
	case "export":
		return m, m.exportCmd()
	case "sources":
		cmd := m.toggleSources()
		return m, cmd
	case "search":
		m.applySearch(arg)
		return m, nil
	case "help":
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil
	}

	if n, err := strconv.Atoi(name); err == nil {
		cmd := m.orch.AskSuggestion(n - 1)
		if cmd == nil {
			m.status = fmt.Sprintf("No suggested question %d", n)
			return m, nil
		}
		m.notice = ""
		refresh := m.afterSessionChange()
		return m, tea.Batch(cmd, refresh)
	}
	m.status = "Unknown command: /" + name
	return m, nil
}

// afterSessionChange brings every view of the session up to date after the
// orchestrator touched it.
func (m *Model) afterSessionChange() tea.Cmd {
	if n, ok := m.orch.TakeNotice(); ok {
		m.notice = n.Text
	}
	snap := m.orch.Snapshot()
	if err := m.indexer.Sync(context.Background(), snap.Transcript); err != nil {
		m.log.Warn("index transcript", zap.Error(err))
	}
	if m.searchQuery != "" {
		m.runSearch()
	}
	m.resize()

	cmds := []tea.Cmd{m.renderTranscript(true)}
	if m.busy() && !m.ticking {
		m.ticking = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m Model) busy() bool {
	switch m.orch.Phase() {
	case orchestrator.Ingesting, orchestrator.Querying:
		return true
	}
	return m.orch.Snapshot().SuggestionsInFlight
}

func (m *Model) toggleSources() tea.Cmd {
	m.showSources = !m.showSources
	if m.showSources {
		m.status = "Showing sources"
	} else {
		m.status = "Hiding sources"
	}
	return m.renderTranscript(false)
}

func (m *Model) applySearch(raw string) {
	m.searchQuery = strings.TrimSpace(raw)
	m.matchIndex = -1
	if m.searchQuery == "" {
		m.searchHits = 0
		m.status = ""
	} else {
		m.runSearch()
	}
	m.refreshViewport()
	if len(m.matchLines) > 0 {
		m.jumpToMatch(0)
	}
}

func (m *Model) runSearch() {
	hits, err := m.indexer.Search(m.searchQuery, 100)
	if err != nil {
		m.log.Warn("search transcript", zap.String("query", m.searchQuery), zap.Error(err))
		m.status = "Search failed: " + err.Error()
		return
	}
	m.searchHits = len(hits)
	switch len(hits) {
	case 0:
		m.status = "No messages matched your search"
	case 1:
		m.status = "1 message matches"
	default:
		m.status = fmt.Sprintf("%d messages match", len(hits))
	}
}

func (m Model) exportCmd() tea.Cmd {
	snap := m.orch.Snapshot()
	exporter := m.exporter
	return func() tea.Msg {
		if strings.TrimSpace(snap.DocumentName) == "" || len(snap.Transcript) == 0 {
			return exportMsg{err: errNothingToExport}
		}
		path, err := exporter.Export(snap, time.Now())
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd() tea.Cmd {
	last, ok := m.orch.Snapshot().LastAssistantMessage()
	text := ""
	if ok {
		text = last.Text
		if m.showSources && len(last.Sources) > 0 {
			text += "\n\n" + export.SourcesMarkdown(last.Sources)
		}
	}
	copyFn := m.copy
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{err: copyFn(ctx, text)}
	}
}

func (m *Model) renderTranscript(follow bool) tea.Cmd {
	snap := m.orch.Snapshot()
	md := export.BuildTranscriptMarkdown(snap.Transcript, export.Options{IncludeSources: m.showSources})
	if strings.TrimSpace(md) == "" {
		md = "_Pick a document to start asking questions about it._"
	}
	md = sanitizeMarkdownForDisplay(md)

	m.rendering = true
	m.renderNonce++
	nonce := m.renderNonce
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	return func() tea.Msg {
		rendered := md
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(config.DefaultGlamourStyle),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			if out, renderErr := r.Render(md); renderErr == nil {
				rendered = out
			}
		}
		return renderMsg{rendered: rendered, follow: follow, nonce: nonce}
	}
}

func (m *Model) refreshViewport() {
	if m.rendered == "" {
		m.clearMatches()
		return
	}
	oldOffset := m.viewport.YOffset
	m.setViewportFromRendered(m.rendered, false)
	m.viewport.SetYOffset(m.clampViewportOffset(oldOffset))
}

func (m *Model) setViewportFromRendered(rendered string, follow bool) {
	m.rendered = rendered
	content := rendered
	if terms := index.Terms(m.searchQuery); len(terms) > 0 {
		res := highlight.ApplyANSI(rendered, terms, func(s string) string {
			return searchMatchStyle.Render(s)
		})
		content = res.Text
		m.setMatchMeta(res)
	} else {
		m.clearMatches()
	}

	m.viewport.SetContent(content)
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) setMatchMeta(res highlight.Result) {
	if res.Count == 0 || len(res.LineIndex) == 0 {
		m.clearMatches()
		return
	}
	m.matchCount = res.Count
	m.matchLines = append(m.matchLines[:0], res.LineIndex...)
	if m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	}
}

func (m *Model) clearMatches() {
	m.matchLines = nil
	m.matchCount = 0
	m.matchIndex = -1
}

func (m *Model) jumpToMatch(delta int) {
	if len(m.matchLines) == 0 {
		if m.searchQuery != "" {
			m.status = "No search matches in transcript"
		}
		return
	}

	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	} else if delta > 0 {
		m.matchIndex = (m.matchIndex + 1) % len(m.matchLines)
	} else if delta < 0 {
		m.matchIndex = (m.matchIndex - 1 + len(m.matchLines)) % len(m.matchLines)
	}

	line := m.matchLines[m.matchIndex]
	m.viewport.SetYOffset(m.clampViewportOffset(line))
	m.status = fmt.Sprintf("Match line %d/%d", m.matchIndex+1, len(m.matchLines))
}

func (m *Model) clampViewportOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

func sanitizeMarkdownForDisplay(md string) string {
	md = clampLongLines(md, 8000)
	const maxDisplayChars = 1_000_000
	if len(md) <= maxDisplayChars {
		return md
	}
	trimmed := strings.TrimRight(md[:maxDisplayChars], "\n")
	return trimmed + "\n\n... [conversation truncated for display; use /export for full content] ...\n"
}

func clampLongLines(s string, max int) string {
	if max <= 0 || len(s) == 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if len(line) <= max {
			continue
		}
		head := line[:max/2]
		tail := line[len(line)-max/2:]
		lines[i] = head + "... [line truncated " + strconv.Itoa(len(line)-max) + " chars] ..." + tail
	}
	return strings.Join(lines, "\n")
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	chrome := 4 // status, input, help, panel border
	if m.help.ShowAll {
		chrome += 3
	}
	chrome += len(m.suggestionLines())
	bodyHeight := m.height - chrome
	if bodyHeight < 6 {
		bodyHeight = 6
	}

	m.viewport.Width = m.width - 4
	m.viewport.Height = bodyHeight - 1
	m.picker.Height = bodyHeight - 2
	m.input.Width = m.width - 4
	m.search.Width = m.width - 12
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	var body string
	switch m.orch.Phase() {
	case orchestrator.AwaitingDocument:
		body = titleStyle.Render("Choose a document ("+strings.Join(extract.AcceptedExtensions, " ")+")") + "\n" + m.picker.View()
	case orchestrator.Ingesting:
		body = m.spinner.View() + " " + session.IngestingStatus
	default:
		body = m.viewport.View()
	}
	pane := panelStyle.Width(m.width - 2).Render(body)

	parts := []string{m.statusLine(), pane}
	parts = append(parts, m.suggestionLines()...)

	switch {
	case m.orch.Phase() == orchestrator.AwaitingDocument:
		parts = append(parts, helpStyle.Render("↑/↓ move • →/enter open • ← back • ctrl+c quit"))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	case m.searchMode:
		parts = append(parts, m.search.View())
	default:
		parts = append(parts, m.input.View())
	}
	parts = append(parts, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) suggestionLines() []string {
	snap := m.orch.Snapshot()
	if !snap.DocumentReady || len(snap.Suggestions) == 0 {
		return nil
	}
	width := m.width - 2
	if width < 20 {
		width = 20
	}
	out := make([]string, 0, len(snap.Suggestions))
	for i, q := range snap.Suggestions {
		line := fmt.Sprintf("/%d %s", i+1, q)
		out = append(out, suggestionStyle.Render(ansi.Truncate(line, width, "…")))
	}
	return out
}

func (m Model) statusLine() string {
	snap := m.orch.Snapshot()
	var status string
	switch m.orch.Phase() {
	case orchestrator.AwaitingDocument:
		status = "no document"
	case orchestrator.Ingesting:
		status = m.spinner.View() + " " + snap.DocumentName
	case orchestrator.Querying:
		status = fmt.Sprintf("doc=%s  %s thinking...", snap.DocumentName, m.spinner.View())
	default:
		status = "doc=" + snap.DocumentName
		if snap.StatusText != "" {
			status += "  " + snap.StatusText
		}
	}
	if snap.SuggestionsInFlight {
		status += "  [suggesting]"
	}
	if m.showSources {
		status += "  [sources]"
	}
	if m.searchQuery != "" {
		status += fmt.Sprintf("  [search: %s | %d msgs]", m.searchQuery, m.searchHits)
	}
	if m.rendering {
		status += "  [rendering]"
	}
	if s := strings.TrimSpace(m.status); s != "" {
		status += "  " + s
	}

	width := m.width - 2
	if width < 20 {
		width = 20
	}
	line := statusStyle.Render(ansi.Truncate(status, width, "…"))
	if m.notice != "" {
		line = lipgloss.JoinVertical(lipgloss.Left, line, noticeStyle.Render(ansi.Truncate(m.notice, width, "…")))
	}
	return line
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("124")).
			Padding(0, 1)
	searchMatchStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("220"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	panelStyle      = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

type keyMap struct {
	Submit        key.Binding
	Search        key.Binding
	ClearSearch   key.Binding
	NextMatch     key.Binding
	PrevMatch     key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
	ToggleSources key.Binding
	Export        key.Binding
	Copy          key.Binding
	Quit          key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask"),
		),
		Search: key.NewBinding(
			key.WithKeys("ctrl+f"),
			key.WithHelp("ctrl+f", "search"),
		),
		ClearSearch: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear search"),
		),
		NextMatch: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "next match"),
		),
		PrevMatch: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "prev match"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		ToggleSources: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "toggle sources"),
		),
		Export: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", "export markdown"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "copy answer"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Search, k.ToggleSources, k.Copy, k.Export, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.PageUp, k.PageDown},
		{k.Search, k.NextMatch, k.PrevMatch, k.ClearSearch},
		{k.ToggleSources, k.Copy, k.Export, k.Quit},
	}
}
