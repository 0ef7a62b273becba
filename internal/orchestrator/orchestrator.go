package orchestrator

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"synapse/internal/api"
	"synapse/internal/session"
)

type Phase int

const (
	AwaitingDocument Phase = iota
	Ingesting
	ReadyForQuery
	Querying
)

func (p Phase) String() string {
	switch p {
	case AwaitingDocument:
		return "awaiting document"
	case Ingesting:
		return "ingesting"
	case ReadyForQuery:
		return "ready"
	case Querying:
		return "querying"
	default:
		return "unknown"
	}
}

const (
	IngestFailedMessage    = "Failed to process the document. Please try again."
	QueryFailedMessage     = "Failed to get an answer. Please try again."
	ingestRejectedFallback = "Upload failed"
	queryRejectedFallback  = "Failed to get answer"
)

type Document struct {
	Name string
	Path string
}

// Receipt is a successful ingestion. Content is the document text when the
// ingester had it available locally.
type Receipt struct {
	Message string
	Content string
}

type Query struct {
	Question        string
	DocumentContent string
}

type Answer struct {
	Text    string
	Sources []string
}

type Ingester interface {
	Ingest(ctx context.Context, doc Document) (Receipt, error)
}

type Querier interface {
	Query(ctx context.Context, q Query) (Answer, error)
}

type Suggester interface {
	Suggest(ctx context.Context, documentContent string) ([]string, error)
}

type Notice struct {
	Op   string
	Text string
	Err  error
}

type ingestDoneMsg struct {
	doc     Document
	receipt Receipt
	err     error
}

type queryDoneMsg struct {
	question string
	answer   Answer
	err      error
}

type suggestDoneMsg struct {
	questions []string
	err       error
}

type Option func(*Orchestrator)

func WithSuggester(s Suggester) Option {
	return func(o *Orchestrator) { o.suggester = s }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// Orchestrator owns the session state. All methods must be called from the
// event loop; the commands they return only perform I/O and report back
// through Update.
type Orchestrator struct {
	state     *session.State
	ingester  Ingester
	querier   Querier
	suggester Suggester
	content   string
	notice    *Notice
	ctx       context.Context
	log       *zap.Logger
}

func New(ingester Ingester, querier Querier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:    session.New(),
		ingester: ingester,
		querier:  querier,
		ctx:      context.Background(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Phase() Phase {
	switch {
	case o.state.IngestionInFlight:
		return Ingesting
	case !o.state.DocumentReady:
		return AwaitingDocument
	case o.state.QueryInFlight:
		return Querying
	default:
		return ReadyForQuery
	}
}

func (o *Orchestrator) Snapshot() session.State {
	return o.state.Snapshot()
}

func (o *Orchestrator) DocumentContent() string { return o.content }

// TakeNotice returns the pending failure notice once.
func (o *Orchestrator) TakeNotice() (Notice, bool) {
	if o.notice == nil {
		return Notice{}, false
	}
	n := *o.notice
	o.notice = nil
	return n, true
}

// SubmitDocument returns nil unless a document is still awaited.
func (o *Orchestrator) SubmitDocument(doc Document) tea.Cmd {
	if o.Phase() != AwaitingDocument {
		o.log.Debug("document submission ignored", zap.String("phase", o.Phase().String()), zap.String("file", doc.Name))
		return nil
	}
	o.state.BeginIngestion(doc.Name)
	o.log.Info("ingestion started", zap.String("file", doc.Name))

	ctx, ingester := o.ctx, o.ingester
	return func() tea.Msg {
		receipt, err := ingester.Ingest(ctx, doc)
		return ingestDoneMsg{doc: doc, receipt: receipt, err: err}
	}
}

// SubmitQuestion appends the user message immediately and returns the query
// command, or nil when no question may be asked right now.
func (o *Orchestrator) SubmitQuestion(text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" || o.Phase() != ReadyForQuery {
		return nil
	}
	o.state.AppendUserMessage(text)
	o.state.BeginQuery()

	ctx, querier := o.ctx, o.querier
	q := Query{Question: text, DocumentContent: o.content}
	return func() tea.Msg {
		answer, err := querier.Query(ctx, q)
		return queryDoneMsg{question: text, answer: answer, err: err}
	}
}

// AskSuggestion submits the i-th suggested question (zero based).
func (o *Orchestrator) AskSuggestion(i int) tea.Cmd {
	if i < 0 || i >= len(o.state.Suggestions) {
		return nil
	}
	return o.SubmitQuestion(o.state.Suggestions[i])
}

// Update applies results produced by the commands above. The bool reports
// whether msg belonged to the orchestrator.
func (o *Orchestrator) Update(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case ingestDoneMsg:
		return o.applyIngest(msg), true
	case queryDoneMsg:
		o.applyQuery(msg)
		return nil, true
	case suggestDoneMsg:
		o.applySuggestions(msg)
		return nil, true
	}
	return nil, false
}

// Drain runs cmd and every follow-up command synchronously.
func (o *Orchestrator) Drain(cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		next, ok := o.Update(msg)
		if !ok {
			return
		}
		cmd = next
	}
}

func (o *Orchestrator) applyIngest(msg ingestDoneMsg) tea.Cmd {
	if !o.state.IngestionInFlight {
		return nil
	}
	if msg.err != nil {
		o.state.FailIngestion()
		o.raise("ingest", msg.err, ingestRejectedFallback, IngestFailedMessage)
		return nil
	}

	o.state.CompleteIngestion(msg.receipt.Message)
	o.state.Announce(session.ReadyMessage)
	o.content = msg.receipt.Content
	o.log.Info("document ready", zap.String("file", msg.doc.Name), zap.String("status", msg.receipt.Message), zap.Int("content_runes", len([]rune(o.content))))

	if o.suggester == nil || strings.TrimSpace(o.content) == "" {
		return nil
	}
	o.state.BeginSuggestions()
	ctx, suggester, content := o.ctx, o.suggester, o.content
	return func() tea.Msg {
		questions, err := suggester.Suggest(ctx, content)
		return suggestDoneMsg{questions: questions, err: err}
	}
}

func (o *Orchestrator) applyQuery(msg queryDoneMsg) {
	if !o.state.QueryInFlight {
		return
	}
	if msg.err != nil {
		o.state.FailQuery()
		o.raise("query", msg.err, queryRejectedFallback, QueryFailedMessage)
		return
	}
	sources := msg.answer.Sources
	if sources == nil {
		sources = []string{}
	}
	o.state.CompleteQuery(session.NewMessage(session.SenderAssistant, msg.answer.Text, sources))
	o.log.Info("answer received", zap.Int("sources", len(sources)))
}

func (o *Orchestrator) applySuggestions(msg suggestDoneMsg) {
	if !o.state.SuggestionsInFlight {
		return
	}
	if msg.err != nil {
		// suggestions are optional; the conversation carries on without them
		o.state.FailSuggestions()
		o.log.Warn("suggest questions failed", zap.Error(msg.err))
		return
	}
	o.state.CompleteSuggestions(msg.questions)
}

func (o *Orchestrator) raise(op string, err error, rejected, generic string) {
	o.notice = &Notice{Op: op, Text: noticeText(err, rejected, generic), Err: err}
	o.log.Warn(op+" failed", zap.Error(err))
}

// noticeText picks the most specific user-facing text for err: the server's
// detail, then a short rejection message for a bare non-success response,
// then the generic retry prompt.
func noticeText(err error, rejected, generic string) string {
	if detail, ok := api.Detail(err); ok {
		return detail
	}
	var ie *api.IngestionError
	var qe *api.QueryError
	if errors.As(err, &ie) || errors.As(err, &qe) {
		return rejected
	}
	return generic
}
