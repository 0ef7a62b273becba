package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse/internal/api"
	"synapse/internal/contract"
	"synapse/internal/flow"
	"synapse/internal/session"
)

type ingestFunc func(ctx context.Context, doc Document) (Receipt, error)

func (f ingestFunc) Ingest(ctx context.Context, doc Document) (Receipt, error) { return f(ctx, doc) }

type queryFunc func(ctx context.Context, q Query) (Answer, error)

func (f queryFunc) Query(ctx context.Context, q Query) (Answer, error) { return f(ctx, q) }

type suggestFunc func(ctx context.Context, content string) ([]string, error)

func (f suggestFunc) Suggest(ctx context.Context, content string) ([]string, error) {
	return f(ctx, content)
}

func okIngester(message, content string) Ingester {
	return ingestFunc(func(context.Context, Document) (Receipt, error) {
		return Receipt{Message: message, Content: content}, nil
	})
}

func echoQuerier() Querier {
	return queryFunc(func(_ context.Context, q Query) (Answer, error) {
		return Answer{Text: "answer to " + q.Question}, nil
	})
}

func readyOrchestrator(t *testing.T, q Querier, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(okIngester("Indexed 12 pages", ""), q, opts...)
	o.Drain(o.SubmitDocument(Document{Name: "paper.pdf", Path: "paper.pdf"}))
	require.Equal(t, ReadyForQuery, o.Phase())
	return o
}

func texts(s session.State) []string {
	out := make([]string, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		out = append(out, string(m.Sender)+":"+m.Text)
	}
	return out
}

func TestSubmitDocumentTransitions(t *testing.T) {
	o := New(okIngester("Indexed 12 pages", ""), echoQuerier())
	assert.Equal(t, AwaitingDocument, o.Phase())

	cmd := o.SubmitDocument(Document{Name: "paper.pdf"})
	require.NotNil(t, cmd)
	assert.Equal(t, Ingesting, o.Phase())
	snap := o.Snapshot()
	assert.True(t, snap.IngestionInFlight)
	assert.Equal(t, session.IngestingStatus, snap.StatusText)

	assert.Nil(t, o.SubmitDocument(Document{Name: "other.pdf"}), "submission while ingesting is ignored")

	next, handled := o.Update(cmd())
	assert.True(t, handled)
	assert.Nil(t, next)

	snap = o.Snapshot()
	assert.Equal(t, ReadyForQuery, o.Phase())
	assert.True(t, snap.DocumentReady)
	assert.Equal(t, "Indexed 12 pages", snap.StatusText)
	assert.Equal(t, []string{"assistant:" + session.ReadyMessage}, texts(snap))

	assert.Nil(t, o.SubmitDocument(Document{Name: "other.pdf"}), "submission after ready is ignored")
}

func TestSubmitQuestionBeforeReadyIsNoop(t *testing.T) {
	o := New(okIngester("ok", ""), echoQuerier())
	assert.Nil(t, o.SubmitQuestion("too early"))
	assert.Empty(t, o.Snapshot().Transcript)

	o.SubmitDocument(Document{Name: "a.pdf"})
	assert.Nil(t, o.SubmitQuestion("still too early"))
	assert.Empty(t, o.Snapshot().Transcript)
}

func TestSubmitQuestionIsOptimisticAndExclusive(t *testing.T) {
	o := readyOrchestrator(t, echoQuerier())

	cmd := o.SubmitQuestion("  q1  ")
	require.NotNil(t, cmd)
	snap := o.Snapshot()
	assert.Equal(t, Querying, o.Phase())
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, session.SenderUser, snap.Transcript[1].Sender)
	assert.Equal(t, "q1", snap.Transcript[1].Text)

	assert.Nil(t, o.SubmitQuestion("q2"), "second question while querying is a no-op")
	assert.Len(t, o.Snapshot().Transcript, 2)

	o.Update(cmd())
	assert.Equal(t, ReadyForQuery, o.Phase())
	assert.Nil(t, o.SubmitQuestion("   "))
}

func TestSequentialQuestionsKeepOrder(t *testing.T) {
	o := readyOrchestrator(t, echoQuerier())

	o.Drain(o.SubmitQuestion("q1"))
	o.Drain(o.SubmitQuestion("q2"))

	assert.Equal(t, []string{
		"assistant:" + session.ReadyMessage,
		"user:q1",
		"assistant:answer to q1",
		"user:q2",
		"assistant:answer to q2",
	}, texts(o.Snapshot()))
	last, ok := o.Snapshot().LastAssistantMessage()
	require.True(t, ok)
	assert.NotNil(t, last.Sources)
	assert.Empty(t, last.Sources)
}

func TestIngestFailureIsContained(t *testing.T) {
	calls := 0
	ing := ingestFunc(func(context.Context, Document) (Receipt, error) {
		calls++
		if calls == 1 {
			return Receipt{}, &api.IngestionError{StatusCode: 400, Detail: "Only PDF files are allowed"}
		}
		return Receipt{Message: "Indexed 3 pages"}, nil
	})
	o := New(ing, echoQuerier())

	o.Drain(o.SubmitDocument(Document{Name: "notes.docx"}))
	assert.Equal(t, AwaitingDocument, o.Phase())
	snap := o.Snapshot()
	assert.False(t, snap.DocumentReady)
	assert.False(t, snap.IngestionInFlight)
	assert.Empty(t, snap.Transcript)

	n, ok := o.TakeNotice()
	require.True(t, ok)
	assert.Equal(t, "ingest", n.Op)
	assert.Equal(t, "Only PDF files are allowed", n.Text)
	_, ok = o.TakeNotice()
	assert.False(t, ok, "notice is reported once")

	o.Drain(o.SubmitDocument(Document{Name: "paper.pdf"}))
	assert.Equal(t, ReadyForQuery, o.Phase())
}

func TestQueryFailureIsContained(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "detail", err: &api.QueryError{StatusCode: 500, Detail: "Vector store not ready"}, want: "Vector store not ready"},
		{name: "status only", err: &api.QueryError{StatusCode: 502}, want: "Failed to get answer"},
		{name: "transport", err: &api.TransportError{Op: "query", Err: errors.New("connection refused")}, want: QueryFailedMessage},
		{name: "generation", err: &flow.BackendError{Task: contract.TaskAnswerQuestion, Err: flow.ErrNoResult}, want: QueryFailedMessage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fail := true
			q := queryFunc(func(_ context.Context, q Query) (Answer, error) {
				if fail {
					return Answer{}, tc.err
				}
				return Answer{Text: "ok"}, nil
			})
			o := readyOrchestrator(t, q)

			o.Drain(o.SubmitQuestion("q1"))
			assert.Equal(t, ReadyForQuery, o.Phase())
			assert.Equal(t, []string{"assistant:" + session.ReadyMessage, "user:q1"}, texts(o.Snapshot()))

			n, ok := o.TakeNotice()
			require.True(t, ok)
			assert.Equal(t, tc.want, n.Text)
			assert.ErrorIs(t, n.Err, tc.err)

			fail = false
			o.Drain(o.SubmitQuestion("q2"))
			assert.Len(t, o.Snapshot().Transcript, 4)
		})
	}
}

func TestIngestFailureFallbackText(t *testing.T) {
	o := New(ingestFunc(func(context.Context, Document) (Receipt, error) {
		return Receipt{}, &api.TransportError{Op: "ingest", Err: errors.New("dial tcp: connection refused")}
	}), echoQuerier())

	o.Drain(o.SubmitDocument(Document{Name: "paper.pdf"}))
	n, ok := o.TakeNotice()
	require.True(t, ok)
	assert.Equal(t, IngestFailedMessage, n.Text)
}

func TestStaleResultsAreIgnored(t *testing.T) {
	o := readyOrchestrator(t, echoQuerier())
	before := o.Snapshot()

	_, handled := o.Update(queryDoneMsg{question: "ghost", answer: Answer{Text: "boo"}})
	assert.True(t, handled)
	_, handled = o.Update(ingestDoneMsg{err: errors.New("late")})
	assert.True(t, handled)

	assert.Equal(t, texts(before), texts(o.Snapshot()))
	assert.True(t, o.Snapshot().DocumentReady)

	_, handled = o.Update(tea.KeyMsg{})
	assert.False(t, handled)
}

func TestSuggestionsFollowIngestion(t *testing.T) {
	var gotContent string
	sug := suggestFunc(func(_ context.Context, content string) ([]string, error) {
		gotContent = content
		return []string{"Who is the author?", "When was it written?"}, nil
	})
	o := New(okIngester("Indexed 12 pages", "By Jane Doe, 2021"), echoQuerier(), WithSuggester(sug))

	next, _ := o.Update(o.SubmitDocument(Document{Name: "paper.pdf"})())
	require.NotNil(t, next)
	assert.True(t, o.Snapshot().SuggestionsInFlight)
	assert.Equal(t, ReadyForQuery, o.Phase(), "questions may be asked while suggestions load")

	o.Update(next())
	assert.Equal(t, "By Jane Doe, 2021", gotContent)
	assert.Equal(t, []string{"Who is the author?", "When was it written?"}, o.Snapshot().Suggestions)

	assert.Nil(t, o.AskSuggestion(5))
	o.Drain(o.AskSuggestion(0))
	assert.Equal(t, "assistant:answer to Who is the author?", texts(o.Snapshot())[2])
}

func TestSuggestionFailureIsQuiet(t *testing.T) {
	sug := suggestFunc(func(context.Context, string) ([]string, error) {
		return nil, &flow.BackendError{Task: contract.TaskSuggestQuestions, Err: flow.ErrEmptyResult}
	})
	o := New(okIngester("ok", "text"), echoQuerier(), WithSuggester(sug))
	o.Drain(o.SubmitDocument(Document{Name: "a.txt"}))

	snap := o.Snapshot()
	assert.False(t, snap.SuggestionsInFlight)
	assert.Empty(t, snap.Suggestions)
	_, ok := o.TakeNotice()
	assert.False(t, ok)
}

func TestSuggestionsSkippedWithoutContent(t *testing.T) {
	called := false
	sug := suggestFunc(func(context.Context, string) ([]string, error) {
		called = true
		return nil, nil
	})
	o := New(okIngester("ok", ""), echoQuerier(), WithSuggester(sug))
	o.Drain(o.SubmitDocument(Document{Name: "a.pdf"}))
	assert.False(t, called)
}

func TestEndToEndAgainstDocumentService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(api.IngestPath, func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":[{"msg":"field required"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"Indexed 12 pages"}`))
	})
	mux.HandleFunc(api.QueryPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"Jane Doe","sources":[{"page_content":"By Jane Doe, 2021","source":"paper.txt"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "paper.txt")
	require.NoError(t, os.WriteFile(path, []byte("By Jane Doe, 2021"), 0o644))

	backend := NewRemoteBackend(api.NewClient(srv.URL, 0, nil), nil, WithLocalContent(DefaultContentLimit))
	o := New(backend, backend)

	o.Drain(o.SubmitDocument(Document{Name: "paper.txt", Path: path}))
	require.Equal(t, ReadyForQuery, o.Phase())
	snap := o.Snapshot()
	assert.Equal(t, "Indexed 12 pages", snap.StatusText)
	assert.Equal(t, []string{"assistant:Document processed successfully. You can now ask questions about it."}, texts(snap))
	assert.Equal(t, "By Jane Doe, 2021", o.DocumentContent())

	o.Drain(o.SubmitQuestion("Who is the author?"))
	snap = o.Snapshot()
	require.Len(t, snap.Transcript, 3)
	assert.Equal(t, session.SenderUser, snap.Transcript[1].Sender)
	assert.Equal(t, "Who is the author?", snap.Transcript[1].Text)
	assert.Equal(t, session.SenderAssistant, snap.Transcript[2].Sender)
	assert.Equal(t, "Jane Doe", snap.Transcript[2].Text)
	assert.Equal(t, []string{"By Jane Doe, 2021"}, snap.Transcript[2].Sources)
}

func TestRemoteBackendMissingFile(t *testing.T) {
	backend := NewRemoteBackend(api.NewClient("http://127.0.0.1:0", 0, nil), nil)
	o := New(backend, backend)
	o.Drain(o.SubmitDocument(Document{Name: "gone.pdf", Path: filepath.Join(t.TempDir(), "gone.pdf")}))

	assert.Equal(t, AwaitingDocument, o.Phase())
	n, ok := o.TakeNotice()
	require.True(t, ok)
	assert.Equal(t, IngestFailedMessage, n.Text)
}

func TestLocalBackendAnswersWithFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.md")
	require.NoError(t, os.WriteFile(path, []byte("# Paper\n\nBy Jane Doe, 2021"), 0o644))

	var prompts []string
	gen := flow.BackendFunc(func(_ context.Context, req flow.Request) (map[string]any, error) {
		prompts = append(prompts, req.Prompt)
		switch req.Task {
		case contract.TaskSuggestQuestions:
			return map[string]any{"questions": []any{"Who is the author?"}}, nil
		default:
			return map[string]any{"answer": "Jane Doe"}, nil
		}
	})
	inv := flow.NewInvoker(gen, nil)
	local := NewLocalBackend(inv, DefaultContentLimit)
	o := New(local, local, WithSuggester(NewFlowSuggester(inv)))

	o.Drain(o.SubmitDocument(Document{Name: "paper.md", Path: path}))
	require.Equal(t, ReadyForQuery, o.Phase())
	assert.Equal(t, "Extracted 26 characters from paper.md", o.Snapshot().StatusText)
	assert.Equal(t, []string{"Who is the author?"}, o.Snapshot().Suggestions)

	o.Drain(o.AskSuggestion(0))
	last, ok := o.Snapshot().LastAssistantMessage()
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", last.Text)
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "Document Content: # Paper\n\nBy Jane Doe, 2021")
	assert.Contains(t, prompts[1], "Question: Who is the author?")
}
