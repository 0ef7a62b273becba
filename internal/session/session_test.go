package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionLifecycle(t *testing.T) {
	s := New()
	require.NotEmpty(t, s.ID)
	assert.False(t, s.DocumentReady)

	s.BeginIngestion("paper.pdf")
	assert.True(t, s.IngestionInFlight)
	assert.Equal(t, IngestingStatus, s.StatusText)
	assert.Equal(t, "paper.pdf", s.DocumentName)

	s.CompleteIngestion("Indexed 12 pages")
	assert.False(t, s.IngestionInFlight)
	assert.True(t, s.DocumentReady)
	assert.Equal(t, "Indexed 12 pages", s.StatusText)
}

func TestFailIngestionKeepsTranscript(t *testing.T) {
	s := New()
	s.Announce("hello")
	s.BeginIngestion("paper.pdf")
	s.FailIngestion()

	assert.False(t, s.IngestionInFlight)
	assert.False(t, s.DocumentReady)
	assert.Empty(t, s.DocumentName)
	require.Len(t, s.Transcript, 1)
}

func TestQueryLifecycleAppendsInOrder(t *testing.T) {
	s := New()
	q := s.AppendUserMessage("Who is the author?")
	s.BeginQuery()
	assert.True(t, s.QueryInFlight)

	s.CompleteQuery(NewMessage(SenderAssistant, "Jane Doe", []string{"By Jane Doe, 2021"}))
	assert.False(t, s.QueryInFlight)

	require.Len(t, s.Transcript, 2)
	assert.Equal(t, q.ID, s.Transcript[0].ID)
	assert.Equal(t, SenderUser, s.Transcript[0].Sender)
	assert.Equal(t, "Jane Doe", s.Transcript[1].Text)
	assert.Equal(t, []string{"By Jane Doe, 2021"}, s.Transcript[1].Sources)

	s.AppendUserMessage("again")
	s.BeginQuery()
	s.FailQuery()
	assert.False(t, s.QueryInFlight)
	assert.Len(t, s.Transcript, 3)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New()
	s.CompleteQuery(NewMessage(SenderAssistant, "A", []string{"p1"}))
	s.CompleteSuggestions([]string{"q1", " ", "q2"})

	snap := s.Snapshot()
	snap.Transcript[0].Sources[0] = "mutated"
	snap.Suggestions[0] = "mutated"
	snap.Transcript = append(snap.Transcript, Message{Text: "extra"})

	assert.Equal(t, "p1", s.Transcript[0].Sources[0])
	assert.Equal(t, []string{"q1", "q2"}, s.Suggestions)
	assert.Len(t, s.Transcript, 1)
}

func TestSuggestionsLifecycle(t *testing.T) {
	s := New()
	s.CompleteSuggestions([]string{"old"})
	s.BeginSuggestions()
	assert.True(t, s.SuggestionsInFlight)
	assert.Empty(t, s.Suggestions)

	s.FailSuggestions()
	assert.False(t, s.SuggestionsInFlight)
	assert.Empty(t, s.Suggestions)
}

func TestLastAssistantMessage(t *testing.T) {
	s := New()
	_, ok := s.Snapshot().LastAssistantMessage()
	assert.False(t, ok)

	s.Announce("ready")
	s.AppendUserMessage("q")
	m, ok := s.Snapshot().LastAssistantMessage()
	require.True(t, ok)
	assert.Equal(t, "ready", m.Text)
}
