package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

const (
	IngestingStatus = "Uploading and processing document..."
	ReadyMessage    = "Document processed successfully. You can now ask questions about it."
)

type Message struct {
	ID        string
	Sender    Sender
	Text      string
	Sources   []string
	CreatedAt time.Time
}

func NewMessage(sender Sender, text string, sources []string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Sources:   cloneStrings(sources),
		CreatedAt: time.Now().UTC(),
	}
}

// State is the client-side record of one document conversation. Mutations are
// total; sequencing rules belong to the caller.
type State struct {
	ID                  string
	DocumentName        string
	DocumentReady       bool
	Transcript          []Message
	IngestionInFlight   bool
	QueryInFlight       bool
	SuggestionsInFlight bool
	StatusText          string
	Suggestions         []string
}

func New() *State {
	return &State{ID: uuid.NewString()}
}

func (s *State) BeginIngestion(documentName string) {
	s.IngestionInFlight = true
	s.DocumentName = documentName
	s.StatusText = IngestingStatus
}

func (s *State) CompleteIngestion(statusText string) {
	s.IngestionInFlight = false
	s.DocumentReady = true
	s.StatusText = statusText
}

// FailIngestion leaves readiness and the transcript untouched.
func (s *State) FailIngestion() {
	s.IngestionInFlight = false
	if !s.DocumentReady {
		s.DocumentName = ""
	}
	s.StatusText = ""
}

// Announce appends an assistant message that cites no sources.
func (s *State) Announce(text string) Message {
	m := NewMessage(SenderAssistant, text, nil)
	s.Transcript = append(s.Transcript, m)
	return m
}

func (s *State) AppendUserMessage(text string) Message {
	m := NewMessage(SenderUser, text, nil)
	s.Transcript = append(s.Transcript, m)
	return m
}

func (s *State) BeginQuery() {
	s.QueryInFlight = true
}

func (s *State) CompleteQuery(m Message) {
	s.QueryInFlight = false
	s.Transcript = append(s.Transcript, m)
}

func (s *State) FailQuery() {
	s.QueryInFlight = false
}

func (s *State) BeginSuggestions() {
	s.SuggestionsInFlight = true
	s.Suggestions = nil
}

func (s *State) CompleteSuggestions(questions []string) {
	s.SuggestionsInFlight = false
	s.Suggestions = s.Suggestions[:0]
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			s.Suggestions = append(s.Suggestions, q)
		}
	}
}

func (s *State) FailSuggestions() {
	s.SuggestionsInFlight = false
	s.Suggestions = nil
}

// Snapshot returns a deep copy safe to hand to the presentation layer.
func (s *State) Snapshot() State {
	out := *s
	out.Transcript = make([]Message, len(s.Transcript))
	for i, m := range s.Transcript {
		m.Sources = cloneStrings(m.Sources)
		out.Transcript[i] = m
	}
	out.Suggestions = cloneStrings(s.Suggestions)
	return out
}

func (s State) LastAssistantMessage() (Message, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Sender == SenderAssistant {
			return s.Transcript[i], true
		}
	}
	return Message{}, false
}

// cloneStrings keeps the nil/empty distinction of src.
func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append(make([]string, 0, len(src)), src...)
}
