package index

type Hit struct {
	MessageID string
	Ordinal   int
	Sender    string
	Matches   int
	InSources bool
}
