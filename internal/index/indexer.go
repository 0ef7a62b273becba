package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"synapse/internal/session"
)

const (
	KindText   = "text"
	KindSource = "source"
)

// Indexer is a per-session full-text index over the conversation. It lives in
// memory and is discarded with the session.
type Indexer struct {
	db         *sql.DB
	ftsEnabled bool
	indexed    map[string]struct{}
	mu         sync.Mutex
}

func New() (*Indexer, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	i := &Indexer{db: db, indexed: map[string]struct{}{}}
	if err := i.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return i, nil
}

func (i *Indexer) Close() error {
	return i.db.Close()
}

func (i *Indexer) FTSEnabled() bool { return i.ftsEnabled }

func (i *Indexer) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_message_id ON entries(message_id);`,
	}
	for _, stmt := range stmts {
		if _, err := i.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return i.ensureFTSTable()
}

func (i *Indexer) ensureFTSTable() error {
	_, err := i.db.Exec(`CREATE VIRTUAL TABLE entries_fts USING fts5(
		message_id UNINDEXED,
		kind UNINDEXED,
		content
	);`)
	if err == nil {
		i.ftsEnabled = true
		return nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "no such module: fts5") {
		return fmt.Errorf("create entries_fts: %w", err)
	}
	// sqlite built without FTS5: search falls back to LIKE over entries
	i.ftsEnabled = false
	return nil
}

// Sync indexes transcript messages not seen before. Ordinals are transcript
// positions, so Sync must always be given the full transcript.
func (i *Indexer) Sync(ctx context.Context, transcript []session.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	pending := make([]int, 0, 2)
	for pos, m := range transcript {
		if _, ok := i.indexed[m.ID]; !ok {
			pending = append(pending, pos)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries(message_id, ordinal, sender, kind, content)
		VALUES(?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer insertStmt.Close()

	var insertFTSStmt *sql.Stmt
	if i.ftsEnabled {
		insertFTSStmt, err = tx.PrepareContext(ctx, `
			INSERT INTO entries_fts(rowid, message_id, kind, content)
			VALUES(?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare fts insert: %w", err)
		}
		defer insertFTSStmt.Close()
	}

	for _, pos := range pending {
		m := transcript[pos]
		for _, e := range entriesFor(m) {
			res, err := insertStmt.ExecContext(ctx, m.ID, pos, string(m.Sender), e.kind, e.content)
			if err != nil {
				return fmt.Errorf("insert entry for %s: %w", m.ID, err)
			}
			if insertFTSStmt == nil {
				continue
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("entry row id: %w", err)
			}
			if _, err := insertFTSStmt.ExecContext(ctx, rowID, m.ID, e.kind, e.content); err != nil {
				return fmt.Errorf("insert fts entry for %s: %w", m.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	for _, pos := range pending {
		i.indexed[transcript[pos].ID] = struct{}{}
	}
	return nil
}

type entry struct {
	kind    string
	content string
}

func entriesFor(m session.Message) []entry {
	out := make([]entry, 0, 1+len(m.Sources))
	if strings.TrimSpace(m.Text) != "" {
		out = append(out, entry{kind: KindText, content: m.Text})
	}
	for _, src := range m.Sources {
		if strings.TrimSpace(src) != "" {
			out = append(out, entry{kind: KindSource, content: src})
		}
	}
	return out
}

// Search returns matching messages in transcript order. Every term must
// appear in the same entry.
func (i *Indexer) Search(query string, limit int) ([]Hit, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(tokenizeSearchTerms(query)) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := i.searchRows(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Hit, 0, 16)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.MessageID, &h.Ordinal, &h.Sender, &h.Matches, &h.InSources); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

func (i *Indexer) searchRows(query string, limit int) (*sql.Rows, error) {
	if i.ftsEnabled {
		rows, err := i.searchRowsFTS(query, limit)
		if err == nil {
			return rows, nil
		}
		fallback, fbErr := i.searchRowsLike(query, limit)
		if fbErr != nil {
			return nil, fmt.Errorf("transcript search (fts and fallback failed): fts=%w, fallback=%v", err, fbErr)
		}
		return fallback, nil
	}
	return i.searchRowsLike(query, limit)
}

func (i *Indexer) searchRowsFTS(query string, limit int) (*sql.Rows, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, errors.New("empty fts query")
	}
	rows, err := i.db.Query(`
		SELECT e.message_id, MIN(e.ordinal), MIN(e.sender), COUNT(*), MAX(e.kind = 'source')
		FROM entries_fts f
		JOIN entries e ON e.id = f.rowid
		WHERE entries_fts MATCH ?
		GROUP BY e.message_id
		ORDER BY MIN(e.ordinal)
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query failed: %w", err)
	}
	return rows, nil
}

func (i *Indexer) searchRowsLike(query string, limit int) (*sql.Rows, error) {
	terms := tokenizeSearchTerms(query)

	var b strings.Builder
	b.WriteString(`
		SELECT message_id, MIN(ordinal), MIN(sender), COUNT(*), MAX(kind = 'source')
		FROM entries
		WHERE `)
	args := make([]any, 0, len(terms)+1)
	for idx, term := range terms {
		if idx > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("LOWER(content) LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(term)+"%")
	}
	b.WriteString(`
		GROUP BY message_id
		ORDER BY MIN(ordinal)
		LIMIT ?
	`)
	args = append(args, limit)
	rows, err := i.db.Query(b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("like query failed: %w", err)
	}
	return rows, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func buildFTSQuery(raw string) string {
	parts := tokenizeSearchTerms(raw)
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(p, `"`, "")
		if p == "" {
			continue
		}
		quoted = append(quoted, fmt.Sprintf(`"%s"*`, p))
	}
	return strings.Join(quoted, " AND ")
}

// Terms exposes the normalized search terms, used for highlighting.
func Terms(raw string) []string {
	return tokenizeSearchTerms(raw)
}

func tokenizeSearchTerms(raw string) []string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "`\"'.,:;!?()[]{}<>|")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
