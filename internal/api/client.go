package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	IngestPath = "/upload-document/"
	QueryPath  = "/query/"
)

type ingestResponse struct {
	Message string `json:"message" validate:"required"`
}

type querySource struct {
	PageContent string `json:"page_content"`
}

type queryResponse struct {
	Answer  string        `json:"answer" validate:"required"`
	Sources []querySource `json:"sources"`
}

type IngestReceipt struct {
	Message string
}

type QueryResult struct {
	Answer  string
	Sources []string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	log        *zap.Logger
}

// NewClient targets the ingestion service at baseURL. A zero timeout leaves
// requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(),
		log:        log,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Ingest(ctx context.Context, filename, contentType string, body io.Reader) (IngestReceipt, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return IngestReceipt{}, fmt.Errorf("create multipart part: %w", err)
	}
	n, err := io.Copy(part, body)
	if err != nil {
		return IngestReceipt{}, fmt.Errorf("read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return IngestReceipt{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+IngestPath, &buf)
	if err != nil {
		return IngestReceipt{}, fmt.Errorf("create ingest request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	status, raw, err := c.do(req)
	if err != nil {
		return IngestReceipt{}, &TransportError{Op: "ingest", Err: err}
	}
	c.log.Info("ingest response", zap.String("file", filename), zap.Int64("bytes", n), zap.Int("status", status), zap.Duration("elapsed", time.Since(start)))

	if status < 200 || status > 299 {
		return IngestReceipt{}, &IngestionError{StatusCode: status, Detail: parseDetail(raw)}
	}
	var out ingestResponse
	if err := c.decode(raw, &out); err != nil {
		return IngestReceipt{}, &IngestionError{StatusCode: status, Err: err}
	}
	return IngestReceipt{Message: out.Message}, nil
}

func (c *Client) Query(ctx context.Context, question string) (QueryResult, error) {
	payload, err := json.Marshal(map[string]string{"query": question})
	if err != nil {
		return QueryResult{}, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+QueryPath, bytes.NewReader(payload))
	if err != nil {
		return QueryResult{}, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	status, raw, err := c.do(req)
	if err != nil {
		return QueryResult{}, &TransportError{Op: "query", Err: err}
	}
	c.log.Info("query response", zap.Int("status", status), zap.Duration("elapsed", time.Since(start)))

	if status < 200 || status > 299 {
		return QueryResult{}, &QueryError{StatusCode: status, Detail: parseDetail(raw)}
	}
	var out queryResponse
	if err := c.decode(raw, &out); err != nil {
		return QueryResult{}, &QueryError{StatusCode: status, Err: err}
	}

	sources := make([]string, 0, len(out.Sources))
	for _, s := range out.Sources {
		if strings.TrimSpace(s.PageContent) == "" {
			continue
		}
		sources = append(sources, s.PageContent)
	}
	return QueryResult{Answer: out.Answer, Sources: sources}, nil
}

// HealthCheck fetches the service root and returns its greeting, if any.
func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("create health check request: %w", err)
	}
	status, raw, err := c.do(req)
	if err != nil {
		return "", &TransportError{Op: "health", Err: err}
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("service returned status %d", status)
	}
	var greeting struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &greeting)
	return greeting.Message, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) decode(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := c.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// parseDetail reads a FastAPI-style detail: a string, or a list of {msg} items.
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
