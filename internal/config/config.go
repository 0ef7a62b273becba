package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultGlamourStyle = "dark"
	DefaultServiceURL   = "http://localhost:8000"
	DefaultOllamaURL    = "http://localhost:11434"
	DefaultModel        = "phi3:mini"
	DefaultGeminiModel  = "gemini-1.5-flash"
	DefaultContentLimit = 24000

	QueryModeRemote = "remote"
	QueryModeLocal  = "local"
)

type AppConfig struct {
	ServiceURL   string        `validate:"required,url"`
	QueryMode    string        `validate:"oneof=remote local"`
	Generator    string        `validate:"oneof=none ollama gemini"`
	OllamaURL    string        `validate:"omitempty,url"`
	Model        string        `validate:"required_if=Generator ollama"`
	GeminiAPIKey string        `validate:"required_if=Generator gemini"`
	GeminiModel  string        `validate:"required_if=Generator gemini"`
	HTTPTimeout  time.Duration `validate:"gte=0"`
	ContentLimit int           `validate:"gte=0"`
	LogPath      string
	ExportDir    string
	Document     string
	Questions    []string
	Debug        bool
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse resolves configuration from defaults, a .env file in the working
// directory, the environment and finally args.
func Parse(args []string) (AppConfig, error) {
	var cfg AppConfig

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	defaultLog, err := DefaultLogPath()
	if err != nil {
		return cfg, err
	}
	timeout, err := envDuration("SYNAPSE_HTTP_TIMEOUT", 0)
	if err != nil {
		return cfg, err
	}

	flags := flag.NewFlagSet("synapse", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&cfg.ServiceURL, "service-url", getEnvOrDefault("SYNAPSE_SERVICE_URL", DefaultServiceURL), "base URL of the document ingestion and query service")
	flags.StringVar(&cfg.QueryMode, "query-mode", getEnvOrDefault("SYNAPSE_QUERY_MODE", QueryModeRemote), "remote (document service) or local (generator over extracted text)")
	flags.StringVar(&cfg.Generator, "generator", getEnvOrDefault("SYNAPSE_GENERATOR", "none"), "generation backend: none, ollama or gemini")
	flags.StringVar(&cfg.OllamaURL, "ollama-url", getEnvOrDefault("OLLAMA_HOST", DefaultOllamaURL), "Ollama base URL")
	flags.StringVar(&cfg.Model, "model", getEnvOrDefault("SYNAPSE_MODEL", DefaultModel), "Ollama model name")
	flags.StringVar(&cfg.GeminiAPIKey, "gemini-api-key", os.Getenv("GEMINI_API_KEY"), "Gemini API key")
	flags.StringVar(&cfg.GeminiModel, "gemini-model", getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel), "Gemini model name")
	flags.DurationVar(&cfg.HTTPTimeout, "http-timeout", timeout, "per-request HTTP timeout (0 disables)")
	flags.IntVar(&cfg.ContentLimit, "content-limit", DefaultContentLimit, "maximum document characters sent to the generator")
	flags.StringVar(&cfg.LogPath, "log-file", getEnvOrDefault("SYNAPSE_LOG_FILE", defaultLog), "log file path (empty disables logging)")
	flags.StringVar(&cfg.ExportDir, "export-dir", os.Getenv("SYNAPSE_EXPORT_DIR"), "override export output directory")
	flags.StringVar(&cfg.Document, "doc", "", "document to ingest at start-up")
	flags.Var((*stringList)(&cfg.Questions), "ask", "question to ask without the UI (repeatable, requires -doc)")
	flags.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	cfg.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	cfg.QueryMode = strings.ToLower(strings.TrimSpace(cfg.QueryMode))
	cfg.Generator = strings.ToLower(strings.TrimSpace(cfg.Generator))
	if cfg.Document != "" {
		cfg.Document = filepath.Clean(cfg.Document)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q check (value %q)", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value()))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Generator == "ollama" && c.OllamaURL == "" {
		return errors.New("invalid config: -ollama-url is required for the ollama generator")
	}
	if c.QueryMode == QueryModeLocal && c.Generator == "none" {
		return errors.New("invalid config: local query mode requires -generator ollama or gemini")
	}
	if len(c.Questions) > 0 && c.Document == "" {
		return errors.New("invalid config: -ask requires -doc")
	}
	return nil
}

// Headless reports whether the run should skip the terminal UI.
func (c AppConfig) Headless() bool {
	return c.Document != "" && len(c.Questions) > 0
}

func DefaultLogPath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "synapse", "synapse.log"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "synapse", "synapse.log"), nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %q is not a duration", key, raw)
	}
	return time.Duration(secs) * time.Second, nil
}
