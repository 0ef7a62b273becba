package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"synapse/internal/api"
	"synapse/internal/config"
	"synapse/internal/export"
	"synapse/internal/flow"
	"synapse/internal/index"
	"synapse/internal/llm"
	"synapse/internal/logging"
	"synapse/internal/orchestrator"
	"synapse/internal/ui"
)

const usage = `usage: synapse [flags]

  -doc FILE        document to ingest at start-up (.pdf .txt .md .docx)
  -ask QUESTION    ask without the UI; repeatable, requires -doc
  -service-url URL document service (default http://localhost:8000)
  -query-mode M    remote or local
  -generator G     none, ollama or gemini (suggestions and local answers)
  -ollama-url URL  -model NAME  -gemini-api-key KEY  -gemini-model NAME
  -http-timeout D  -content-limit N  -log-file PATH  -export-dir DIR  -debug`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "synapse:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Println(usage)
		return nil
	}
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.LogPath, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := llm.New(ctx, llm.Options{
		Generator:    cfg.Generator,
		OllamaURL:    cfg.OllamaURL,
		Model:        cfg.Model,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		Timeout:      cfg.HTTPTimeout,
	}, log)
	if err != nil {
		return err
	}
	var invoker *flow.Invoker
	if backend != nil {
		defer func() { _ = backend.Close() }()
		invoker = flow.NewInvoker(backend, log)
	}

	client := api.NewClient(cfg.ServiceURL, cfg.HTTPTimeout, log)
	orch := buildOrchestrator(ctx, cfg, client, invoker, log)
	checkServices(ctx, cfg, client, backend, log)

	log.Info("synapse starting",
		zap.String("query_mode", cfg.QueryMode),
		zap.String("generator", cfg.Generator),
		zap.Bool("headless", cfg.Headless()),
	)

	if cfg.Headless() {
		return runHeadless(orch, cfg.Document, cfg.Questions, os.Stdout)
	}

	idx, err := index.New()
	if err != nil {
		return err
	}
	defer idx.Close()
	exp, err := export.New(cfg.ExportDir)
	if err != nil {
		return err
	}

	p := tea.NewProgram(ui.NewModel(cfg, orch, idx, exp, log), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func buildOrchestrator(ctx context.Context, cfg config.AppConfig, client *api.Client, invoker *flow.Invoker, log *zap.Logger) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{orchestrator.WithContext(ctx), orchestrator.WithLogger(log)}
	// suggestions cost a generation round trip nobody reads without the UI
	if invoker != nil && !cfg.Headless() {
		opts = append(opts, orchestrator.WithSuggester(orchestrator.NewFlowSuggester(invoker)))
	}

	if cfg.QueryMode == config.QueryModeLocal {
		local := orchestrator.NewLocalBackend(invoker, cfg.ContentLimit)
		return orchestrator.New(local, local, opts...)
	}

	var remoteOpts []orchestrator.RemoteOption
	if invoker != nil {
		remoteOpts = append(remoteOpts, orchestrator.WithLocalContent(cfg.ContentLimit))
	}
	remote := orchestrator.NewRemoteBackend(client, log, remoteOpts...)
	return orchestrator.New(remote, remote, opts...)
}

// checkServices only warns; the user may start the services after synapse.
func checkServices(ctx context.Context, cfg config.AppConfig, client *api.Client, backend llm.Backend, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if cfg.QueryMode == config.QueryModeRemote {
		if msg, err := client.HealthCheck(ctx); err != nil {
			log.Warn("document service unreachable", zap.String("url", cfg.ServiceURL), zap.Error(err))
			fmt.Fprintf(os.Stderr, "warning: document service at %s is not reachable: %v\n", cfg.ServiceURL, err)
		} else {
			log.Info("document service reachable", zap.String("url", cfg.ServiceURL), zap.String("message", msg))
		}
	}
	if ob, ok := backend.(*llm.OllamaBackend); ok {
		if err := ob.HealthCheck(ctx); err != nil {
			log.Warn("ollama unreachable", zap.String("url", cfg.OllamaURL), zap.Error(err))
			fmt.Fprintf(os.Stderr, "warning: Ollama at %s is not reachable: %v\n", cfg.OllamaURL, err)
		}
	}
}
