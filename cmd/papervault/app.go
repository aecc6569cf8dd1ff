package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/arxiv"
	"github.com/DeuxFois/papervault/internal/chat"
	"github.com/DeuxFois/papervault/internal/config"
	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/llm"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/settings"
	"github.com/DeuxFois/papervault/internal/vault"
)

// app holds the components shared by every subcommand. The LLM client and
// the arXiv client are built on demand.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	closer io.Closer

	vault    *vault.Vault
	settings *settings.Manager
	doc      settings.Document
}

// openApp resolves configuration, opens the log sink, the vault and the
// settings document. With fileLog set, logs go to a file even when none was
// configured.
func openApp(ctx context.Context, overrides config.Overrides, stderr io.Writer, fileLog bool) (*app, error) {
	cfg := config.Load()
	cfg.Apply(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logFile := cfg.LogFile
	if logFile == "" && fileLog {
		logFile = cfg.DefaultLogFile()
	}
	logger, closer, err := logging.New(logging.Options{File: logFile, Verbose: cfg.Verbose, Writer: stderr})
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration resolved", "config", cfg.String())

	v, err := vault.Open(cfg.VaultPath, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	manager := settings.NewManager(v.FS(), vault.Clean(cfg.SettingsPath), logger)
	doc, err := manager.Load(ctx)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closer: closer, vault: v, settings: manager, doc: doc}
	a.applySettings()
	return a, nil
}

// applySettings lets values stored in the settings document win over the
// environment. None of them has a flag.
func (a *app) applySettings() {
	p := a.doc.Papers
	if p.Root != "" {
		a.cfg.PapersRoot = p.Root
	}
	if p.IndexFile != "" {
		a.cfg.IndexFile = p.IndexFile
	}
	if p.RebuildDelayMs > 0 {
		a.cfg.RebuildDelay = time.Duration(p.RebuildDelayMs) * time.Millisecond
	}
	if a.doc.Feeds.Folder != "" {
		a.cfg.FeedsFolder = a.doc.Feeds.Folder
	}
	if a.doc.Chat.MaxTokens > 0 {
		a.cfg.MaxTokens = a.doc.Chat.MaxTokens
	}
}

func (a *app) Close() error {
	return a.closer.Close()
}

func (a *app) synchronizer(onRebuild func(papers.RebuildResult)) *papers.Synchronizer {
	return papers.NewSynchronizer(a.vault, papers.Options{
		Root:         a.cfg.PapersRoot,
		IndexFile:    a.cfg.IndexFile,
		RebuildDelay: a.cfg.RebuildDelay,
		OnRebuild:    onRebuild,
	}, a.logger)
}

func (a *app) store(opts discussions.Options) *discussions.Store {
	opts.MergePolicy = discussions.ParseMergePolicy(a.doc.Chat.MergePolicy)
	return discussions.NewStore(a.settings, opts, a.logger)
}

// loadStore builds the store and merges the persisted discussions into it.
func (a *app) loadStore(ctx context.Context, opts discussions.Options) (*discussions.Store, error) {
	s := a.store(opts)
	if err := s.LoadAll(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) llmClient() (llm.Client, error) {
	return llm.NewFromEnv(llm.Config{
		Provider:   a.cfg.LLMProvider,
		Model:      a.cfg.LLMModel,
		Endpoint:   a.cfg.LLMEndpoint,
		APIKey:     a.cfg.LLMAPIKey,
		HTTPClient: &http.Client{Timeout: a.cfg.LLMTimeout},
	})
}

func (a *app) arxivClient() *arxiv.Client {
	return &arxiv.Client{
		BaseURL:    a.cfg.ArxivBaseURL,
		PDFBaseURL: a.cfg.ArxivPDFURL,
		Cache:      arxiv.NewPDFCache(a.vault.FS(), vault.Clean(a.cfg.CacheDir), nil, a.logger),
	}
}

func (a *app) panel(store *discussions.Store, index *papers.Synchronizer, client llm.Client) *chat.Panel {
	return chat.NewPanel(store, a.vault, index, client, chat.Options{
		SystemPrompt: a.doc.Chat.SystemPrompt,
		HistoryTurns: a.doc.Chat.HistoryTurns,
		MaxTokens:    a.cfg.MaxTokens,
	}, a.logger)
}
