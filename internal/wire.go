package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/dispatch/internal/assets"
	"github.com/starford/dispatch/internal/docservice"
	"github.com/starford/dispatch/internal/gitrepo"
	"github.com/starford/dispatch/internal/journal"
	"github.com/starford/dispatch/internal/metrics"
	"github.com/starford/dispatch/internal/publish"
	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/sse"
	"github.com/starford/dispatch/internal/storage"
	"github.com/starford/dispatch/internal/vault"
)

// Runtime owns the long-lived components shared by the server, the MCP
// server and the one-shot CLI commands. Close releases them.
type Runtime struct {
	Config   *Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Broker   *sse.Broker
	Journal  *journal.Journal
	VaultFS  *storage.FS
	RepoFS   *storage.FS
	Repo     *gitrepo.Repo
	Service  *docservice.Service
}

// NewRuntime wires every component from cfg. Missing vault or repository
// directories are not fatal here; operations on them fail with input errors.
func NewRuntime(cfg *Config, logger *slog.Logger) (*Runtime, error) {
	vaultFS, err := storage.Open(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init vault storage: %w", err)
	}
	repoFS, err := storage.Open(cfg.Site.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("init site storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j, err := journal.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	tree := cfg.ScanOptions()
	locator := site.NewLocator(repoFS.Root(), cfg.Site.Layout())
	repo := gitrepo.New(repoFS.Root(), cfg.Site.ContentRoot, gitrepo.NewCLI(cfg.Git.Binary, rec), logger)
	pipeline := publish.New(vaultFS, repoFS, locator, repo, tree, logger,
		publish.WithJournal(j),
		publish.WithMetrics(rec),
	)
	broker := sse.NewBroker(2 * time.Second)

	svc := docservice.New(docservice.Deps{
		VaultFS:  vaultFS,
		RepoFS:   repoFS,
		Scanner:  vault.NewScanner(vaultFS, locator, tree, logger, rec),
		Locator:  locator,
		Repo:     repo,
		Pipeline: pipeline,
		Journal:  j,
		Events:   broker,
		Assets:   assets.NewExtractor(cfg.Site.CDNHost),
		Tree:     tree,
		Logger:   logger,
	})

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Broker:   broker,
		Journal:  j,
		VaultFS:  vaultFS,
		RepoFS:   repoFS,
		Repo:     repo,
		Service:  svc,
	}, nil
}

// Close stops the broker and closes the journal.
func (rt *Runtime) Close() error {
	rt.Broker.Close()
	if err := rt.Journal.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}
