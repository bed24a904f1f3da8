// Package docservice is the application facade used by the HTTP API, the
// MCP server and the CLI. It scans the vault, reports repository state and
// serializes publish/unpublish transitions.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/assets"
	"github.com/starford/dispatch/internal/drift"
	"github.com/starford/dispatch/internal/gitrepo"
	"github.com/starford/dispatch/internal/journal"
	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/publish"
	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/sse"
	"github.com/starford/dispatch/internal/storage"
	"github.com/starford/dispatch/internal/vault"
)

// Publisher receives live events. *sse.Broker satisfies it.
type Publisher interface {
	Publish(evt sse.Event)
	PublishDocumentEvent(kind, tree, path string)
}

// DiffResult compares a vault document with its published copy.
type DiffResult struct {
	Slug         string `json:"slug"`
	SourcePath   string `json:"source_path"`
	Published    bool   `json:"published"`
	PublishedURL string `json:"published_url,omitempty"`
	Differs      bool   `json:"differs"`
	Diff         string `json:"diff,omitempty"`
}

// History lists what is known about a slug's publish history.
type History struct {
	Slug        string              `json:"slug,omitempty"`
	Transitions []models.Transition `json:"transitions"`
	Commits     []models.Commit     `json:"commits"`
}

// Service coordinates the scanner, the repository and the pipeline.
type Service struct {
	vaultFS  storage.Provider
	repoFS   storage.Provider
	scanner  *vault.Scanner
	locator  *site.Locator
	repo     *gitrepo.Repo
	pipeline *publish.Pipeline
	journal  journal.Store
	events   Publisher
	assets   *assets.Extractor
	tree     vault.Options
	logger   *slog.Logger

	// transition is held for the duration of a publish or unpublish.
	transition sync.Mutex
}

// Deps groups the collaborators of a Service. Journal and Events may be nil.
type Deps struct {
	VaultFS  storage.Provider
	RepoFS   storage.Provider
	Scanner  *vault.Scanner
	Locator  *site.Locator
	Repo     *gitrepo.Repo
	Pipeline *publish.Pipeline
	Journal  journal.Store
	Events   Publisher
	Assets   *assets.Extractor
	Tree     vault.Options
	Logger   *slog.Logger
}

// New creates a Service.
func New(d Deps) *Service {
	x := d.Assets
	if x == nil {
		x = assets.NewExtractor("")
	}
	return &Service{
		vaultFS:  d.VaultFS,
		repoFS:   d.RepoFS,
		scanner:  d.Scanner,
		locator:  d.Locator,
		repo:     d.Repo,
		pipeline: d.Pipeline,
		journal:  d.Journal,
		events:   d.Events,
		assets:   x,
		tree:     d.Tree,
		logger:   d.Logger,
	}
}

// Scan returns the current document descriptors.
func (s *Service) Scan(ctx context.Context, limit int) ([]models.Document, error) {
	return s.scanner.Scan(ctx, limit)
}

// Document returns the descriptor of one vault-relative path.
func (s *Service) Document(_ context.Context, relPath string) (models.Document, error) {
	return s.scanner.Document(relPath)
}

// Find returns the newest scanned document with the given slug.
func (s *Service) Find(ctx context.Context, slug string) (models.Document, error) {
	docs, err := s.scanner.Scan(ctx, 0)
	if err != nil {
		return models.Document{}, err
	}
	for _, d := range docs {
		if d.Slug == slug {
			return d, nil
		}
	}
	return models.Document{}, fmt.Errorf("docservice: document %q: %w", slug, apperr.ErrNotFound)
}

// Diff compares the vault copy of slug with its published copy.
func (s *Service) Diff(ctx context.Context, slug string) (DiffResult, error) {
	doc, err := s.Find(ctx, slug)
	if err != nil {
		return DiffResult{}, err
	}
	rel, err := s.vaultFS.Rel(doc.Path)
	if err != nil {
		return DiffResult{}, fmt.Errorf("docservice: diff: %w", err)
	}
	res := DiffResult{Slug: slug, SourcePath: filepath.ToSlash(rel)}

	pub, ok := s.locator.Locate(slug)
	if !ok {
		return res, nil
	}
	data, err := s.vaultFS.Read(rel)
	if err != nil {
		return DiffResult{}, apperr.Input("diff", "source document is not readable", err)
	}
	res.Published = true
	res.PublishedURL = pub.URL
	res.Differs = drift.Differs(string(data), pub.Content)
	if res.Differs {
		if res.Diff, err = drift.Unified(slug, string(data), pub.Content); err != nil {
			return DiffResult{}, fmt.Errorf("docservice: diff: %w", err)
		}
	}
	return res, nil
}

// AddTag adds tag to the document at relPath and returns the resulting tags.
func (s *Service) AddTag(_ context.Context, relPath, tag string) ([]string, error) {
	tags, err := vault.AddTag(s.vaultFS, relPath, tag)
	if err != nil {
		return nil, err
	}
	s.logger.Info("docservice: tag added", slog.String("path", relPath), slog.String("tag", tag))
	s.DocumentChanged(sse.Updated, "vault", relPath)
	return tags, nil
}

// Status reports the publication repository state.
func (s *Service) Status(ctx context.Context) models.RepositoryState {
	return s.repo.Status(ctx)
}

// Publish publishes one document. Only one transition runs at a time;
// concurrent callers get apperr.ErrBusy.
func (s *Service) Publish(ctx context.Context, sourcePath, slug string) (publish.Result, error) {
	if !s.transition.TryLock() {
		return publish.Result{}, fmt.Errorf("docservice: publish %q: %w", slug, apperr.ErrBusy)
	}
	defer s.transition.Unlock()

	res, err := s.pipeline.Publish(ctx, sourcePath, slug)
	s.report(models.OpPublish, slug, res, err)
	return res, err
}

// Unpublish moves a published document back to drafts. It shares the
// transition lock with Publish.
func (s *Service) Unpublish(ctx context.Context, slug string) (publish.Result, error) {
	if !s.transition.TryLock() {
		return publish.Result{}, fmt.Errorf("docservice: unpublish %q: %w", slug, apperr.ErrBusy)
	}
	defer s.transition.Unlock()

	res, err := s.pipeline.Unpublish(ctx, slug)
	s.report(models.OpUnpublish, slug, res, err)
	return res, err
}

// History returns journal records and repository commits for slug. An
// empty slug returns the most recent transitions of any document.
func (s *Service) History(_ context.Context, slug string, limit int) (History, error) {
	h := History{Slug: slug, Transitions: []models.Transition{}, Commits: []models.Commit{}}
	if s.journal != nil {
		var (
			recs []models.Transition
			err  error
		)
		if slug == "" {
			recs, err = s.journal.Recent(limit)
		} else {
			recs, err = s.journal.BySlug(slug, limit)
		}
		if err != nil {
			return History{}, fmt.Errorf("docservice: history: %w", err)
		}
		h.Transitions = recs
	}
	if slug == "" {
		return h, nil
	}

	rel := s.locator.DraftPath(slug)
	if pub, ok := s.locator.Locate(slug); ok {
		rel = pub.RelPath
	}
	commits, err := gitrepo.FileHistory(s.repo.Path(), rel, limit)
	if err != nil {
		s.logger.Warn("docservice: repository history unavailable", slog.String("slug", slug), slog.String("error", err.Error()))
		return h, nil
	}
	h.Commits = commits
	return h, nil
}

// Assets reports CDN asset usage across the publishable vault tree and the
// publication content root.
func (s *Service) Assets(ctx context.Context) (assets.Report, error) {
	roots := []assets.Root{{Name: "vault", Store: s.vaultFS, Skip: s.tree.ExcludedDirs}}
	contentRoot := s.locator.Layout().ContentRoot
	if _, err := s.repoFS.List(contentRoot); err == nil {
		roots = append(roots, assets.Root{Name: "site", Store: s.repoFS, Dir: contentRoot})
	}
	return assets.Scan(ctx, s.assets, roots...)
}

// DocumentChanged forwards a watcher change to subscribers.
func (s *Service) DocumentChanged(kind, tree, path string) {
	if s.events != nil {
		s.events.PublishDocumentEvent(kind, tree, filepath.ToSlash(path))
	}
}

func (s *Service) report(op models.Operation, slug string, res publish.Result, err error) {
	if err != nil {
		data := map[string]string{"op": string(op), "slug": slug, "error": err.Error()}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			data["step"] = ae.Step
			data["kind"] = ae.Kind.String()
		}
		s.emit(sse.Event{Type: sse.EventTransitionFailed, Data: data})
		return
	}
	typ := sse.EventPublished
	if op == models.OpUnpublish {
		typ = sse.EventUnpublished
	}
	s.emit(sse.Event{Type: typ, Data: res})
}

func (s *Service) emit(evt sse.Event) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}
