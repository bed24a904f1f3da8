// Package publish moves documents between the vault and the publication
// repository: publish copies a document into this year's directory and
// unpublish moves a published copy back into drafts. Each transition ends
// with commit, pull --rebase and push.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/checksum"
	"github.com/starford/dispatch/internal/gitrepo"
	"github.com/starford/dispatch/internal/journal"
	"github.com/starford/dispatch/internal/metrics"
	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/storage"
	"github.com/starford/dispatch/internal/vault"
)

// Pipeline steps, used in errors, logs and metrics.
const (
	StepValidate    = "validate"
	StepPreflight   = "preflight"
	StepMaterialize = "materialize"
	StepStage       = "stage"
	StepCommit      = "commit"
	StepSync        = "sync"
	StepPush        = "push"
)

var benignCommit = []string{"nothing to commit", "nothing added to commit", "no changes added to commit"}

var benignPush = []string{"Everything up-to-date", "up to date"}

// Result describes a completed transition.
type Result struct {
	Slug       string `json:"slug"`
	TargetPath string `json:"target_path"`
	URL        string `json:"url,omitempty"`
	Committed  bool   `json:"committed"`
}

// Pipeline performs publish and unpublish transitions. Calls must be
// serialized by the caller; the working copy is a single shared resource.
type Pipeline struct {
	vault   storage.Provider
	repoFS  storage.Provider
	locator *site.Locator
	repo    *gitrepo.Repo
	tree    vault.Options
	journal journal.Store
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithJournal records every transition in j.
func WithJournal(j journal.Store) Option { return func(p *Pipeline) { p.journal = j } }

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option { return func(p *Pipeline) { p.metrics = metrics.OrNoop(r) } }

// WithClock overrides the time source used to pick the year directory.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New creates a Pipeline. vaultFS is rooted at the vault and repoFS at the
// publication repository working copy.
func New(vaultFS, repoFS storage.Provider, locator *site.Locator, repo *gitrepo.Repo, tree vault.Options, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		vault:   vaultFS,
		repoFS:  repoFS,
		locator: locator,
		repo:    repo,
		tree:    tree,
		metrics: metrics.NoopRecorder{},
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish copies the vault document at sourcePath into
// <content-root>/<year>/<slug>.md, commits, syncs and pushes it, and returns
// the public URL. sourcePath may be absolute or relative to the vault root.
func (p *Pipeline) Publish(ctx context.Context, sourcePath, slug string) (res Result, err error) {
	rec := p.begin(models.OpPublish, slug)
	rec.SourcePath = sourcePath
	defer func() { p.finish(rec, res, err) }()

	if err := validateSlug(slug); err != nil {
		return Result{}, err
	}
	rel, err := p.resolveSource(sourcePath)
	if err != nil {
		return Result{}, err
	}
	rec.SourcePath = rel
	content, err := p.vault.Read(rel)
	if err != nil {
		return Result{}, apperr.Input(StepValidate, "source document is not readable", err)
	}
	rec.Checksum = checksum.Body(string(content))

	if err := p.step(ctx, models.OpPublish, StepPreflight, p.repo.Preflight); err != nil {
		return Result{}, err
	}

	// From here on the transition runs to completion or failure.
	ctx = context.WithoutCancel(ctx)

	year := strconv.Itoa(p.now().UTC().Year())
	target := p.locator.PublishedPath(year, slug)
	rec.TargetPath = target
	err = p.step(ctx, models.OpPublish, StepMaterialize, func(context.Context) error {
		if err := p.repoFS.Write(target, content); err != nil {
			return apperr.Input(StepMaterialize, "copy into publication repository failed", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("publish: materialized",
		slog.String("slug", slug),
		slog.String("source", rel),
		slog.String("target", target),
		slog.String("checksum", checksum.Short(rec.Checksum)),
	)

	committed, err := p.sync(ctx, models.OpPublish, "Publish: "+slug, []string{"--", target}, []string{target})
	if err != nil {
		return Result{}, err
	}
	return Result{Slug: slug, TargetPath: target, URL: p.locator.URL(year, slug), Committed: committed}, nil
}

// Unpublish moves the published copy of slug into the drafts directory,
// commits, syncs and pushes. An existing draft is never overwritten.
func (p *Pipeline) Unpublish(ctx context.Context, slug string) (res Result, err error) {
	rec := p.begin(models.OpUnpublish, slug)
	defer func() { p.finish(rec, res, err) }()

	if err := validateSlug(slug); err != nil {
		return Result{}, err
	}
	if err := p.step(ctx, models.OpUnpublish, StepPreflight, p.repo.Preflight); err != nil {
		return Result{}, err
	}

	pub, ok := p.locator.Locate(slug)
	if !ok {
		return Result{}, &apperr.Error{
			Kind:    apperr.KindInput,
			Step:    StepMaterialize,
			Message: fmt.Sprintf("no published copy of %q", slug),
			Err:     apperr.ErrNotFound,
		}
	}
	rec.SourcePath = pub.RelPath
	draft := p.locator.DraftPath(slug)
	rec.TargetPath = draft

	exists, err := p.repoFS.Exists(draft)
	if err != nil {
		return Result{}, apperr.Input(StepMaterialize, "could not check drafts directory", err)
	}
	if exists {
		return Result{}, &apperr.Error{
			Kind:    apperr.KindPrecondition,
			Step:    StepMaterialize,
			Message: "draft already exists at " + draft,
			Err:     apperr.ErrAlreadyExists,
		}
	}

	ctx = context.WithoutCancel(ctx)

	// A copy that was never committed has nothing to remove from the index.
	var tracked bool
	err = p.step(ctx, models.OpUnpublish, StepMaterialize, func(ctx context.Context) error {
		var err error
		tracked, err = p.repo.Tracked(ctx, pub.RelPath)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	err = p.step(ctx, models.OpUnpublish, StepMaterialize, func(context.Context) error {
		if err := p.repoFS.Move(pub.RelPath, draft); err != nil {
			return apperr.Input(StepMaterialize, "move into drafts failed", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("unpublish: moved to drafts", slog.String("slug", slug), slog.String("from", pub.RelPath), slog.String("to", draft))

	addArgs := []string{"--", draft}
	paths := []string{draft}
	if tracked {
		addArgs = []string{"-A", "--", pub.RelPath, draft}
		paths = []string{pub.RelPath, draft}
	}
	committed, err := p.sync(ctx, models.OpUnpublish, "Unpublish: "+slug, addArgs, paths)
	if err != nil {
		return Result{}, err
	}
	return Result{Slug: slug, TargetPath: draft, Committed: committed}, nil
}

// sync stages with addArgs, commits only paths with msg, rebases onto
// upstream and pushes. Changes the author staged elsewhere stay out of the
// commit. It reports whether a new commit was created.
func (p *Pipeline) sync(ctx context.Context, op models.Operation, msg string, addArgs, paths []string) (bool, error) {
	err := p.step(ctx, op, StepStage, func(ctx context.Context) error {
		out, err := p.repo.Git(ctx, append([]string{"add"}, addArgs...)...)
		if err != nil {
			return apperr.ExternalTool(StepStage, "git add failed", out, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	committed := true
	err = p.step(ctx, op, StepCommit, func(ctx context.Context) error {
		out, err := p.repo.Git(ctx, append([]string{"commit", "-m", msg, "--"}, paths...)...)
		if err == nil {
			return nil
		}
		if containsAny(out, benignCommit) {
			committed = false
			p.logger.Info("publish: nothing to commit", slog.String("message", msg))
			return nil
		}
		return apperr.ExternalTool(StepCommit, "git commit failed", out, err)
	})
	if err != nil {
		return false, err
	}

	err = p.step(ctx, op, StepSync, func(ctx context.Context) error {
		out, err := p.repo.Git(ctx, "pull", "--rebase", "--autostash")
		if err == nil {
			return nil
		}
		if abortOut, abortErr := p.repo.Git(ctx, "rebase", "--abort"); abortErr != nil {
			p.logger.Debug("publish: rebase abort",
				slog.String("error", abortErr.Error()),
				slog.String("output", strings.TrimSpace(abortOut)),
			)
		}
		return apperr.ExternalTool(StepSync, "git pull --rebase failed; rebase aborted", out, err)
	})
	if err != nil {
		return false, err
	}

	err = p.step(ctx, op, StepPush, func(ctx context.Context) error {
		out, err := p.repo.Git(ctx, "push")
		if err == nil || containsAny(out, benignPush) {
			return nil
		}
		return apperr.ExternalTool(StepPush, "git push failed", out, err)
	})
	return committed, err
}

func (p *Pipeline) step(ctx context.Context, op models.Operation, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveStepDuration(string(op), name, time.Since(start))
	if err != nil {
		p.logger.Warn(string(op)+": step failed", slog.String("step", name), slog.String("error", err.Error()))
	}
	return err
}

// resolveSource maps sourcePath to a vault-relative path and checks that it
// lies inside the publishable tree.
func (p *Pipeline) resolveSource(sourcePath string) (string, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return "", apperr.Input(StepValidate, "source path is empty", nil)
	}
	rel := sourcePath
	if filepath.IsAbs(sourcePath) {
		r, err := p.vault.Rel(sourcePath)
		if err != nil {
			return "", apperr.Integrity(StepValidate, "source is outside the vault: "+sourcePath)
		}
		rel = r
	}
	if _, err := p.vault.Abs(rel); err != nil {
		return "", apperr.Integrity(StepValidate, "source is outside the vault: "+sourcePath)
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if !strings.HasSuffix(rel, ".md") || !vault.InTree(rel, p.tree.PublishableDirs, p.tree.ExcludedDirs) {
		return "", apperr.Integrity(StepValidate, "source is not in a publishable directory: "+rel)
	}
	ok, err := p.vault.Exists(rel)
	if err != nil {
		return "", apperr.Input(StepValidate, "source document is not accessible", err)
	}
	if !ok {
		return "", &apperr.Error{Kind: apperr.KindInput, Step: StepValidate, Message: "source document not found: " + rel, Err: apperr.ErrNotFound}
	}
	return rel, nil
}

func validateSlug(slug string) error {
	if !site.ValidSlug(slug) {
		return apperr.Input(StepValidate, fmt.Sprintf("invalid slug %q", slug), nil)
	}
	return nil
}

func (p *Pipeline) begin(op models.Operation, slug string) *models.Transition {
	return &models.Transition{Op: op, Slug: slug, StartedAt: p.now()}
}

func (p *Pipeline) finish(rec *models.Transition, res Result, err error) {
	rec.FinishedAt = p.now()
	rec.URL = res.URL
	result := metrics.ResultSuccess
	rec.Status = models.StatusSucceeded
	if err != nil {
		result = metrics.ResultFailed
		rec.Status = models.StatusFailed
		rec.Error = err.Error()
	}
	p.metrics.IncTransition(string(rec.Op), result)

	if err != nil {
		p.logger.Error(string(rec.Op)+": failed", slog.String("slug", rec.Slug), slog.String("error", err.Error()))
	} else {
		p.logger.Info(string(rec.Op)+": done", slog.String("slug", rec.Slug), slog.String("target", rec.TargetPath), slog.String("url", rec.URL))
	}

	if p.journal == nil {
		return
	}
	if jerr := p.journal.Record(rec); jerr != nil {
		p.logger.Warn("publish: journal write failed", slog.String("error", jerr.Error()))
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
