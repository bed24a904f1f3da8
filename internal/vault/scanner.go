package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/frontmatter"
	"github.com/starford/dispatch/internal/metrics"
	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/storage"
)

// Options control which files a scan considers.
type Options struct {
	PublishableDirs []string
	ExcludedDirs    []string
	Rules           Rules
}

// DefaultOptions mirrors the vault layout the tool was built for.
func DefaultOptions() Options {
	return Options{
		PublishableDirs: []string{"blog", "drafts"},
		ExcludedDirs:    []string{"week-notes", "robot-notes", "private", "templates", "attachments", "_stale", "_archive"},
		Rules:           Rules{LongLinkWords: defaultLinkWords},
	}
}

// Scanner walks the vault and reconciles each document with the publication repository.
type Scanner struct {
	vault   storage.Provider
	locator *site.Locator
	opts    Options
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewScanner creates a Scanner. rec may be nil.
func NewScanner(vault storage.Provider, locator *site.Locator, opts Options, logger *slog.Logger, rec metrics.Recorder) *Scanner {
	return &Scanner{vault: vault, locator: locator, opts: opts, logger: logger, metrics: metrics.OrNoop(rec)}
}

// Scan returns descriptors for every eligible document, newest modification
// first, truncated to limit when limit > 0. Only a failure to walk the vault
// root is returned; unreadable files degrade to descriptors with an empty body.
func (s *Scanner) Scan(ctx context.Context, limit int) ([]models.Document, error) {
	start := time.Now()
	entries, err := s.vault.List("")
	if err != nil {
		return nil, apperr.Input("scan", "vault root is not readable", err)
	}

	docs := make([]models.Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("vault: scan: %w", err)
		}
		if !s.Eligible(e.Path) {
			continue
		}
		docs = append(docs, s.describe(e))
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].ModifiedAt.After(docs[j].ModifiedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	s.metrics.ObserveScan(time.Since(start), len(docs))
	s.logger.Info("vault: scan complete",
		slog.Int("documents", len(docs)),
		slog.String("duration", time.Since(start).String()),
	)
	return docs, nil
}

// Document builds the descriptor for a single vault-relative path.
func (s *Scanner) Document(relPath string) (models.Document, error) {
	ok, err := s.vault.Exists(relPath)
	if err != nil {
		return models.Document{}, apperr.Input("scan", "invalid document path", err)
	}
	if !ok {
		return models.Document{}, fmt.Errorf("vault: %s: %w", relPath, apperr.ErrNotFound)
	}
	var mod time.Time
	if abs, err := s.vault.Abs(relPath); err == nil {
		mod = statModTime(abs)
	}
	return s.describe(storage.Entry{Path: relPath, ModTime: mod}), nil
}

func (s *Scanner) describe(e storage.Entry) models.Document {
	abs, _ := s.vault.Abs(e.Path)
	content := ""
	if data, err := s.vault.Read(e.Path); err != nil {
		s.logger.Warn("vault: unreadable document",
			slog.String("path", e.Path),
			slog.String("error", err.Error()),
		)
	} else {
		content = string(data)
	}

	fm := frontmatter.Parse(content)
	dir := filepath.Dir(e.Path)
	if dir == "." {
		dir = ""
	}
	doc := BuildDocument(Source{Path: abs, RelDir: dir, ModTime: e.ModTime, Content: content}, fm, s.opts.Rules)
	if pub, ok := s.locator.Locate(doc.Slug); ok {
		MarkPublished(&doc, content, pub)
	}
	return doc
}

// Eligible reports whether a vault-relative path is a Markdown file the
// scanner considers.
func (s *Scanner) Eligible(relPath string) bool {
	return strings.HasSuffix(relPath, ".md") && InTree(relPath, s.opts.PublishableDirs, s.opts.ExcludedDirs)
}

// InTree reports whether a vault-relative path has a publishable directory
// among its parent segments and no excluded one. Exclusion wins when both apply.
func InTree(relPath string, publishable, excluded []string) bool {
	segments := strings.Split(filepath.ToSlash(filepath.Dir(relPath)), "/")
	if containsAny(segments, excluded) {
		return false
	}
	return containsAny(segments, publishable)
}

func containsAny(segments, names []string) bool {
	for _, seg := range segments {
		for _, n := range names {
			if seg == n {
				return true
			}
		}
	}
	return false
}

func statModTime(abs string) time.Time {
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
