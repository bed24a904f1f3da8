// Package site knows the layout of the publication repository: year-partitioned
// published posts under a content root and a flat drafts directory beside them.
package site

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Layout describes where content lives inside the publication repository.
type Layout struct {
	ContentRoot string // relative to the repository root, e.g. "content/blog"
	DraftsDir   string // relative to ContentRoot, e.g. "drafts"
	BaseURL     string // e.g. "https://example.com"
}

// Publication is a published copy of a document found in a year directory.
type Publication struct {
	Year       string
	URL        string
	RelPath    string // relative to the repository root
	Content    string
	ModifiedAt time.Time
}

// Locator finds published copies of documents by slug.
type Locator struct {
	repoRoot string
	layout   Layout
}

// NewLocator creates a locator for the repository at repoRoot.
func NewLocator(repoRoot string, layout Layout) *Locator {
	return &Locator{repoRoot: repoRoot, layout: layout}
}

// RepoRoot returns the repository root the locator searches.
func (l *Locator) RepoRoot() string { return l.repoRoot }

// Layout returns the configured layout.
func (l *Locator) Layout() Layout { return l.layout }

// Locate searches the year directories for <slug>.md and returns the first
// match. Year directories are visited newest first, so when the same slug was
// published in several years the most recent copy wins.
func (l *Locator) Locate(slug string) (*Publication, bool) {
	if !ValidSlug(slug) {
		return nil, false
	}
	for _, year := range l.YearDirs() {
		rel := l.PublishedPath(year, slug)
		abs := filepath.Join(l.repoRoot, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		pub := &Publication{
			Year:       year,
			URL:        l.URL(year, slug),
			RelPath:    rel,
			ModifiedAt: info.ModTime(),
		}
		// An unreadable copy still counts as published; drift is then judged
		// against empty content.
		if data, err := os.ReadFile(abs); err == nil {
			pub.Content = string(data)
		}
		return pub, true
	}
	return nil, false
}

// YearDirs lists the four-digit directories directly under the content root,
// newest first. A missing content root yields no directories.
func (l *Locator) YearDirs() []string {
	entries, err := os.ReadDir(filepath.Join(l.repoRoot, filepath.FromSlash(l.layout.ContentRoot)))
	if err != nil {
		return nil
	}
	var years []string
	for _, e := range entries {
		if e.IsDir() && IsYear(e.Name()) {
			years = append(years, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))
	return years
}

// PublishedPath returns <content-root>/<year>/<slug>.md relative to the repository root.
func (l *Locator) PublishedPath(year, slug string) string {
	return path.Join(filepath.ToSlash(l.layout.ContentRoot), year, slug+".md")
}

// DraftPath returns <content-root>/<drafts>/<slug>.md relative to the repository root.
func (l *Locator) DraftPath(slug string) string {
	return path.Join(filepath.ToSlash(l.layout.ContentRoot), l.layout.DraftsDir, slug+".md")
}

// URL returns the canonical public address of a published post.
func (l *Locator) URL(year, slug string) string {
	return strings.TrimRight(l.layout.BaseURL, "/") + "/blog/" + year + "/" + slug
}

// IsYear reports whether name is exactly four ASCII digits.
func IsYear(name string) bool {
	if len(name) != 4 {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}

// ValidSlug reports whether slug can safely name a file in a single directory.
func ValidSlug(slug string) bool {
	if slug == "" || slug == "." || slug == ".." {
		return false
	}
	return !strings.ContainsAny(slug, `/\`) && !strings.ContainsRune(slug, 0)
}

// SlugFromFilename derives a slug from a Markdown filename.
func SlugFromFilename(name string) string {
	return strings.TrimSuffix(name, ".md")
}
