// Package vault turns the author's Markdown tree into Document descriptors.
package vault

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/dispatch/internal/drift"
	"github.com/starford/dispatch/internal/frontmatter"
	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/site"
)

// WarnModified is prepended when the source no longer matches its published copy.
const WarnModified = "Modified since publish"

// Source is a single file as read from the vault.
type Source struct {
	Path    string // absolute
	RelDir  string // parent directory relative to the vault root
	ModTime time.Time
	Content string
}

// BuildDocument derives a descriptor from a file and its parsed header.
// Publication state is attached separately by MarkPublished.
func BuildDocument(src Source, fm frontmatter.Result, rules Rules) models.Document {
	filename := filepath.Base(src.Path)
	doc := models.Document{
		Path:       src.Path,
		Filename:   filename,
		Slug:       site.SlugFromFilename(filename),
		Title:      ExtractTitle(fm.Body),
		Dek:        fm.Fields["dek"],
		Date:       fm.Fields["date"],
		Tags:       ParseTags(fm.Fields["tags"]),
		CreatedAt:  src.ModTime,
		ModifiedAt: src.ModTime,
		WordCount:  len(strings.Fields(fm.Body)),
		SourceDir:  filepath.ToSlash(src.RelDir),
		Unlisted:   isTruthy(fm.Fields["unlisted"]),
		Password:   fm.Fields["password"],
	}
	// Go exposes no portable birth time, so the filesystem fallback for
	// creation is the modification time.
	if t, ok := ParseDate(fm.Fields["modified"]); ok {
		doc.ModifiedAt = t
	}
	if t, ok := ParseDate(fm.Fields["date"]); ok {
		doc.CreatedAt = t
	}
	doc.Warnings = Warnings(fm.Body, fm.Fields, rules)
	doc.IsSafe = len(doc.Warnings) == 0
	return doc
}

// MarkPublished records the located publication on doc and flags drift
// between content and the published copy.
func MarkPublished(doc *models.Document, content string, pub *site.Publication) {
	if pub == nil {
		return
	}
	doc.PublishedURL = pub.URL
	at := pub.ModifiedAt
	doc.PublishedAt = &at
	if drift.Differs(content, pub.Content) {
		doc.Warnings = append([]string{WarnModified}, doc.Warnings...)
	}
	doc.IsSafe = len(doc.Warnings) == 0
}

// ExtractTitle returns the text of the first level-1 or level-2 heading.
func ExtractTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(rest)
		}
		if rest, ok := strings.CutPrefix(line, "## "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// ParseTags reads a header tags value, either "[a, b]" or a bare "a".
// Empty entries are dropped; the result is never nil.
func ParseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.Trim(strings.TrimSpace(t), `"'`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC 3339, a zone-less timestamp (taken as UTC) or a bare date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isTruthy(v string) bool {
	return v == "true" || v == "yes"
}
