// Package assets finds CDN-hosted media referenced from the vault and the
// publication repository.
package assets

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/dispatch/internal/storage"
	"github.com/starford/dispatch/internal/vault"
)

const contextWidth = 100

// Ref is one CDN URL found in a document.
type Ref struct {
	Cloud    string `json:"cloud"`
	Kind     string `json:"kind"` // image, video or raw
	PublicID string `json:"public_id"`
	Line     int    `json:"line"`
	Context  string `json:"context"`
}

// Usage is one reference to an asset from a document.
type Usage struct {
	Tree    string `json:"tree"`
	Path    string `json:"path"`
	Title   string `json:"title,omitempty"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

// Report maps assets to the documents using them and back.
type Report struct {
	ByAsset        map[string][]Usage  `json:"by_asset"`
	ByDocument     map[string][]string `json:"by_document"`
	TotalAssets    int                 `json:"total_assets"`
	TotalDocuments int                 `json:"total_documents"`
	Duration       time.Duration       `json:"duration_ns"`
}

// Root is a tree to scan. Documents under any Skip directory segment are ignored.
type Root struct {
	Name  string
	Store storage.Provider
	Dir   string
	Skip  []string
}

// Extractor finds delivery URLs for one CDN host.
type Extractor struct {
	re *regexp.Regexp
}

// NewExtractor builds an extractor for URLs of the form
// https://<host>/<cloud>/<image|video|raw>/upload/[transformations/][vN/]<public-id>.
func NewExtractor(host string) *Extractor {
	if host == "" {
		host = "res.cloudinary.com"
	}
	re := regexp.MustCompile(`https://` + regexp.QuoteMeta(host) +
		`/([^/\s]+)/(image|video|raw)/upload/(?:[a-z]{1,2}_[^/\s]+/)*(?:v\d+/)?([^\s)"'\]]+)`)
	return &Extractor{re: re}
}

// Extract returns every CDN reference in content with 1-based line numbers.
// Public IDs are returned without their file extension.
func (x *Extractor) Extract(content string) []Ref {
	var refs []Ref
	for i, line := range strings.Split(content, "\n") {
		for _, m := range x.re.FindAllStringSubmatch(line, -1) {
			refs = append(refs, Ref{
				Cloud:    m[1],
				Kind:     m[2],
				PublicID: trimExt(m[3]),
				Line:     i + 1,
				Context:  clip(strings.TrimSpace(line), contextWidth),
			})
		}
	}
	return refs
}

// Scan walks every root and aggregates asset usage.
func Scan(ctx context.Context, x *Extractor, roots ...Root) (Report, error) {
	start := time.Now()
	rep := Report{ByAsset: map[string][]Usage{}, ByDocument: map[string][]string{}}
	for _, root := range roots {
		entries, err := root.Store.List(root.Dir)
		if err != nil {
			return Report{}, fmt.Errorf("assets: list %s: %w", root.Name, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return Report{}, fmt.Errorf("assets: scan: %w", err)
			}
			if skipped(e.Path, root.Skip) {
				continue
			}
			data, err := root.Store.Read(e.Path)
			if err != nil {
				continue
			}
			rep.TotalDocuments++
			content := string(data)
			refs := x.Extract(content)
			if len(refs) == 0 {
				continue
			}
			title := vault.ExtractTitle(content)
			key := root.Name + ":" + e.Path
			for _, r := range refs {
				rep.ByAsset[r.PublicID] = append(rep.ByAsset[r.PublicID], Usage{
					Tree:    root.Name,
					Path:    e.Path,
					Title:   title,
					Line:    r.Line,
					Context: r.Context,
				})
				rep.ByDocument[key] = append(rep.ByDocument[key], r.PublicID)
			}
		}
	}
	rep.TotalAssets = len(rep.ByAsset)
	rep.Duration = time.Since(start)
	return rep, nil
}

// Folders returns the distinct CDN folders of the reported assets, sorted.
func (r Report) Folders() []string {
	seen := map[string]bool{}
	folders := []string{}
	for id := range r.ByAsset {
		dir := path.Dir(id)
		if dir == "." || seen[dir] {
			continue
		}
		seen[dir] = true
		folders = append(folders, dir)
	}
	sort.Strings(folders)
	return folders
}

func skipped(relPath string, dirs []string) bool {
	if len(dirs) == 0 {
		return false
	}
	return vault.InTree(relPath, dirs, nil)
}

func trimExt(id string) string {
	return strings.TrimSuffix(id, path.Ext(id))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
