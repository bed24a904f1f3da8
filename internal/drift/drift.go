// Package drift decides whether a source document has changed since it was published.
package drift

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/starford/dispatch/internal/frontmatter"
)

// Differs reports whether source and published differ in a way that matters.
// Byte-identical texts never differ. Otherwise both are compared after
// Normalize, so header blocks, trailing whitespace and line endings are ignored.
func Differs(source, published string) bool {
	if source == published {
		return false
	}
	a, b := Normalize(source), Normalize(published)
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// Normalize strips the header block, surrounding blank space and trailing
// whitespace on every line, returning the remaining lines.
func Normalize(content string) []string {
	body := strings.TrimSpace(frontmatter.Strip(content))
	if body == "" {
		return nil
	}
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return lines
}

// Unified renders a unified diff of the normalized texts. It returns an empty
// string when Differs would report no drift.
func Unified(slug, source, published string) (string, error) {
	if !Differs(source, published) {
		return "", nil
	}
	diff := difflib.UnifiedDiff{
		A:        withNewlines(Normalize(published)),
		B:        withNewlines(Normalize(source)),
		FromFile: "published/" + slug + ".md",
		ToFile:   "vault/" + slug + ".md",
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("drift: unified diff: %w", err)
	}
	return out, nil
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
