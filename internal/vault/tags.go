package vault

import (
	"fmt"
	"strings"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/frontmatter"
	"github.com/starford/dispatch/internal/storage"
)

// AddTag adds tag to the header tags list of the document at relPath and
// returns the resulting list. A header or tags key is created when missing.
// Tags already present under any letter case are left alone.
func AddTag(store storage.Provider, relPath, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.ContainsAny(tag, ",[]\n\r") {
		return nil, apperr.Input("tag", fmt.Sprintf("invalid tag %q", tag), nil)
	}
	data, err := store.Read(relPath)
	if err != nil {
		return nil, apperr.Input("tag", "document is not readable", err)
	}
	content := string(data)

	header, body, ok := frontmatter.Split(content)
	if !ok {
		if opensHeader(content) {
			return nil, apperr.Input("tag", "header block is never closed", nil)
		}
		tags := []string{tag}
		out := fmt.Sprintf("%s\ntags: [%s]\n%s\n%s", frontmatter.Delimiter, tag, frontmatter.Delimiter, content)
		if err := store.Write(relPath, []byte(out)); err != nil {
			return nil, fmt.Errorf("vault: add tag: %w", err)
		}
		return tags, nil
	}

	lines := make([]string, 0, len(header)+1)
	var tags []string
	found := false
	for _, line := range header {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !found {
			if rest, isTags := strings.CutPrefix(line, "tags:"); isTags {
				tags = ParseTags(rest)
				if !containsFold(tags, tag) {
					tags = append(tags, tag)
				}
				line = formatTags(tags)
				found = true
			}
		}
		lines = append(lines, line)
	}
	if !found {
		tags = []string{tag}
		lines = append(lines, formatTags(tags))
	}

	out := frontmatter.Delimiter + "\n" + strings.Join(lines, "\n") + "\n" + frontmatter.Delimiter + "\n" + body
	if err := store.Write(relPath, []byte(out)); err != nil {
		return nil, fmt.Errorf("vault: add tag: %w", err)
	}
	return tags, nil
}

func formatTags(tags []string) string {
	return "tags: [" + strings.Join(tags, ", ") + "]"
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func opensHeader(content string) bool {
	first, _, _ := strings.Cut(content, "\n")
	return strings.TrimRight(first, " \t\r") == frontmatter.Delimiter
}
