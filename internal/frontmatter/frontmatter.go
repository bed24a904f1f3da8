// Package frontmatter splits a Markdown document into a flat key/value header and body.
//
// Parsing is deliberately lenient: it never returns an error. Lines inside the
// header that do not look like `key: value` are skipped, and a document whose
// opening delimiter is never closed is treated as having no header at all.
package frontmatter

import (
	"strings"
)

// Delimiter opens and closes the header block.
const Delimiter = "---"

// Result holds the output of parsing a document.
type Result struct {
	Fields    map[string]string
	Body      string
	HasHeader bool
}

// Get returns the trimmed value for key and whether it was present.
func (r Result) Get(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Parse extracts the header fields and body from raw document text.
func Parse(content string) Result {
	lines, body, ok := Split(content)
	if !ok {
		return Result{Fields: map[string]string{}, Body: content}
	}

	fields := make(map[string]string, len(lines))
	for _, line := range lines {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = unquote(strings.TrimSpace(value))
	}
	return Result{Fields: fields, Body: body, HasHeader: true}
}

// Split separates the raw header lines (without delimiters) from the body.
// ok is false when content does not start with a delimiter line or the
// header is never closed; body is then the full input.
func Split(content string) (header []string, body string, ok bool) {
	first, rest, found := cutLine(content)
	if !found || !isDelimiter(first) {
		return nil, content, false
	}

	for {
		line, next, more := cutLine(rest)
		if isDelimiter(line) {
			return header, next, true
		}
		if !more {
			return nil, content, false
		}
		header = append(header, strings.TrimRight(line, "\r"))
		rest = next
	}
}

// Strip returns content without its header block.
func Strip(content string) string {
	_, body, _ := Split(content)
	return body
}

// cutLine returns the first line of s (without the newline), the remainder,
// and whether a newline was found. A final unterminated line is still returned.
func cutLine(s string) (line, rest string, found bool) {
	if s == "" {
		return "", "", false
	}
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == Delimiter
}

// unquote strips one layer of surrounding double quotes.
func unquote(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v[1 : len(v)-1]
	}
	return v
}
