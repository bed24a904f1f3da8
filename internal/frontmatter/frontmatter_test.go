package frontmatter

import (
	"testing"
)

func TestParse_HeaderAndBody(t *testing.T) {
	r := Parse("---\ntitle: \"Hello: World\"\ndate: 2025-01-01\n---\n# Hello\nBody text.\n")
	if !r.HasHeader {
		t.Fatal("expected header")
	}
	if got, _ := r.Get("title"); got != "Hello: World" {
		t.Errorf("title = %q", got)
	}
	if got, _ := r.Get("date"); got != "2025-01-01" {
		t.Errorf("date = %q", got)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoHeader(t *testing.T) {
	input := "# Just a heading\nSome text.\n"
	r := Parse(input)
	if r.HasHeader {
		t.Error("unexpected header")
	}
	if len(r.Fields) != 0 {
		t.Errorf("fields = %v", r.Fields)
	}
	if r.Body != input {
		t.Errorf("body = %q, want original text", r.Body)
	}
}

func TestParse_MalformedLinesSkipped(t *testing.T) {
	r := Parse("---\nthis line has no separator\n: empty key\ntags: [a, b]\n---\nbody")
	if len(r.Fields) != 1 {
		t.Fatalf("fields = %v, want only tags", r.Fields)
	}
	if got, _ := r.Get("tags"); got != "[a, b]" {
		t.Errorf("tags = %q", got)
	}
}

func TestParse_UnclosedHeaderIsBody(t *testing.T) {
	input := "---\ndate: 2025-01-01\n# Title\n"
	r := Parse(input)
	if r.HasHeader || r.Body != input {
		t.Errorf("unclosed header should fall back to full body, got %+v", r)
	}
}

func TestParse_CRLF(t *testing.T) {
	r := Parse("---\r\ndate: 2025-01-01\r\n---\r\nbody\r\n")
	if got, _ := r.Get("date"); got != "2025-01-01" {
		t.Errorf("date = %q", got)
	}
	if r.Body != "body\r\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_EmptyHeader(t *testing.T) {
	r := Parse("---\n---\nbody")
	if !r.HasHeader || len(r.Fields) != 0 || r.Body != "body" {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestStrip(t *testing.T) {
	if got := Strip("---\na: b\n---\nrest"); got != "rest" {
		t.Errorf("Strip = %q", got)
	}
	if got := Strip("no header"); got != "no header" {
		t.Errorf("Strip = %q", got)
	}
}
