package vault

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dispatch/internal/frontmatter"
	"github.com/starford/dispatch/internal/site"
)

func TestBuildDocument(t *testing.T) {
	content := "---\ntitle: ignored\ndate: 2025-01-01\nmodified: 2025-02-03T10:00:00Z\ntags: [go, Writing, ]\ndek: A short dek\nunlisted: yes\npassword: hunter2\n---\n\nIntro line\n## The Title\n# Later heading\n\nfour more words here\n"
	mod := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	doc := BuildDocument(Source{
		Path:    "/vault/blog/2025/my-post.md",
		RelDir:  "blog/2025",
		ModTime: mod,
		Content: content,
	}, frontmatter.Parse(content), Rules{})

	if doc.Slug != "my-post" || doc.Filename != "my-post.md" {
		t.Errorf("slug/filename = %q/%q", doc.Slug, doc.Filename)
	}
	if doc.Title != "The Title" {
		t.Errorf("title = %q", doc.Title)
	}
	if diff := cmp.Diff([]string{"go", "Writing"}, doc.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if doc.Dek != "A short dek" || doc.Password != "hunter2" || !doc.Unlisted {
		t.Errorf("visibility fields wrong: %+v", doc)
	}
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !doc.CreatedAt.Equal(want) {
		t.Errorf("created = %v, want %v", doc.CreatedAt, want)
	}
	if want := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC); !doc.ModifiedAt.Equal(want) {
		t.Errorf("modified = %v, want %v", doc.ModifiedAt, want)
	}
	if doc.WordCount != 12 {
		t.Errorf("word count = %d", doc.WordCount)
	}
	if doc.SourceDir != "blog/2025" {
		t.Errorf("source dir = %q", doc.SourceDir)
	}
	if !doc.IsSafe || len(doc.Warnings) != 0 {
		t.Errorf("expected safe document, warnings = %v", doc.Warnings)
	}
}

func TestBuildDocument_FilesystemTimesWhenDateUnparseable(t *testing.T) {
	content := "---\ndate: sometime last spring\n---\nbody"
	mod := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := BuildDocument(Source{Path: "/v/blog/x.md", ModTime: mod, Content: content}, frontmatter.Parse(content), Rules{})
	if !doc.CreatedAt.Equal(mod) || !doc.ModifiedAt.Equal(mod) {
		t.Errorf("times = %v/%v, want %v", doc.CreatedAt, doc.ModifiedAt, mod)
	}
	if doc.Date != "sometime last spring" {
		t.Errorf("date string should be kept verbatim, got %q", doc.Date)
	}
}

func TestMarkPublished(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	content := "---\ndate: 2025-01-01\n---\nbody\n"
	base := BuildDocument(Source{Path: "/v/blog/p.md", Content: content}, frontmatter.Parse(content), Rules{})

	inSync := base
	MarkPublished(&inSync, content, &site.Publication{URL: "https://example.com/blog/2025/p", ModifiedAt: at, Content: "body   \n"})
	if !inSync.Published() || !inSync.IsSafe {
		t.Errorf("in-sync copy should be published and safe: %+v", inSync)
	}
	if inSync.PublishedAt == nil || !inSync.PublishedAt.Equal(at) {
		t.Errorf("published at = %v", inSync.PublishedAt)
	}

	drifted := base
	drifted.Warnings = []string{WarnTodos}
	MarkPublished(&drifted, content, &site.Publication{URL: "u", Content: "other body\n"})
	if diff := cmp.Diff([]string{WarnModified, WarnTodos}, drifted.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if drifted.IsSafe {
		t.Error("drifted document must not be safe")
	}

	unpublished := base
	MarkPublished(&unpublished, content, nil)
	if unpublished.Published() {
		t.Error("nil publication must leave document unpublished")
	}
}

func TestExtractTitle(t *testing.T) {
	tests := map[string]string{
		"# Top\n## Sub":      "Top",
		"text\n  ## Sub  \n": "Sub",
		"### Deep\n":         "",
		"#NoSpace\n":         "",
		"":                   "",
	}
	for in, want := range tests {
		if got := ExtractTitle(in); got != want {
			t.Errorf("ExtractTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"[a, b, c]", []string{"a", "b", "c"}},
		{"single", []string{"single"}},
		{"[]", []string{}},
		{"", []string{}},
		{`["quoted", 'x']`, []string{"quoted", "x"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseTags(tt.in)); diff != "" {
			t.Errorf("ParseTags(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-01T00:00:00-05:00", time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), true},
		{"2024-01-01T08:30:00", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), true},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"Jan 1 2024", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
