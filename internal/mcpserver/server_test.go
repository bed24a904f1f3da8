package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dispatch/internal/docservice"
	"github.com/starford/dispatch/internal/gitrepo"
	"github.com/starford/dispatch/internal/publish"
	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/testutil"
	"github.com/starford/dispatch/internal/vault"
)

type testEnv struct {
	vaultDir string
	repoDir  string
	git      *testutil.FakeGit
	srv      *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	vaultDir, vaultFS := testutil.TestVault(t)
	repoDir, repoFS := testutil.TestVault(t)
	fake := testutil.NewFakeGit()
	logger := testutil.Logger()

	opts := vault.DefaultOptions()
	loc := site.NewLocator(repoDir, site.Layout{ContentRoot: "content/blog", DraftsDir: "drafts", BaseURL: "https://example.com"})
	repo := gitrepo.New(repoDir, "content/blog", fake, logger)
	j := testutil.TestJournal(t)
	now := func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }

	svc := docservice.New(docservice.Deps{
		VaultFS:  vaultFS,
		RepoFS:   repoFS,
		Scanner:  vault.NewScanner(vaultFS, loc, opts, logger, nil),
		Locator:  loc,
		Repo:     repo,
		Pipeline: publish.New(vaultFS, repoFS, loc, repo, opts, logger, publish.WithJournal(j), publish.WithClock(now)),
		Journal:  j,
		Tree:     opts,
		Logger:   logger,
	})
	return &testEnv{vaultDir: vaultDir, repoDir: repoDir, git: fake, srv: New(svc, "test")}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "scan_vault":
		result, err = srv.scanVault(ctx, req)
	case "repository_status":
		result, err = srv.repositoryStatus(ctx, req)
	case "publish_document":
		result, err = srv.publishDocument(ctx, req)
	case "unpublish_document":
		result, err = srv.unpublishDocument(ctx, req)
	case "document_diff":
		result, err = srv.documentDiff(ctx, req)
	case "publish_history":
		result, err = srv.publishHistory(ctx, req)
	case "get_publishing_rules":
		result, err = srv.getPublishingRules(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestScanVault(t *testing.T) {
	e := newTestEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/hello.md", "# Hello\nTODO\n")

	r := callTool(t, e.srv, "scan_vault", map[string]any{"limit": 10})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, `"slug": "hello"`) || !strings.Contains(text, "Has TODOs") {
		t.Errorf("scan result = %s", text)
	}
}

func TestPublishDiffUnpublish(t *testing.T) {
	e := newTestEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/post.md", "---\ndate: 2025-01-01\n---\n# Post\n")

	r := callTool(t, e.srv, "publish_document", map[string]any{"source_path": "blog/post.md", "slug": "post"})
	if text := resultText(r); r.IsError || text != "published: https://example.com/blog/2025/post" {
		t.Fatalf("publish result = %q", text)
	}

	r = callTool(t, e.srv, "document_diff", map[string]any{"slug": "post"})
	if text := resultText(r); !strings.Contains(text, "in sync") {
		t.Errorf("diff result = %q", text)
	}

	testutil.WriteFile(t, e.vaultDir, "blog/post.md", "---\ndate: 2025-01-01\n---\n# Post\n\nMore.\n")
	r = callTool(t, e.srv, "document_diff", map[string]any{"slug": "post"})
	if text := resultText(r); !strings.Contains(text, "+More.") {
		t.Errorf("diff result = %q", text)
	}

	r = callTool(t, e.srv, "unpublish_document", map[string]any{"slug": "post"})
	if text := resultText(r); r.IsError || !strings.Contains(text, "content/blog/drafts/post.md") {
		t.Errorf("unpublish result = %q", text)
	}

	r = callTool(t, e.srv, "publish_history", map[string]any{"slug": "post"})
	if text := resultText(r); !strings.Contains(text, `"op": "unpublish"`) {
		t.Errorf("history result = %q", text)
	}
}

func TestPublishDocument_ErrorsAreClassified(t *testing.T) {
	e := newTestEnv(t)
	e.git.On("branch --show-current", "", nil)
	testutil.WriteFile(t, e.vaultDir, "blog/post.md", "# Post\n")

	r := callTool(t, e.srv, "publish_document", map[string]any{"source_path": "blog/post.md", "slug": "post"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "precondition error") {
		t.Errorf("result = %q, want precondition error", resultText(r))
	}
}

func TestPublishDocument_MissingArgument(t *testing.T) {
	e := newTestEnv(t)
	r := callTool(t, e.srv, "publish_document", map[string]any{"slug": "post"})
	if !r.IsError {
		t.Error("expected error for missing source_path")
	}
}

func TestRepositoryStatus(t *testing.T) {
	e := newTestEnv(t)
	r := callTool(t, e.srv, "repository_status", map[string]any{})
	if text := resultText(r); !strings.Contains(text, `"branch": "main"`) {
		t.Errorf("status = %s", text)
	}
}

func TestPublishingRules(t *testing.T) {
	e := newTestEnv(t)
	r := callTool(t, e.srv, "get_publishing_rules", nil)
	if !strings.Contains(resultText(r), "Modified since publish") {
		t.Error("rules should list the drift warning")
	}
}
