package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/gitrepo"
	"github.com/starford/dispatch/internal/journal"
	"github.com/starford/dispatch/internal/models"
	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/storage"
	"github.com/starford/dispatch/internal/testutil"
	"github.com/starford/dispatch/internal/vault"
)

type env struct {
	vaultDir string
	repoDir  string
	repoFS   *storage.FS
	git      *testutil.FakeGit
	journal  *journal.Journal
	pipeline *Pipeline
}

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvAt(t, fixedNow)
}

func newEnvAt(t *testing.T, now func() time.Time) *env {
	t.Helper()
	vaultDir, vaultFS := testutil.TestVault(t)
	repoDir, repoFS := testutil.TestVault(t)
	fake := testutil.NewFakeGit()
	j := testutil.TestJournal(t)
	logger := testutil.Logger()

	loc := site.NewLocator(repoDir, site.Layout{ContentRoot: "content/blog", DraftsDir: "drafts", BaseURL: "https://example.com"})
	repo := gitrepo.New(repoDir, "content/blog", fake, logger)
	p := New(vaultFS, repoFS, loc, repo, vault.DefaultOptions(), logger, WithJournal(j), WithClock(now))
	return &env{vaultDir: vaultDir, repoDir: repoDir, repoFS: repoFS, git: fake, journal: j, pipeline: p}
}

func (e *env) exists(t *testing.T, rel string) bool {
	t.Helper()
	ok, err := e.repoFS.Exists(rel)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func (e *env) lastTransition(t *testing.T) models.Transition {
	t.Helper()
	recs, err := e.journal.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected a journal record, got %d", len(recs))
	}
	return recs[0]
}

const post = "---\ndate: 2025-01-01\n---\n# My Post\n\nHello.\n"

func TestPublish_Success(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/2025/my-post.md", post)

	res, err := e.pipeline.Publish(context.Background(), "blog/2025/my-post.md", "my-post")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.URL != "https://example.com/blog/2025/my-post" || !res.Committed {
		t.Errorf("unexpected result %+v", res)
	}
	data, err := e.repoFS.Read("content/blog/2025/my-post.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != post {
		t.Errorf("published content = %q", data)
	}

	want := []string{
		"rev-parse --git-dir",
		"branch --show-current",
		"diff --name-only --diff-filter=U",
		"status --porcelain",
		"fetch --dry-run",
		"add -- content/blog/2025/my-post.md",
		"commit -m Publish: my-post -- content/blog/2025/my-post.md",
		"pull --rebase --autostash",
		"push",
	}
	if diff := cmp.Diff(want, e.git.Calls()); diff != "" {
		t.Errorf("git calls mismatch (-want +got):\n%s", diff)
	}

	rec := e.lastTransition(t)
	if rec.Status != models.StatusSucceeded || rec.URL != res.URL || rec.SourcePath != "blog/2025/my-post.md" || rec.Checksum == "" {
		t.Errorf("unexpected journal record %+v", rec)
	}
}

func TestPublish_AbsoluteSourcePath(t *testing.T) {
	e := newEnv(t)
	abs := testutil.WriteFile(t, e.vaultDir, "drafts/idea.md", post)

	res, err := e.pipeline.Publish(context.Background(), abs, "idea")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.TargetPath != "content/blog/2025/idea.md" {
		t.Errorf("target = %q", res.TargetPath)
	}
}

func TestPublish_NothingToCommitIsSuccess(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	e.git.On("commit", "On branch main\nnothing to commit, working tree clean\n", errors.New("exit status 1"))

	res, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p")
	if err != nil {
		t.Fatalf("republish should succeed: %v", err)
	}
	if res.Committed {
		t.Error("expected no new commit")
	}
	calls := e.git.Subcommands()
	if calls[len(calls)-1] != "push" {
		t.Errorf("pipeline should continue to push, calls = %v", calls)
	}
}

func TestPublish_CommitFailure(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	e.git.On("commit", "error: gpg failed to sign the data\n", errors.New("exit status 128"))

	_, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p")
	if !errors.Is(err, apperr.ErrExternalTool) || !strings.Contains(err.Error(), "gpg failed") {
		t.Fatalf("expected external tool error with output, got %v", err)
	}
	for _, c := range e.git.Subcommands() {
		if c == "pull" || c == "push" {
			t.Errorf("pipeline continued after commit failure: %v", e.git.Subcommands())
		}
	}
	if !e.exists(t, "content/blog/2025/p.md") {
		t.Error("materialized file should be left in place")
	}
	if rec := e.lastTransition(t); rec.Status != models.StatusFailed || rec.Error == "" {
		t.Errorf("unexpected journal record %+v", rec)
	}
}

func TestPublish_PullFailureAbortsRebase(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	e.git.On("pull", "CONFLICT (content): Merge conflict in content/blog/2025/p.md\n", errors.New("exit status 1"))

	_, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindExternalTool || appErr.Step != StepSync {
		t.Fatalf("expected sync external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Merge conflict") {
		t.Errorf("error should include git output: %v", err)
	}
	calls := e.git.Calls()
	if calls[len(calls)-1] != "rebase --abort" {
		t.Errorf("expected rebase --abort as last call, got %v", calls)
	}
}

func TestPublish_PushUpToDateIsSuccess(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	e.git.On("push", "Everything up-to-date\n", errors.New("exit status 1"))

	if _, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestPublish_PushFailure(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	e.git.On("push", "! [rejected] main -> main (fetch first)\n", errors.New("exit status 1"))

	_, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Step != StepPush || !strings.Contains(appErr.Output, "rejected") {
		t.Fatalf("expected push failure with output, got %v", err)
	}
}

func TestPublish_DetachedHeadMutatesNothing(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	e.git.On("branch --show-current", "", nil)

	_, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p")
	if !errors.Is(err, apperr.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if e.exists(t, "content/blog/2025/p.md") {
		t.Error("no file may be written when preflight fails")
	}
	for _, c := range e.git.Subcommands() {
		if c == "add" || c == "commit" {
			t.Errorf("mutating git command after failed preflight: %v", e.git.Calls())
		}
	}
}

func TestPublish_RejectsBeforeMutation(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)
	testutil.WriteFile(t, e.vaultDir, "notes/n.md", post)
	testutil.WriteFile(t, e.vaultDir, "blog/private/secret.md", post)
	outside := testutil.WriteFile(t, t.TempDir(), "blog/x.md", post)

	tests := []struct {
		name   string
		source string
		slug   string
		kind   apperr.Kind
	}{
		{"outside publishable dirs", "notes/n.md", "n", apperr.KindIntegrity},
		{"excluded dir", "blog/private/secret.md", "secret", apperr.KindIntegrity},
		{"traversal", "../blog/x.md", "x", apperr.KindIntegrity},
		{"absolute outside vault", outside, "x", apperr.KindIntegrity},
		{"missing source", "blog/missing.md", "missing", apperr.KindInput},
		{"empty source", "", "p", apperr.KindInput},
		{"slug with separator", "blog/p.md", "a/b", apperr.KindInput},
		{"empty slug", "blog/p.md", "", apperr.KindInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.pipeline.Publish(context.Background(), tt.source, tt.slug)
			if got := apperr.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %v, want %v (err %v)", got, tt.kind, err)
			}
		})
	}
	if len(e.git.Calls()) != 0 {
		t.Errorf("git must not run for rejected input, got %v", e.git.Calls())
	}
	entries, err := os.ReadDir(e.repoDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("publication repository was modified: %v", entries)
	}
}

func TestUnpublish_Success(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.repoDir, "content/blog/2024/p.md", post)

	res, err := e.pipeline.Unpublish(context.Background(), "p")
	if err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if res.URL != "" || res.TargetPath != "content/blog/drafts/p.md" {
		t.Errorf("unexpected result %+v", res)
	}
	if e.exists(t, "content/blog/2024/p.md") || !e.exists(t, "content/blog/drafts/p.md") {
		t.Error("file should have moved into drafts")
	}
	calls := e.git.Calls()
	wantTail := []string{
		"add -A -- content/blog/2024/p.md content/blog/drafts/p.md",
		"commit -m Unpublish: p -- content/blog/2024/p.md content/blog/drafts/p.md",
		"pull --rebase --autostash",
		"push",
	}
	if diff := cmp.Diff(wantTail, calls[len(calls)-len(wantTail):]); diff != "" {
		t.Errorf("git calls mismatch (-want +got):\n%s", diff)
	}
	if rec := e.lastTransition(t); rec.Op != models.OpUnpublish || rec.Status != models.StatusSucceeded {
		t.Errorf("unexpected journal record %+v", rec)
	}
}

func TestUnpublish_UntrackedCopyStagesOnlyDraft(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.repoDir, "content/blog/2025/loose.md", post)
	e.git.On("ls-files", "error: pathspec 'content/blog/2025/loose.md' did not match any file(s) known to git\n", errors.New("exit status 1"))

	if _, err := e.pipeline.Unpublish(context.Background(), "loose"); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	calls := e.git.Calls()
	wantTail := []string{
		"add -- content/blog/drafts/loose.md",
		"commit -m Unpublish: loose -- content/blog/drafts/loose.md",
		"pull --rebase --autostash",
		"push",
	}
	if diff := cmp.Diff(wantTail, calls[len(calls)-len(wantTail):]); diff != "" {
		t.Errorf("git calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpublish_TrackingCheckFailureMovesNothing(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.repoDir, "content/blog/2024/p.md", post)
	e.git.On("ls-files", "fatal: index file corrupt\n", errors.New("exit status 128"))

	_, err := e.pipeline.Unpublish(context.Background(), "p")
	if !errors.Is(err, apperr.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !e.exists(t, "content/blog/2024/p.md") || e.exists(t, "content/blog/drafts/p.md") {
		t.Error("published copy must stay in place")
	}
}

func TestPublish_YearFollowsUTC(t *testing.T) {
	// 23:30 on New Year's Eve two hours behind UTC is already next year in UTC.
	eve := func() time.Time { return time.Date(2025, 12, 31, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600)) }
	e := newEnvAt(t, eve)
	testutil.WriteFile(t, e.vaultDir, "blog/p.md", post)

	res, err := e.pipeline.Publish(context.Background(), "blog/p.md", "p")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.TargetPath != "content/blog/2026/p.md" || res.URL != "https://example.com/blog/2026/p" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestUnpublish_RefusesToOverwriteDraft(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.repoDir, "content/blog/2024/p.md", "published")
	testutil.WriteFile(t, e.repoDir, "content/blog/drafts/p.md", "existing draft")

	_, err := e.pipeline.Unpublish(context.Background(), "p")
	if !errors.Is(err, apperr.ErrPrecondition) || !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected precondition/already exists, got %v", err)
	}
	if !e.exists(t, "content/blog/2024/p.md") {
		t.Error("published copy must stay in place")
	}
	data, _ := e.repoFS.Read("content/blog/drafts/p.md")
	if string(data) != "existing draft" {
		t.Errorf("draft was overwritten: %q", data)
	}
	for _, c := range e.git.Subcommands() {
		if c == "add" {
			t.Errorf("nothing should be staged: %v", e.git.Calls())
		}
	}
}

func TestUnpublish_NotPublished(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline.Unpublish(context.Background(), "ghost")
	if !errors.Is(err, apperr.ErrNotFound) || !errors.Is(err, apperr.ErrInput) {
		t.Fatalf("expected not found input error, got %v", err)
	}
}

func TestUnpublish_DetachedHead(t *testing.T) {
	e := newEnv(t)
	testutil.WriteFile(t, e.repoDir, "content/blog/2024/p.md", post)
	e.git.On("branch --show-current", "", nil)

	_, err := e.pipeline.Unpublish(context.Background(), "p")
	if !errors.Is(err, apperr.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if !e.exists(t, "content/blog/2024/p.md") {
		t.Error("published copy must not move when preflight fails")
	}
	if _, err := os.Stat(filepath.Join(e.repoDir, "content", "blog", "drafts")); !os.IsNotExist(err) {
		t.Error("drafts directory should not be created")
	}
}
