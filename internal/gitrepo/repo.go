package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/models"
)

const fetchTimeout = 15 * time.Second

// Repo is the publication repository working copy.
type Repo struct {
	path        string
	contentRoot string
	git         Runner
	logger      *slog.Logger
}

// New creates a Repo at path. contentRoot is the repository-relative
// directory that publishing writes to; changes under it are expected and
// are left out of the dirty file list.
func New(path, contentRoot string, git Runner, logger *slog.Logger) *Repo {
	return &Repo{path: path, contentRoot: strings.Trim(contentRoot, "/"), git: git, logger: logger}
}

// Path returns the working copy root.
func (r *Repo) Path() string { return r.path }

// Git runs a subcommand in the working copy.
func (r *Repo) Git(ctx context.Context, args ...string) (string, error) {
	return r.git.Run(ctx, r.path, args...)
}

// Preflight verifies the working copy is safe to mutate. It fails on the
// first of: missing path, not a git working copy, detached HEAD, unresolved
// merge conflicts. Unrelated dirty files and an unreachable remote are only
// logged.
func (r *Repo) Preflight(ctx context.Context) error {
	if err := r.checkRepository(ctx); err != nil {
		return err
	}
	branch, err := r.Branch(ctx)
	if err != nil {
		return err
	}
	if branch == "" {
		return apperr.Precondition("preflight", "repository is in detached HEAD state; check out a branch first")
	}
	conflicts, err := r.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return apperr.Precondition("preflight", "unresolved merge conflicts in: "+strings.Join(conflicts, ", "))
	}

	if dirty, err := r.DirtyFiles(ctx); err != nil {
		r.logger.Warn("git: status failed", slog.String("error", err.Error()))
	} else if len(dirty) > 0 {
		r.logger.Info("git: uncommitted changes outside content root",
			slog.Int("count", len(dirty)),
			slog.String("files", strings.Join(dirty, ", ")),
		)
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	if out, err := r.Git(fctx, "fetch", "--dry-run"); err != nil {
		r.logger.Warn("git: fetch dry run failed",
			slog.String("error", err.Error()),
			slog.String("output", strings.TrimSpace(out)),
		)
	}
	return nil
}

// Status reports the repository state without failing. Validity follows the
// same rules as Preflight.
func (r *Repo) Status(ctx context.Context) models.RepositoryState {
	st := models.RepositoryState{DirtyFiles: []string{}, ConflictFiles: []string{}}
	if err := r.checkRepository(ctx); err != nil {
		st.Error = err.Error()
		return st
	}

	var problems []string
	branch, err := r.Branch(ctx)
	switch {
	case err != nil:
		problems = append(problems, err.Error())
	case branch == "":
		problems = append(problems, "detached HEAD")
	}
	st.Branch = branch

	if dirty, err := r.DirtyFiles(ctx); err != nil {
		problems = append(problems, err.Error())
	} else {
		st.DirtyFiles = dirty
	}

	if conflicts, err := r.Conflicts(ctx); err != nil {
		problems = append(problems, err.Error())
	} else if len(conflicts) > 0 {
		st.ConflictFiles = conflicts
		st.HasConflicts = true
		problems = append(problems, fmt.Sprintf("%d conflicted file(s)", len(conflicts)))
	}

	if head, err := Head(r.path); err == nil {
		st.HeadCommit = head.Hash
		st.HeadSubject = head.Subject
	}

	st.OK = !st.HasConflicts && st.Branch != ""
	st.Error = strings.Join(problems, "; ")
	return st
}

func (r *Repo) checkRepository(ctx context.Context) error {
	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.Input("preflight", "repository path does not exist: "+r.path, nil)
	}
	if err != nil {
		return apperr.Input("preflight", "repository path is not accessible", err)
	}
	if !info.IsDir() {
		return apperr.Input("preflight", "repository path is not a directory: "+r.path, nil)
	}
	if out, err := r.Git(ctx, "rev-parse", "--git-dir"); err != nil {
		return &apperr.Error{
			Kind:    apperr.KindPrecondition,
			Step:    "preflight",
			Message: "not a git repository: " + r.path,
			Output:  out,
		}
	}
	return nil
}

// Branch returns the checked-out branch, or "" for a detached HEAD.
func (r *Repo) Branch(ctx context.Context) (string, error) {
	out, err := r.Git(ctx, "branch", "--show-current")
	if err != nil {
		return "", apperr.ExternalTool("preflight", "could not determine current branch", out, err)
	}
	return strings.TrimSpace(out), nil
}

// Conflicts lists files with unresolved merge conflicts.
func (r *Repo) Conflicts(ctx context.Context) ([]string, error) {
	out, err := r.Git(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, apperr.ExternalTool("preflight", "could not list conflicted files", out, err)
	}
	return nonEmptyLines(out), nil
}

// DirtyFiles lists modified or untracked files outside the content root.
func (r *Repo) DirtyFiles(ctx context.Context) ([]string, error) {
	out, err := r.Git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, apperr.ExternalTool("status", "git status failed", out, err)
	}
	files := []string{}
	for _, line := range nonEmptyLines(out) {
		if len(line) < 4 {
			continue
		}
		p := line[3:]
		if _, to, ok := strings.Cut(p, " -> "); ok {
			p = to
		}
		p = strings.Trim(p, `"`)
		if r.underContentRoot(p) {
			continue
		}
		files = append(files, p)
	}
	return files, nil
}

// Tracked reports whether relPath is known to the index. Files copied into
// the repository but never committed are not.
func (r *Repo) Tracked(ctx context.Context, relPath string) (bool, error) {
	out, err := r.Git(ctx, "ls-files", "--error-unmatch", "--", relPath)
	if err == nil {
		return true, nil
	}
	if strings.Contains(out, "did not match") {
		return false, nil
	}
	return false, apperr.ExternalTool("status", "could not check whether "+relPath+" is tracked", out, err)
}

func (r *Repo) underContentRoot(p string) bool {
	if r.contentRoot == "" {
		return false
	}
	p = path.Clean(p)
	return p == r.contentRoot || strings.HasPrefix(p, r.contentRoot+"/")
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
