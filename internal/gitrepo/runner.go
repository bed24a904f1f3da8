// Package gitrepo drives the publication repository: the git subprocess used
// to mutate it and go-git for read-only inspection.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/starford/dispatch/internal/metrics"
)

// Runner executes git subcommands inside a repository and returns their
// combined output. A non-nil error means the command failed; the output is
// still returned so callers can inspect it.
type Runner interface {
	Run(ctx context.Context, repo string, args ...string) (string, error)
}

// CLI runs the git binary.
type CLI struct {
	binary  string
	metrics metrics.Recorder
}

// NewCLI creates a runner for binary ("git" when empty). rec may be nil.
func NewCLI(binary string, rec metrics.Recorder) *CLI {
	if binary == "" {
		binary = "git"
	}
	return &CLI{binary: binary, metrics: metrics.OrNoop(rec)}
}

func (c *CLI) Run(ctx context.Context, repo string, args ...string) (string, error) {
	// #nosec G204 -- fixed binary from config, arguments built by this package
	cmd := exec.CommandContext(ctx, c.binary, append([]string{"-C", repo}, args...)...)
	// Output is matched against English messages, and git must never prompt.
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()

	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}
	c.metrics.IncGitCommand(sub, err == nil)
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w", sub, err)
	}
	return string(out), nil
}

var _ Runner = (*CLI)(nil)
