package testutil

import (
	"context"
	"strings"
	"sync"
)

// GitResponse is the scripted outcome of a git invocation.
type GitResponse struct {
	Output string
	Err    error
}

// FakeGit is a scripted git runner. Responses are looked up by the full
// argument list joined with spaces, then by subcommand alone. Unscripted
// commands succeed with empty output, except "branch --show-current" which
// answers "main" and "rev-parse --git-dir" which answers ".git".
type FakeGit struct {
	mu        sync.Mutex
	responses map[string][]GitResponse
	calls     [][]string
	// OnRun, when set, is invoked before each command is answered.
	OnRun func(args []string)
}

// NewFakeGit returns a runner that behaves like a clean repository on main.
func NewFakeGit() *FakeGit {
	f := &FakeGit{responses: map[string][]GitResponse{}}
	f.On("rev-parse --git-dir", ".git\n", nil)
	f.On("branch --show-current", "main\n", nil)
	return f
}

// On sets the response for key, replacing earlier scripts.
func (f *FakeGit) On(key, output string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = []GitResponse{{Output: output, Err: err}}
}

// Then queues an additional response for key; the last one repeats.
func (f *FakeGit) Then(key, output string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = append(f.responses[key], GitResponse{Output: output, Err: err})
}

func (f *FakeGit) Run(_ context.Context, _ string, args ...string) (string, error) {
	if f.OnRun != nil {
		f.OnRun(args)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))

	for _, key := range []string{strings.Join(args, " "), first(args)} {
		queue, ok := f.responses[key]
		if !ok || len(queue) == 0 {
			continue
		}
		r := queue[0]
		if len(queue) > 1 {
			f.responses[key] = queue[1:]
		}
		return r.Output, r.Err
	}
	return "", nil
}

// Calls returns every invocation as a space-joined argument string.
func (f *FakeGit) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// Subcommands returns the first argument of every invocation.
func (f *FakeGit) Subcommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = first(c)
	}
	return out
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
