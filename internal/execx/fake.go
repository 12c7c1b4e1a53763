package execx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Fake is an in-memory Runner for tests. Handler decides each command's
// result; Paths lists the binaries LookPath should find.
type Fake struct {
	mu      sync.Mutex
	Calls   []Command
	Handler func(cmd Command) (Result, error)
	Paths   map[string]bool
}

// NewFake creates a Fake where every command succeeds with no output.
func NewFake(paths ...string) *Fake {
	f := &Fake{Paths: map[string]bool{}}
	for _, p := range paths {
		f.Paths[p] = true
	}
	return f
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	h := f.Handler
	f.mu.Unlock()

	if h == nil {
		return Result{}, nil
	}
	res, err := h(cmd)
	if err != nil {
		if _, ok := err.(*ExitError); !ok {
			err = &ExitError{Cmd: cmd.String(), Code: 1, Output: string(res.Output), Err: err}
		}
	}
	return res, err
}

// LookPath implements Runner.
func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

// Commands returns every recorded call rendered as "name arg...".
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, strings.TrimSpace(c.Name+" "+strings.Join(c.Args, " ")))
	}
	return out
}

// Ran reports whether a call whose rendered form starts with prefix was made.
func (f *Fake) Ran(prefix string) bool {
	for _, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
