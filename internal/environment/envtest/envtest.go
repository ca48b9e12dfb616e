// Package envtest provides an in-memory environment.Environment for tests.
package envtest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/spachava753/canary/internal/environment"
)

// Call records one Exec invocation.
type Call struct {
	Argv    []string
	WorkDir string
	Env     map[string]string
	Timeout time.Duration
}

// String renders the call as "<workdir>$ argv...".
func (c Call) String() string {
	return c.WorkDir + "$ " + strings.Join(c.Argv, " ")
}

// Result is what a Handler tells the fake to do with a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Handler decides the outcome of a command. It may mutate the fake's files,
// e.g. to simulate a clone creating a directory.
type Handler func(env *Environment, call Call) Result

// Environment is a scripted environment. Commands without a matching handler
// succeed silently.
type Environment struct {
	mu       sync.Mutex
	projects string
	linter   string
	files    map[string][]byte
	dirs     map[string]bool
	handlers []handlerEntry

	Calls     []Call
	Destroyed bool
}

type handlerEntry struct {
	match func(Call) bool
	fn    Handler
}

// New creates a fake environment with the given projects directory and
// linter path.
func New(projectsDir, linterPath string) *Environment {
	return &Environment{
		projects: projectsDir,
		linter:   linterPath,
		files:    make(map[string][]byte),
		dirs:     make(map[string]bool),
	}
}

// Handle registers fn for commands whose argv starts with prefix. Later
// registrations take precedence.
func (e *Environment) Handle(prefix []string, fn Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handlerEntry{
		match: func(c Call) bool {
			if len(c.Argv) < len(prefix) {
				return false
			}
			for i, p := range prefix {
				if c.Argv[i] != p {
					return false
				}
			}
			return true
		},
		fn: fn,
	})
}

// Exit is a Handler returning a fixed exit code and output.
func Exit(code int, stdout, stderr string) Handler {
	return func(*Environment, Call) Result {
		return Result{ExitCode: code, Stdout: stdout, Stderr: stderr}
	}
}

// SetFile stores a file, creating its parent directories.
func (e *Environment) SetFile(name string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setFileLocked(name, data)
}

func (e *Environment) setFileLocked(name string, data []byte) {
	name = path.Clean(name)
	e.files[name] = data
	e.mkdirLocked(path.Dir(name))
}

// File returns a stored file.
func (e *Environment) File(name string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[path.Clean(name)]
	return data, ok
}

// Mkdir creates a directory and its parents.
func (e *Environment) Mkdir(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mkdirLocked(name)
}

func (e *Environment) mkdirLocked(name string) {
	for p := path.Clean(name); ; p = path.Dir(p) {
		e.dirs[p] = true
		if parent := path.Dir(p); parent == p {
			return
		}
	}
}

// Commands returns the recorded argv of every call, joined by spaces.
func (e *Environment) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Calls))
	for i, c := range e.Calls {
		out[i] = strings.Join(c.Argv, " ")
	}
	return out
}

func (e *Environment) ID() string          { return "fake" }
func (e *Environment) ProjectsDir() string { return e.projects }
func (e *Environment) LinterPath() string  { return e.linter }

func (e *Environment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	call := Call{
		Argv:    append([]string(nil), argv...),
		WorkDir: opts.WorkDir,
		Env:     opts.Env,
		Timeout: opts.Timeout,
	}

	e.mu.Lock()
	e.Calls = append(e.Calls, call)
	var fn Handler
	for i := len(e.handlers) - 1; i >= 0; i-- {
		if e.handlers[i].match(call) {
			fn = e.handlers[i].fn
			break
		}
	}
	e.mu.Unlock()

	if fn == nil {
		return 0, nil
	}

	res := fn(e, call)
	if stdout != nil && res.Stdout != "" {
		io.WriteString(stdout, res.Stdout)
	}
	if stderr != nil && res.Stderr != "" {
		io.WriteString(stderr, res.Stderr)
	}
	if res.Err != nil {
		return -1, res.Err
	}
	return res.ExitCode, nil
}

func (e *Environment) Exists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name = path.Clean(name)
	_, isFile := e.files[name]
	return isFile || e.dirs[name], nil
}

func (e *Environment) ReadFile(ctx context.Context, name string) ([]byte, error) {
	data, ok := e.File(name)
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", name, fs.ErrNotExist)
	}
	return data, nil
}

func (e *Environment) WriteFile(ctx context.Context, name string, data []byte) error {
	e.SetFile(name, data)
	return nil
}

func (e *Environment) MkdirAll(ctx context.Context, name string) error {
	e.Mkdir(name)
	return nil
}

func (e *Environment) RemoveAll(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name = path.Clean(name)
	prefix := name + "/"
	for p := range e.files {
		if p == name || strings.HasPrefix(p, prefix) {
			delete(e.files, p)
		}
	}
	for p := range e.dirs {
		if p == name || strings.HasPrefix(p, prefix) {
			delete(e.dirs, p)
		}
	}
	return nil
}

func (e *Environment) Destroy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Destroyed = true
	return nil
}

// Provider hands out a fixed Environment.
type Provider struct {
	Env     *Environment
	Err     error
	Created int
	Opts    environment.CreateEnvironmentOptions
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	p.Created++
	p.Opts = opts
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Env, nil
}
