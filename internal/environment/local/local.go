package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/spachava753/canary/internal/environment"
)

// Provider runs commands directly on the host.
type Provider struct{}

// NewProvider creates a new local provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "local"
}

// CreateEnvironment returns an environment rooted at the host cache directory.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	cacheDir, err := filepath.Abs(opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}
	linterPath, err := filepath.Abs(opts.LinterPath)
	if err != nil {
		return nil, fmt.Errorf("resolving linter path: %w", err)
	}

	return &LocalEnvironment{
		cacheDir:   cacheDir,
		linterPath: linterPath,
		env:        opts.Env,
	}, nil
}

// LocalEnvironment executes on the host. Every command gets an explicit
// working directory; the process's own directory is never changed.
type LocalEnvironment struct {
	cacheDir   string
	linterPath string
	env        map[string]string
}

// ID returns a fixed identifier.
func (e *LocalEnvironment) ID() string {
	return "local"
}

func (e *LocalEnvironment) ProjectsDir() string {
	return e.cacheDir
}

func (e *LocalEnvironment) LinterPath() string {
	return e.linterPath
}

// Exec runs argv on the host.
func (e *LocalEnvironment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(e.env) > 0 || len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), mergeEnv(e.env, opts.Env)...)
	}

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return -1, fmt.Errorf("command timed out")
		}
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}

func (e *LocalEnvironment) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (e *LocalEnvironment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (e *LocalEnvironment) WriteFile(ctx context.Context, path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func (e *LocalEnvironment) MkdirAll(ctx context.Context, path string) error {
	return os.MkdirAll(path, 0755)
}

func (e *LocalEnvironment) RemoveAll(ctx context.Context, path string) error {
	return os.RemoveAll(path)
}

// Destroy is a no-op; the cache directory outlives the run.
func (e *LocalEnvironment) Destroy(ctx context.Context) error {
	return nil
}

// mergeEnv flattens env maps into KEY=VALUE pairs, later maps winning.
func mergeEnv(maps ...map[string]string) []string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, merged[k]))
	}
	return out
}
