package environment

import (
	"context"
	"io"
	"time"
)

// Environment is where the canary's external commands run: the host, a
// container or a remote sandbox. Paths passed to its methods are paths as
// seen from inside the environment.
type Environment interface {
	// ID returns the unique identifier for this environment.
	ID() string

	// ProjectsDir is the directory working copies are placed in.
	ProjectsDir() string

	// LinterPath is the candidate linter build as visible to commands.
	LinterPath() string

	// Exec runs argv, streaming stdout and stderr to the provided writers.
	// A command that runs and exits non-zero is reported through the exit
	// code; the error is reserved for failures to run it at all.
	Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// ReadFile returns the contents of path. A missing file yields an error
	// wrapping fs.ErrNotExist.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or truncates path with data.
	WriteFile(ctx context.Context, path string, data []byte) error

	// MkdirAll creates path and any missing parents.
	MkdirAll(ctx context.Context, path string) error

	// RemoveAll removes path recursively.
	RemoveAll(ctx context.Context, path string) error

	// Destroy releases the environment and cleans up its resources.
	Destroy(ctx context.Context) error
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Provider is a factory for creating environments.
type Provider interface {
	// Name returns the provider name (e.g., "local", "docker", "modal").
	Name() string

	// CreateEnvironment prepares an environment that can see the cache
	// directory and the candidate linter.
	CreateEnvironment(ctx context.Context, opts CreateEnvironmentOptions) (Environment, error)
}

// CreateEnvironmentOptions configures environment creation.
type CreateEnvironmentOptions struct {
	Name       string
	CacheDir   string // host path of the persistent cache
	LinterPath string // host path of the candidate linter build
	Image      string
	CPUs       int
	MemoryMB   int
	Env        map[string]string
	Config     map[string]any
}
