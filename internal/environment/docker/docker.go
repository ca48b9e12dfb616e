package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/spachava753/canary/internal/environment"
	"github.com/spachava753/canary/internal/util"
)

const (
	// ProjectsDir is where the host cache directory is mounted.
	ProjectsDir = "/canary/projects"
	// LinterDir is where the candidate linter build is mounted.
	LinterDir = "/canary/linter"
)

// CLI names of the container runtimes this provider can drive. Apple's
// container tool accepts the same run/exec/cp/rm verbs as docker.
const (
	CLIDocker = "docker"
	CLIApple  = "container"
)

// Provider implements a container environment provider on top of a
// docker-compatible CLI.
type Provider struct {
	cli    string
	logger hclog.Logger
}

// NewProvider creates a new provider driving the given CLI.
func NewProvider(cli string, logger hclog.Logger) *Provider {
	if cli == "" {
		cli = CLIDocker
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Provider{cli: cli, logger: logger.Named(cli)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	if p.cli == CLIApple {
		return "apple"
	}
	return "docker"
}

// CreateEnvironment starts a long-lived container with the cache directory
// and the candidate linter bind-mounted.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	args, containerID, err := runArgs(opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	p.logger.Debug("starting container", "name", containerID, "image", opts.Image)

	if _, err := exec.LookPath(p.cli); err != nil {
		return nil, fmt.Errorf("%s CLI not found: %w", p.cli, err)
	}

	cmd := exec.CommandContext(ctx, p.cli, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("creating container: %w: %s", err, stderr.String())
	}

	return &DockerEnvironment{
		cli:         p.cli,
		containerID: containerID,
		logger:      p.logger.With("container", containerID),
	}, nil
}

// runArgs builds the `run` arguments for opts.
func runArgs(opts environment.CreateEnvironmentOptions) ([]string, string, error) {
	if opts.Image == "" {
		return nil, "", fmt.Errorf("container environment requires an image")
	}
	cacheDir, err := filepath.Abs(opts.CacheDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving cache directory: %w", err)
	}
	linterPath, err := filepath.Abs(opts.LinterPath)
	if err != nil {
		return nil, "", fmt.Errorf("resolving linter path: %w", err)
	}

	containerID := opts.Name
	if containerID == "" {
		containerID = fmt.Sprintf("canary-%d", time.Now().UnixNano())
	}

	args := []string{
		"run",
		"-d",
		"--name", containerID,
		"-v", cacheDir + ":" + ProjectsDir,
		"-v", linterPath + ":" + LinterDir + ":ro",
	}

	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.Itoa(opts.CPUs))
	}
	if mem := util.FormatMemory(opts.MemoryMB); mem != "" {
		args = append(args, "--memory", mem)
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	args = append(args, opts.Image)
	// Keep container running with sleep infinity
	args = append(args, "sleep", "infinity")

	return args, containerID, nil
}

// DockerEnvironment represents a running container.
type DockerEnvironment struct {
	cli         string
	containerID string
	logger      hclog.Logger
}

// ID returns the container ID.
func (e *DockerEnvironment) ID() string {
	return e.containerID
}

func (e *DockerEnvironment) ProjectsDir() string {
	return ProjectsDir
}

func (e *DockerEnvironment) LinterPath() string {
	return LinterDir
}

// Exec executes a command in the container.
func (e *DockerEnvironment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, e.cli, execArgs(e.containerID, argv, opts)...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	e.logger.Trace("exec", "argv", strings.Join(argv, " "), "workdir", opts.WorkDir)

	err := execCmd.Run()
	if err != nil {
		// Check for context timeout
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

func execArgs(containerID string, argv []string, opts environment.ExecOptions) []string {
	args := []string{"exec"}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}

	args = append(args, containerID)
	return append(args, argv...)
}

// run executes argv, returning its exit code and stderr.
func (e *DockerEnvironment) run(ctx context.Context, argv ...string) (int, string, error) {
	var stderr bytes.Buffer
	code, err := e.Exec(ctx, argv, nil, &stderr, environment.ExecOptions{})
	return code, stderr.String(), err
}

func (e *DockerEnvironment) Exists(ctx context.Context, path string) (bool, error) {
	code, _, err := e.run(ctx, "test", "-e", path)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

func (e *DockerEnvironment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	exists, err := e.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("reading %s: %w", path, fs.ErrNotExist)
	}

	var stdout, stderr bytes.Buffer
	code, err := e.Exec(ctx, []string{"cat", path}, &stdout, &stderr, environment.ExecOptions{})
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("reading %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// WriteFile stages data on the host and copies it into the container.
func (e *DockerEnvironment) WriteFile(ctx context.Context, path string, data []byte) error {
	tmp, err := os.CreateTemp("", "canary-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.cli, "cp", tmp.Name(), fmt.Sprintf("%s:%s", e.containerID, path))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying to container: %w: %s", err, stderr.String())
	}
	return nil
}

func (e *DockerEnvironment) MkdirAll(ctx context.Context, path string) error {
	code, stderr, err := e.run(ctx, "mkdir", "-p", path)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("creating directory %s: %s", path, strings.TrimSpace(stderr))
	}
	return nil
}

func (e *DockerEnvironment) RemoveAll(ctx context.Context, path string) error {
	code, stderr, err := e.run(ctx, "rm", "-rf", path)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("removing %s: %s", path, strings.TrimSpace(stderr))
	}
	return nil
}

// Destroy removes the container. The mounted cache directory is left in place.
func (e *DockerEnvironment) Destroy(ctx context.Context) error {
	// Force remove the container
	cmd := exec.CommandContext(ctx, e.cli, "rm", "-f", e.containerID)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Ignore error if container already removed
		if !strings.Contains(stderr.String(), "No such container") && !strings.Contains(stderr.String(), "not found") {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	return nil
}
