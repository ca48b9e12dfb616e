package modal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/modal-labs/libmodal/modal-go"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/canary/internal/environment"
)

const (
	// ProjectsDir is the sandbox-local cache of working copies. It does not
	// survive the sandbox, so every run clones fresh.
	ProjectsDir = "/canary/projects"
	// LinterDir is where the candidate linter build is uploaded.
	LinterDir = "/canary/linter"
)

// ProviderConfig holds Modal-specific configuration.
type ProviderConfig struct {
	// AppName is the name of the Modal app to use. If empty, a unique name is generated.
	AppName string
	// Regions specifies the Modal regions (e.g., "us-east", "us-west").
	Regions []string
	// Verbose enables detailed sandbox logging.
	Verbose bool
	// DockerfileCommands are applied on top of the base image, e.g. to
	// install git into a slim node image.
	DockerfileCommands []string
}

// ParseProviderConfig extracts Modal-specific config from the generic config map.
func ParseProviderConfig(config map[string]any) ProviderConfig {
	pc := ProviderConfig{}
	if config == nil {
		return pc
	}
	if v, ok := config["app_name"].(string); ok {
		pc.AppName = v
	}
	if v, ok := config["region"].(string); ok {
		pc.Regions = []string{v}
	}
	if v, ok := config["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				pc.Regions = append(pc.Regions, s)
			}
		}
	}
	if v, ok := config["verbose"].(bool); ok {
		pc.Verbose = v
	}
	if v, ok := config["dockerfile_commands"].([]any); ok {
		for _, c := range v {
			if s, ok := c.(string); ok {
				pc.DockerfileCommands = append(pc.DockerfileCommands, s)
			}
		}
	}
	return pc
}

// Provider implements the Modal environment provider using Modal Sandboxes.
type Provider struct {
	client *modal.Client
	config ProviderConfig
	logger hclog.Logger
}

// MinImageBuilderVersion is the minimum required Modal image builder version.
// Dockerfile commands such as WORKDIR require version 2025.06 or later.
const MinImageBuilderVersion = "2025.06"

// NewProvider creates a new Modal provider.
func NewProvider(config ProviderConfig, logger hclog.Logger) (*Provider, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("modal")

	if len(config.DockerfileCommands) > 0 {
		if err := checkImageBuilderVersion(logger); err != nil {
			return nil, err
		}
	}

	logger.Debug("initializing modal client")
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// ConfigReader reads Modal configuration.
type ConfigReader interface {
	ReadConfig() ([]byte, error)
}

// cliConfigReader reads config by executing the modal CLI.
type cliConfigReader struct{}

func (c *cliConfigReader) ReadConfig() ([]byte, error) {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return nil, fmt.Errorf("modal CLI not found: %w", err)
	}
	cmd := exec.Command(modalPath, "config", "show")
	return cmd.Output()
}

// defaultConfigReader is the default ConfigReader used in production.
var defaultConfigReader ConfigReader = &cliConfigReader{}

func checkImageBuilderVersion(logger hclog.Logger) error {
	return checkImageBuilderVersionWith(defaultConfigReader, logger)
}

// checkImageBuilderVersionWith verifies the version using the provided ConfigReader.
func checkImageBuilderVersionWith(reader ConfigReader, logger hclog.Logger) error {
	output, err := reader.ReadConfig()
	if err != nil {
		return fmt.Errorf("failed to get modal config: %w", err)
	}

	var config struct {
		ImageBuilderVersion *string `json:"image_builder_version"`
	}
	if err := json.Unmarshal(output, &config); err != nil {
		return fmt.Errorf("failed to parse modal config: %w", err)
	}

	if config.ImageBuilderVersion == nil || *config.ImageBuilderVersion == "" {
		return fmt.Errorf("modal image_builder_version is not set; "+
			"dockerfile_commands require version %s or later. "+
			"Run: modal config set image_builder_version %s",
			MinImageBuilderVersion, MinImageBuilderVersion)
	}

	if *config.ImageBuilderVersion < MinImageBuilderVersion {
		return fmt.Errorf("modal image_builder_version %q is too old; "+
			"dockerfile_commands require version %s or later. "+
			"Run: modal config set image_builder_version %s",
			*config.ImageBuilderVersion, MinImageBuilderVersion, MinImageBuilderVersion)
	}

	logger.Debug("modal image builder version check passed", "version", *config.ImageBuilderVersion)
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "modal"
}

// appName picks the configured app name, then the run's environment name.
func (p *Provider) appName(opts environment.CreateEnvironmentOptions) string {
	switch {
	case p.config.AppName != "":
		return p.config.AppName
	case opts.Name != "":
		return opts.Name
	default:
		return fmt.Sprintf("canary-%d", time.Now().UnixNano())
	}
}

// CreateEnvironment creates a Modal sandbox and uploads the candidate linter.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	appName := p.appName(opts)

	p.logger.Debug("creating modal app", "name", appName)

	app, err := p.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal app: %w", err)
	}

	image := p.client.Images.FromRegistry(opts.Image, nil)
	if len(p.config.DockerfileCommands) > 0 {
		image = image.DockerfileCommands(p.config.DockerfileCommands, nil)
		// Build eagerly so we catch build errors early
		p.logger.Debug("building modal image", "base_image", opts.Image, "commands", len(p.config.DockerfileCommands))
		image, err = image.Build(ctx, app)
		if err != nil {
			return nil, fmt.Errorf("building image: %w", err)
		}
	}

	cpuCount := opts.CPUs
	if cpuCount <= 0 {
		cpuCount = 1
	}
	memoryMiB := opts.MemoryMB
	if memoryMiB <= 0 {
		memoryMiB = 2048
	}

	envVars := make(map[string]string)
	for k, v := range opts.Env {
		envVars[k] = v
	}

	p.logger.Debug("creating modal sandbox",
		"app", appName,
		"image", opts.Image,
		"cpus", cpuCount,
		"memory_mib", memoryMiB,
		"regions", p.config.Regions)

	sandbox, err := p.client.Sandboxes.Create(ctx, app, image, &modal.SandboxCreateParams{
		CPU:       float64(cpuCount),
		MemoryMiB: memoryMiB,
		Env:       envVars,
		Timeout:   24 * time.Hour, // Maximum allowed
		Verbose:   p.config.Verbose,
		Regions:   p.config.Regions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal sandbox: %w", err)
	}

	env := &ModalEnvironment{
		sandbox: sandbox,
		appName: appName,
		logger:  p.logger.With("sandbox_id", sandbox.SandboxID),
	}

	if err := env.MkdirAll(ctx, ProjectsDir); err != nil {
		env.Destroy(context.Background())
		return nil, fmt.Errorf("creating projects directory: %w", err)
	}

	linterPath, err := filepath.Abs(opts.LinterPath)
	if err != nil {
		env.Destroy(context.Background())
		return nil, fmt.Errorf("resolving linter path: %w", err)
	}
	p.logger.Info("uploading candidate linter", "src", linterPath, "dst", LinterDir)
	if err := env.copyDirTo(ctx, linterPath, LinterDir); err != nil {
		env.Destroy(context.Background())
		return nil, fmt.Errorf("uploading linter: %w", err)
	}

	return env, nil
}

// ModalEnvironment represents a running Modal sandbox.
type ModalEnvironment struct {
	sandbox *modal.Sandbox
	appName string
	logger  hclog.Logger
}

// ID returns the sandbox ID.
func (e *ModalEnvironment) ID() string {
	return e.sandbox.SandboxID
}

func (e *ModalEnvironment) ProjectsDir() string {
	return ProjectsDir
}

func (e *ModalEnvironment) LinterPath() string {
	return LinterDir
}

// copyDirTo recursively copies a host directory into the sandbox, skipping
// version control metadata. Executable bits are restored afterwards.
func (e *ModalEnvironment) copyDirTo(ctx context.Context, src, dst string) error {
	var executables []string

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		dstPath := path.Join(dst, filepath.ToSlash(relPath))

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return e.MkdirAll(ctx, dstPath)
		}

		info, err := os.Stat(p)
		if err != nil {
			// Dangling symlink
			e.logger.Debug("skipping unreadable file", "path", p, "error", err)
			return nil
		}
		if info.IsDir() {
			// Symlinked directory, not followed
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		if err := e.WriteFile(ctx, dstPath, data); err != nil {
			return err
		}
		if info.Mode()&0111 != 0 {
			executables = append(executables, dstPath)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for len(executables) > 0 {
		n := min(len(executables), 200)
		argv := append([]string{"chmod", "+x"}, executables[:n]...)
		if _, err := e.execSimple(ctx, argv...); err != nil {
			return fmt.Errorf("restoring file modes: %w", err)
		}
		executables = executables[n:]
	}
	return nil
}

// execSimple runs a command and returns the exit code.
func (e *ModalEnvironment) execSimple(ctx context.Context, argv ...string) (int, error) {
	return e.Exec(ctx, argv, nil, nil, environment.ExecOptions{})
}

// Exec executes a command in the sandbox.
func (e *ModalEnvironment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	execParams := &modal.SandboxExecParams{
		Env: opts.Env,
	}
	if opts.Timeout > 0 {
		execParams.Timeout = opts.Timeout
	}
	if opts.WorkDir != "" {
		execParams.Workdir = opts.WorkDir
	}

	cmdPreview := strings.Join(argv, " ")
	if len(cmdPreview) > 100 {
		cmdPreview = cmdPreview[:100] + "..."
	}
	e.logger.Trace("executing command in modal sandbox", "command", cmdPreview, "workdir", opts.WorkDir)

	process, err := e.sandbox.Exec(ctx, argv, execParams)
	if err != nil {
		return -1, fmt.Errorf("executing command: %w", err)
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if stdout == stderr {
		w := &lockedWriter{w: stdout}
		stdout, stderr = w, w
	}

	// Drain both streams before waiting so neither pipe can block the process.
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, process.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, process.Stderr)
		return err
	})
	if err := g.Wait(); err != nil {
		return -1, fmt.Errorf("reading command output: %w", err)
	}

	exitCode, err := process.Wait(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "timed out") || ctx.Err() == context.DeadlineExceeded {
			return -1, fmt.Errorf("command timed out")
		}
		return -1, fmt.Errorf("waiting for process: %w", err)
	}

	if exitCode != 0 {
		e.logger.Debug("command exited with non-zero code", "command", cmdPreview, "exit_code", exitCode)
	}

	return exitCode, nil
}

// lockedWriter serializes writes from the two stream copiers when they share
// a destination.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (e *ModalEnvironment) Exists(ctx context.Context, p string) (bool, error) {
	code, err := e.execSimple(ctx, "test", "-e", p)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

func (e *ModalEnvironment) ReadFile(ctx context.Context, p string) ([]byte, error) {
	exists, err := e.Exists(ctx, p)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("reading %s: %w", p, fs.ErrNotExist)
	}

	f, err := e.sandbox.Open(ctx, p, "r")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}

	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return content, nil
}

func (e *ModalEnvironment) WriteFile(ctx context.Context, p string, data []byte) error {
	f, err := e.sandbox.Open(ctx, p, "w")
	if err != nil {
		return fmt.Errorf("opening destination file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing to destination: %w", err)
	}

	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing file: %w", err)
	}

	return f.Close()
}

func (e *ModalEnvironment) MkdirAll(ctx context.Context, p string) error {
	code, err := e.execSimple(ctx, "mkdir", "-p", p)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("creating directory %s: exit code %d", p, code)
	}
	return nil
}

func (e *ModalEnvironment) RemoveAll(ctx context.Context, p string) error {
	code, err := e.execSimple(ctx, "rm", "-rf", p)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("removing %s: exit code %d", p, code)
	}
	return nil
}

// Destroy terminates the sandbox and stops its app.
func (e *ModalEnvironment) Destroy(ctx context.Context) error {
	e.logger.Debug("destroying modal sandbox", "app", e.appName)

	if err := e.sandbox.Terminate(ctx); err != nil {
		if !strings.Contains(err.Error(), "already terminated") &&
			!strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("terminating sandbox: %w", err)
		}
	}

	// The modal-go SDK doesn't expose AppStop on the public API, so we use the CLI.
	if err := e.stopApp(ctx); err != nil {
		return fmt.Errorf("stopping app: %w", err)
	}
	return nil
}

// stopApp stops the Modal app using the modal CLI.
func (e *ModalEnvironment) stopApp(ctx context.Context) error {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return fmt.Errorf("modal CLI not found: the modal-go SDK does not expose the AppStop API, " +
			"so the CLI is required to clean up apps. Install it with: pip install modal")
	}

	cmd := exec.CommandContext(ctx, modalPath, "app", "stop", e.appName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Ignore errors if app is already stopped or not found
		outStr := string(output)
		if strings.Contains(outStr, "already stopped") ||
			strings.Contains(outStr, "not found") ||
			strings.Contains(outStr, "Could not find") {
			return nil
		}
		return fmt.Errorf("modal app stop failed: %s", outStr)
	}
	return nil
}
