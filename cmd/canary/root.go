package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/spachava753/canary/internal/config"
	"github.com/spachava753/canary/internal/environment"
	"github.com/spachava753/canary/internal/environment/docker"
	"github.com/spachava753/canary/internal/environment/local"
	"github.com/spachava753/canary/internal/environment/modal"
	"github.com/spachava753/canary/internal/executor"
	"github.com/spachava753/canary/internal/models"
	"github.com/spachava753/canary/internal/printer"
)

const (
	envVarLogLevel = "CANARY_LOG_LEVEL"
	envVarLogPath  = "CANARY_LOG_PATH"
)

// errLintFindings marks a run that completed but is not clean. The console
// output already explains it.
var errLintFindings = errors.New("lint canary failed")

type rootOptions struct {
	configPath string
	projects   string
	cacheDir   string
	report     string
	envType    string
	logLevel   string
}

// NewRootCmd builds the canary command writing console output to stdout and
// stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "canary [flags] <linter-path>",
		Short: "Run a candidate eslint build against a corpus of real projects",
		Long: `canary lints every project listed in projects.yml with a local build of the
linter and exits non-zero if any of them reports problems or cannot be set up.
Working copies are kept in a cache directory and pinned to the listed commits.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd, opts, args[0], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", config.SettingsFile, "settings file; ignored when absent unless set explicitly")
	f.StringVar(&opts.projects, "projects", "", "project list (default from settings, projects.yml)")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "directory holding the projects' working copies")
	f.StringVar(&opts.report, "report", "", "write a JSON run report to this path")
	f.StringVar(&opts.envType, "env", "", "environment to run commands in: local, docker, apple or modal")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error or off (env "+envVarLogLevel+")")

	return cmd
}

func run(cmd *cobra.Command, opts *rootOptions, linterPath string, stdout, stderr io.Writer) error {
	cfg, err := loadSettings(opts.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)
	if err := config.Finalize(&cfg); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	provider, err := newProvider(cfg.Environment, logger)
	if err != nil {
		return err
	}

	o := executor.NewOrchestrator(cfg, provider, printer.New(stdout, stderr), logger)
	result, err := o.Run(cmd.Context(), linterPath)
	if err != nil {
		if executor.IsCancelled(err) {
			logger.Warn("run interrupted")
		}
		return err
	}
	if result.Failed() {
		return errLintFindings
	}
	return nil
}

// loadSettings reads the settings file without validating it. A missing file
// is only an error when its path was given explicitly.
func loadSettings(path string, explicit bool) (models.Settings, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return config.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	return config.ReadSettingsFile(path)
}

func applyOverrides(cfg *models.Settings, opts *rootOptions) {
	if opts.projects != "" {
		cfg.ProjectsFile = opts.projects
	}
	if opts.cacheDir != "" {
		cfg.CacheDir = opts.cacheDir
	}
	if opts.report != "" {
		cfg.ReportPath = opts.report
	}
	if opts.envType != "" {
		cfg.Environment.Type = opts.envType
	}
	switch {
	case opts.logLevel != "":
		cfg.LogLevel = opts.logLevel
	case os.Getenv(envVarLogLevel) != "":
		cfg.LogLevel = strings.TrimSpace(os.Getenv(envVarLogLevel))
	}
}

// newLogger writes logs to CANARY_LOG_PATH when set, otherwise to stderr.
func newLogger(level string, stderr io.Writer) (hclog.Logger, func(), error) {
	output := stderr
	closeFn := func() {}

	if logPath := strings.TrimSpace(os.Getenv(envVarLogPath)); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file (%s): %w", logPath, err)
		}
		output = f
		closeFn = func() { f.Close() }
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "canary",
		Level:  hclog.LevelFromString(level),
		Output: output,
	})
	return logger, closeFn, nil
}

func newProvider(cfg models.EnvironmentConfig, logger hclog.Logger) (environment.Provider, error) {
	switch cfg.Type {
	case "local":
		return local.NewProvider(), nil
	case "docker":
		return docker.NewProvider(docker.CLIDocker, logger), nil
	case "apple":
		return docker.NewProvider(docker.CLIApple, logger), nil
	case "modal":
		p, err := modal.NewProvider(modal.ParseProviderConfig(cfg.ProviderConfig), logger)
		if err != nil {
			return nil, fmt.Errorf("creating modal provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported environment type: %s", cfg.Type)
	}
}
