// Package executor runs the candidate linter across the configured projects.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/spachava753/canary/internal/config"
	"github.com/spachava753/canary/internal/environment"
	"github.com/spachava753/canary/internal/models"
	"github.com/spachava753/canary/internal/printer"
	"github.com/spachava753/canary/internal/workspace"
)

// Orchestrator coordinates a canary run over every project.
type Orchestrator struct {
	cfg      models.Settings
	provider environment.Provider
	printer  *printer.Printer
	logger   hclog.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cfg models.Settings, provider environment.Provider, p *printer.Printer, logger hclog.Logger) *Orchestrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Orchestrator{
		cfg:      cfg,
		provider: provider,
		printer:  p,
		logger:   logger,
	}
}

// Run validates the project list, then lints each project in order with the
// linter build at linterPath. A setup failure stops the run; findings do
// not. The returned error is reserved for failures outside the per-project
// steps, such as an invalid project list or cancellation.
func (o *Orchestrator) Run(ctx context.Context, linterPath string) (*models.RunResult, error) {
	projects, err := config.LoadProjects(o.cfg.ProjectsFile)
	if err != nil {
		return nil, err
	}

	linterPath, err = filepath.Abs(linterPath)
	if err != nil {
		return nil, fmt.Errorf("resolving linter path: %w", err)
	}
	if _, err := os.Stat(linterPath); err != nil {
		return nil, fmt.Errorf("linter path: %w", err)
	}

	result := &models.RunResult{
		RunID:         uuid.NewString(),
		LinterPath:    linterPath,
		Environment:   o.provider.Name(),
		TotalProjects: len(projects),
		StartedAt:     time.Now(),
		Results:       make([]models.ProjectResult, 0, len(projects)),
	}
	logger := o.logger.With("run_id", result.RunID)

	runErr := o.run(ctx, logger, result, projects)

	result.EndedAt = time.Now()
	result.TotalDurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()

	if o.cfg.ReportPath != "" {
		if err := WriteReport(o.cfg.ReportPath, result); err != nil {
			logger.Error("writing run report", "path", o.cfg.ReportPath, "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	return result, runErr
}

func (o *Orchestrator) run(ctx context.Context, logger hclog.Logger, result *models.RunResult, projects []models.Project) error {
	logger.Debug("creating environment", "type", o.provider.Name(), "cache_dir", o.cfg.CacheDir)
	env, err := o.provider.CreateEnvironment(ctx, environment.CreateEnvironmentOptions{
		Name:       "canary-" + result.RunID[:8],
		CacheDir:   o.cfg.CacheDir,
		LinterPath: result.LinterPath,
		Image:      o.cfg.Environment.Image,
		CPUs:       o.cfg.Environment.CPUs,
		MemoryMB:   o.cfg.Environment.MemoryMB,
		Env:        o.cfg.Environment.Env,
		Config:     o.cfg.Environment.ProviderConfig,
	})
	if err != nil {
		result.Aborted = true
		return fmt.Errorf("creating environment: %w", err)
	}
	defer func() {
		if err := env.Destroy(context.Background()); err != nil {
			logger.Warn("destroying environment", "id", env.ID(), "error", err)
		}
	}()

	ws := workspace.NewManager(env, o.cfg.Tools.Git, o.cfg.Linter.MarkerFile, logger).
		WithTimeout(o.cfg.StepTimeoutDuration)
	if err := ws.Prepare(ctx); err != nil {
		result.Aborted = true
		return fmt.Errorf("preparing workspace: %w", err)
	}

	executor := NewProjectExecutor(env, ws, o.printer, o.cfg, logger)

	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			return fmt.Errorf("run cancelled: %w", err)
		}

		pr := executor.Execute(ctx, p)
		result.Add(*pr)
		logger.Debug("project finished", "project", p.Name, "outcome", pr.Outcome, "duration_sec", pr.Durations.TotalSec)

		if pr.Outcome == models.OutcomeSetupFailed {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run cancelled: %w", err)
			}
			o.printSetupFailure(pr.Error)
			return nil
		}

		o.printer.Separator()
	}

	if result.FindingProjects > 0 {
		o.printer.Failure("There were some linting errors.", "")
	} else {
		o.printer.Success("Successfully linted %d projects.", len(projects))
	}
	return nil
}

func (o *Orchestrator) printSetupFailure(err *models.StepError) {
	if err.Err != nil || err.Command == "" {
		o.printer.Failure(err.Error(), "")
		return
	}
	headline := fmt.Sprintf("The command '%s' exited with an exit code of %d:", err.CommandLine(), err.ExitCode)
	o.printer.Failure(headline, "\n"+err.Output)
}

// IsCancelled reports whether err stems from the run's context being cancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
