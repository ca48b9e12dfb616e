package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/spachava753/canary/internal/environment"
	"github.com/spachava753/canary/internal/manifest"
	"github.com/spachava753/canary/internal/models"
	"github.com/spachava753/canary/internal/printer"
	"github.com/spachava753/canary/internal/workspace"
)

// ProjectExecutor runs the candidate linter against a single project.
type ProjectExecutor struct {
	env     environment.Environment
	ws      *workspace.Manager
	printer *printer.Printer
	linter  models.LinterSettings
	npm     string
	timeout time.Duration
	logger  hclog.Logger
}

// NewProjectExecutor creates an executor running in env.
func NewProjectExecutor(env environment.Environment, ws *workspace.Manager, p *printer.Printer, cfg models.Settings, logger hclog.Logger) *ProjectExecutor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ProjectExecutor{
		env:     env,
		ws:      ws,
		printer: p,
		linter:  cfg.Linter,
		npm:     cfg.Tools.NPM,
		timeout: cfg.StepTimeoutDuration,
		logger:  logger.Named("project"),
	}
}

// Execute places the working copy, installs the linter with the project's
// plugins and lints it. Setup failures are recorded in the result's Error;
// the outcome tells the caller whether to carry on.
func (e *ProjectExecutor) Execute(ctx context.Context, p models.Project) *models.ProjectResult {
	result := &models.ProjectResult{
		Name:      p.Name,
		Repo:      p.Repo,
		Commit:    p.Commit,
		StartedAt: time.Now(),
	}
	defer func() {
		result.EndedAt = time.Now()
		result.Durations.TotalSec = result.EndedAt.Sub(result.StartedAt).Seconds()
	}()

	logger := e.logger.With("project", p.Name)

	// Phase 1: working copy
	start := time.Now()
	err := e.placeWorkingCopy(ctx, p)
	result.Durations.WorkspaceSec = since(start)
	if err != nil {
		return setupFailed(result, err)
	}

	// Phase 2: dependencies
	start = time.Now()
	e.printer.Progress("Installing dependencies for %s", p.Name)
	installArgs, err := e.resolveDependencies(ctx, p)
	if err != nil {
		result.Durations.InstallSec = since(start)
		return setupFailed(result, err)
	}
	result.InstallArgs = installArgs
	logger.Debug("installing", "packages", installArgs)

	argv := append([]string{e.npm, "install", "--ignore-scripts", e.env.LinterPath()}, installArgs...)
	_, err = environment.RunStep(ctx, e.env, models.StepInstall, argv, environment.ExecOptions{Timeout: e.timeout, WorkDir: e.ws.Dir(p)})
	result.Durations.InstallSec = since(start)
	if err != nil {
		return setupFailed(result, err)
	}

	// Phase 3: lint
	start = time.Now()
	e.printer.Progress("Linting %s", p.Name)
	code, output, err := e.lint(ctx, p)
	result.Durations.LintSec = since(start)
	if err != nil {
		return setupFailed(result, err)
	}
	result.LintExit = &code
	result.Output = output

	if code == 0 {
		result.Outcome = models.OutcomeClean
		e.printer.Success("Successfully linted %s with no errors", p.Name)
	} else {
		result.Outcome = models.OutcomeFindings
		logger.Debug("linter reported findings", "exit_code", code)
		e.printer.Failure(fmt.Sprintf("Linting %s resulted in an error:", p.Name), output)
	}
	return result
}

// placeWorkingCopy clones or fetches the project and checks out its commit.
// A leftover directory that is not a checkout is removed and cloned again.
func (e *ProjectExecutor) placeWorkingCopy(ctx context.Context, p models.Project) error {
	exists, err := e.ws.Exists(ctx, p)
	if err != nil {
		return &models.StepError{Step: models.StepClone, ExitCode: -1, Err: fmt.Errorf("checking working copy: %w", err)}
	}

	if exists {
		usable, err := e.ws.Usable(ctx, p)
		if err != nil {
			return &models.StepError{Step: models.StepFetch, ExitCode: -1, Err: fmt.Errorf("checking working copy: %w", err)}
		}
		if !usable {
			e.logger.Warn("discarding unusable working copy", "project", p.Name, "dir", e.ws.Dir(p))
			if err := e.ws.Remove(ctx, p); err != nil {
				return err
			}
			exists = false
		}
	}

	if exists {
		e.printer.Progress("Fetching %s", p.Name)
		err = e.ws.Fetch(ctx, p)
	} else {
		e.printer.Progress("Cloning %s", p.Repo)
		err = e.ws.Clone(ctx, p)
	}
	if err != nil {
		return err
	}

	e.printer.Progress("Checking out %s", p.Commit)
	return e.ws.Checkout(ctx, p)
}

// resolveDependencies returns the packages installed alongside the linter.
// Without a manifest an empty node_modules is created so the installer does
// not walk up into an enclosing project.
func (e *ProjectExecutor) resolveDependencies(ctx context.Context, p models.Project) ([]string, error) {
	dir := e.ws.Dir(p)
	data, err := e.env.ReadFile(ctx, path.Join(dir, manifest.FileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := e.env.MkdirAll(ctx, path.Join(dir, "node_modules")); err != nil {
			return nil, &models.StepError{Step: models.StepManifest, ExitCode: -1, Err: fmt.Errorf("creating node_modules: %w", err)}
		}
		return manifest.InstallArgs(e.linter.Name, nil, p.Dependencies), nil
	case err != nil:
		return nil, &models.StepError{Step: models.StepManifest, ExitCode: -1, Err: err}
	}

	declared, err := manifest.Parse(data)
	if err != nil {
		return nil, &models.StepError{Step: models.StepManifest, ExitCode: -1, Err: err}
	}
	return manifest.InstallArgs(e.linter.Name, declared, p.Dependencies), nil
}

// lint runs the installed linter binary. A non-zero exit is not an error.
func (e *ProjectExecutor) lint(ctx context.Context, p models.Project) (int, string, error) {
	dir := e.ws.Dir(p)
	bin := path.Join(dir, "node_modules", ".bin", e.linter.Name)
	argv := append([]string{bin}, p.Args...)
	argv = append(argv, "--format="+e.linter.Format)

	var out bytes.Buffer
	code, err := e.env.Exec(ctx, argv, &out, &out, environment.ExecOptions{Timeout: e.timeout, WorkDir: dir})
	if err != nil {
		return -1, out.String(), &models.StepError{
			Step:     models.StepLint,
			Command:  argv[0],
			Args:     argv[1:],
			ExitCode: -1,
			Output:   out.String(),
			Err:      err,
		}
	}
	return code, out.String(), nil
}

func setupFailed(result *models.ProjectResult, err error) *models.ProjectResult {
	result.Outcome = models.OutcomeSetupFailed
	var stepErr *models.StepError
	if !errors.As(err, &stepErr) {
		stepErr = &models.StepError{Step: models.StepPrepare, ExitCode: -1, Err: err}
	}
	result.Error = stepErr
	return result
}

func since(t time.Time) *float64 {
	d := time.Since(t).Seconds()
	return &d
}
