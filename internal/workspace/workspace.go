// Package workspace keeps the persistent working copies of the canary
// projects in sync with their pinned commits.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/canary/internal/environment"
	"github.com/spachava753/canary/internal/models"
)

// Manager places working copies under the environment's projects directory.
type Manager struct {
	env        environment.Environment
	git        string
	markerFile string
	timeout    time.Duration
	logger     hclog.Logger
}

// gitEnv keeps git from blocking on a credential prompt for a repository
// that is private or gone.
var gitEnv = map[string]string{"GIT_TERMINAL_PROMPT": "0"}

// NewManager creates a new workspace manager. git is the version-control
// client binary; markerFile is the name of the root-scope marker written into
// the projects directory.
func NewManager(env environment.Environment, git, markerFile string, logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if git == "" {
		git = "git"
	}
	return &Manager{
		env:        env,
		git:        git,
		markerFile: markerFile,
		logger:     logger.Named("workspace"),
	}
}

// WithTimeout bounds every git command the manager runs. Zero means no limit.
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	m.timeout = d
	return m
}

func (m *Manager) execOptions(dir string) environment.ExecOptions {
	return environment.ExecOptions{Env: gitEnv, Timeout: m.timeout, WorkDir: dir}
}

// Root returns the directory holding every working copy.
func (m *Manager) Root() string {
	return m.env.ProjectsDir()
}

// Dir returns the working copy directory of a project.
func (m *Manager) Dir(p models.Project) string {
	return path.Join(m.Root(), p.Name)
}

// Prepare creates the projects directory and writes the marker file if it is
// missing. An existing marker is left untouched.
func (m *Manager) Prepare(ctx context.Context) error {
	if err := m.env.MkdirAll(ctx, m.Root()); err != nil {
		return &models.StepError{Step: models.StepPrepare, ExitCode: -1, Err: fmt.Errorf("creating projects directory: %w", err)}
	}
	if m.markerFile == "" {
		return nil
	}

	marker := path.Join(m.Root(), m.markerFile)
	exists, err := m.env.Exists(ctx, marker)
	if err != nil {
		return &models.StepError{Step: models.StepPrepare, ExitCode: -1, Err: fmt.Errorf("checking marker file: %w", err)}
	}
	if exists {
		m.logger.Debug("marker file present", "path", marker)
		return nil
	}

	data, err := markerContent(m.markerFile)
	if err != nil {
		return &models.StepError{Step: models.StepPrepare, ExitCode: -1, Err: err}
	}
	m.logger.Debug("writing marker file", "path", marker)
	if err := m.env.WriteFile(ctx, marker, data); err != nil {
		return &models.StepError{Step: models.StepPrepare, ExitCode: -1, Err: fmt.Errorf("writing marker file: %w", err)}
	}
	return nil
}

// markerContent renders a config that stops the linter's cascading config
// lookup at the projects directory.
func markerContent(name string) ([]byte, error) {
	root := map[string]bool{"root": true}
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		data, err := json.MarshalIndent(root, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return yaml.Marshal(root)
	}
}

// Exists reports whether the project's working copy is already present.
func (m *Manager) Exists(ctx context.Context, p models.Project) (bool, error) {
	return m.env.Exists(ctx, m.Dir(p))
}

// Usable reports whether an existing working copy is a git checkout that can
// be fetched. An interrupted clone can leave a directory without one.
func (m *Manager) Usable(ctx context.Context, p models.Project) (bool, error) {
	return m.env.Exists(ctx, path.Join(m.Dir(p), ".git"))
}

// Remove deletes the project's working copy.
func (m *Manager) Remove(ctx context.Context, p models.Project) error {
	dir := m.Dir(p)
	m.logger.Debug("removing working copy", "dir", dir)
	if err := m.env.RemoveAll(ctx, dir); err != nil {
		return &models.StepError{Step: models.StepClone, ExitCode: -1, Err: fmt.Errorf("removing %s: %w", dir, err)}
	}
	return nil
}

// Clone clones the project's repository into its working copy directory.
// History is kept because the pinned commit is checked out afterwards.
func (m *Manager) Clone(ctx context.Context, p models.Project) error {
	dest := m.Dir(p)
	m.logger.Debug("cloning repository", "url", p.Repo, "dest", dest)
	_, err := environment.RunStep(ctx, m.env, models.StepClone,
		[]string{m.git, "clone", p.Repo, "--single-branch", dest},
		m.execOptions(m.Root()))
	return err
}

// Fetch updates an existing working copy from its origin.
func (m *Manager) Fetch(ctx context.Context, p models.Project) error {
	dir := m.Dir(p)
	m.logger.Debug("fetching repository", "url", p.Repo, "dir", dir)
	_, err := environment.RunStep(ctx, m.env, models.StepFetch,
		[]string{m.git, "fetch", "origin"},
		m.execOptions(dir))
	return err
}

// Checkout moves the working copy to the project's pinned commit. Files the
// package installer rewrote on a previous run are discarded.
func (m *Manager) Checkout(ctx context.Context, p models.Project) error {
	dir := m.Dir(p)
	m.logger.Debug("checking out commit", "commit", p.Commit, "dir", dir)
	_, err := environment.RunStep(ctx, m.env, models.StepCheckout,
		[]string{m.git, "checkout", "--force", p.Commit},
		m.execOptions(dir))
	return err
}
