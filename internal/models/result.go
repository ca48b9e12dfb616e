package models

import "time"

// Outcome classifies how a project run ended.
type Outcome string

const (
	OutcomeClean       Outcome = "clean"
	OutcomeFindings    Outcome = "findings"
	OutcomeSetupFailed Outcome = "setup_failed"
)

// ProjectResult contains the outcome of running the linter against one project.
type ProjectResult struct {
	Name        string     `json:"name"`
	Repo        string     `json:"repo"`
	Commit      string     `json:"commit"`
	Outcome     Outcome    `json:"outcome"`
	InstallArgs []string   `json:"install_args"`
	LintExit    *int       `json:"lint_exit_code"`
	Output      string     `json:"output,omitempty"`
	Error       *StepError `json:"error"`
	Durations   Durations  `json:"durations"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     time.Time  `json:"ended_at"`
}

type Durations struct {
	TotalSec     float64  `json:"total_sec"`
	WorkspaceSec *float64 `json:"workspace_sec"`
	InstallSec   *float64 `json:"install_sec"`
	LintSec      *float64 `json:"lint_sec"`
}

// RunResult aggregates the project results of one canary run.
type RunResult struct {
	RunID            string          `json:"run_id"`
	LinterPath       string          `json:"linter_path"`
	Environment      string          `json:"environment"`
	Aborted          bool            `json:"aborted"`
	TotalProjects    int             `json:"total_projects"`
	CleanProjects    int             `json:"clean_projects"`
	FindingProjects  int             `json:"finding_projects"`
	TotalDurationSec float64         `json:"total_duration_sec"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	Results          []ProjectResult `json:"results"`
}

// Failed returns true if any project reported findings or the run was aborted.
func (r *RunResult) Failed() bool {
	return r.Aborted || r.FindingProjects > 0
}

// Add records a project result and updates the counters.
func (r *RunResult) Add(pr ProjectResult) {
	r.Results = append(r.Results, pr)
	switch pr.Outcome {
	case OutcomeClean:
		r.CleanProjects++
	case OutcomeFindings:
		r.FindingProjects++
	case OutcomeSetupFailed:
		r.Aborted = true
	}
}
