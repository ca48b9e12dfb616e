package models

import (
	"fmt"
	"strings"
)

// Step identifies the phase of a project run.
type Step string

const (
	StepPrepare  Step = "prepare"
	StepClone    Step = "clone"
	StepFetch    Step = "fetch"
	StepCheckout Step = "checkout"
	StepManifest Step = "manifest"
	StepInstall  Step = "install"
	StepLint     Step = "lint"
)

// StepError is a failed setup step. It carries the command that failed and
// whatever it wrote, so the caller can decide whether to abort the run.
type StepError struct {
	Step     Step     `json:"step"`
	Command  string   `json:"command,omitempty"`
	Args     []string `json:"args,omitempty"`
	ExitCode int      `json:"exit_code"`
	Output   string   `json:"output,omitempty"`
	Err      error    `json:"-"`
}

func (e *StepError) Error() string {
	if e.Err != nil {
		if e.Command == "" {
			return fmt.Sprintf("%s: %s", e.Step, e.Err)
		}
		return fmt.Sprintf("%s: running '%s': %s", e.Step, e.CommandLine(), e.Err)
	}
	return fmt.Sprintf("The command '%s' exited with an exit code of %d:\n\n%s", e.CommandLine(), e.ExitCode, e.Output)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CommandLine returns the command and its arguments joined by spaces.
func (e *StepError) CommandLine() string {
	return strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
}
