package environment

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spachava753/canary/internal/models"
)

// RunStep runs argv in env and captures its combined output. A command that
// cannot be started, or exits non-zero, yields a *models.StepError carrying
// the command and what it wrote.
func RunStep(ctx context.Context, env Environment, step models.Step, argv []string, opts ExecOptions) (string, error) {
	if len(argv) == 0 {
		return "", &models.StepError{Step: step, ExitCode: -1, Err: fmt.Errorf("empty command")}
	}

	var out bytes.Buffer
	code, err := env.Exec(ctx, argv, &out, &out, opts)
	if err != nil {
		return out.String(), &models.StepError{
			Step:     step,
			Command:  argv[0],
			Args:     argv[1:],
			ExitCode: -1,
			Output:   out.String(),
			Err:      err,
		}
	}
	if code != 0 {
		return out.String(), &models.StepError{
			Step:     step,
			Command:  argv[0],
			Args:     argv[1:],
			ExitCode: code,
			Output:   out.String(),
		}
	}
	return out.String(), nil
}
