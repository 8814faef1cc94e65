package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/WenyuChiou/WAGF-sub003/pkg/config"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitUnavailable = 3
	ExitCancelled   = 130
)

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	var ve config.ValidationError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ve):
		return ExitConfig
	case errors.Is(err, governance.ErrAdapterUnavailable):
		return ExitUnavailable
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	default:
		return ExitFailure
	}
}
