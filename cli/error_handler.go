package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/grovetools/testwatch/errors"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitError            = 1
	ExitConfig           = 2
	ExitDaemonNotRunning = 3
)

// SilentExit ends the command with a code and no message.
type SilentExit struct {
	Code int
}

func (e *SilentExit) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	var silent *SilentExit
	if stderrors.As(err, &silent) {
		return silent.Code
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound, errors.ErrCodeConfigInvalid:
		return ExitConfig
	case errors.ErrCodeDaemonNotRunning:
		return ExitDaemonNotRunning
	default:
		return ExitError
	}
}

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle prints a user-friendly message for err to the command's stderr.
func (h *ErrorHandler) Handle(cmd *cobra.Command, err error) error {
	var silent *SilentExit
	if stderrors.As(err, &silent) {
		return err
	}

	w := cmd.ErrOrStderr()
	var twErr *errors.TestwatchError
	stderrors.As(err, &twErr)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(w, "❌ Configuration not found. Create testwatch.yml in the project root or pass --config.\n")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(w, "❌ %v\n", err)
		fmt.Fprintf(w, "Run 'testwatch config schema' to see the accepted keys.\n")

	case errors.ErrCodeDaemonNotRunning:
		fmt.Fprintf(w, "❌ The testwatch daemon is not running")
		if twErr != nil && twErr.Details["socket"] != nil {
			fmt.Fprintf(w, " (socket %v)", twErr.Details["socket"])
		}
		fmt.Fprintf(w, "\nStart it with 'testwatch daemon start' or pass --local.\n")

	case errors.ErrCodeRemoteRejected, errors.ErrCodeInvalidInput:
		fmt.Fprintf(w, "❌ %v\n", err)
		if twErr != nil && twErr.Details["path"] != nil {
			fmt.Fprintf(w, "Run 'testwatch status' to list the test files.\n")
		}

	default:
		PrintError(cmd, err)
	}

	if h.Verbose && twErr != nil {
		writeDetails(w, twErr)
	}
	return err
}

func writeDetails(w io.Writer, err *errors.TestwatchError) {
	fmt.Fprintf(w, "\nError details:\n%s\n", err.ToJSON())
}
