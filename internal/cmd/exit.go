package cmd

import (
	"fmt"
	"io"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// Process exit statuses.
const (
	ExitOK = 0
	// ExitFailure covers storage, configuration and other internal failures.
	ExitFailure = 1
	// ExitRejected means the engine refused the request: bad input, an
	// unknown task or worker, a cycle, or an illegal state change.
	ExitRejected = 2
)

// ExitCode maps the error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.IsUserFacing(err):
		return ExitRejected
	default:
		return ExitFailure
	}
}

// printError writes err to w, labelled by its severity.
func printError(w io.Writer, err error) {
	label := errorStyle.Render("Error:")
	if errors.IsUserFacing(err) && errors.GetSeverity(err) < errors.SeverityError {
		label = warningStyle.Render("Rejected:")
	}
	fmt.Fprintln(w, label, err)
}
