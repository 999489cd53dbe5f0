package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/zkapauthz/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Runtime failure (server error, etc.)
	ExitCommandError = 2 // Command error (bad flags, unusable node directory, etc.)
)

// Error codes reported in structured output.
const (
	ErrCodeStoreOpen      = "E101" // ledger could not be opened
	ErrCodeSchema         = "E102" // ledger has an incompatible schema
	ErrCodeInvalidVoucher = "E103" // voucher text is malformed
	ErrCodeConfig         = "E104" // node configuration is unusable
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// openStoreError describes a failure to open the ledger. Both kinds are
// fatal: the node directory needs manual attention before the plugin can run.
func openStoreError(err error) *ExitError {
	var schemaErr *store.SchemaError
	if errors.As(err, &schemaErr) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("[%s] incompatible ledger", ErrCodeSchema), err)
	}
	var openErr *store.StoreOpenError
	if errors.As(err, &openErr) {
		msg := fmt.Sprintf("[%s] cannot open ledger", ErrCodeStoreOpen)
		if errno, ok := openErr.Errno(); ok {
			msg = fmt.Sprintf("%s (errno %d)", msg, int(errno))
		}
		return WrapExitError(ExitCommandError, msg, err)
	}
	return WrapExitError(ExitFailure, "failed to open ledger", err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E101", "E102", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result. In text mode text is printed; in
// JSON mode data is wrapped in a CLIResponse.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := fmt.Fprint(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return err
}
