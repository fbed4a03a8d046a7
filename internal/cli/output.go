package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/ceiling/internal/progression"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Failure outcome (unknown dimension, rejected transition, invalid catalog)
	ExitCommandError = 2 // Command error (bad flags, unreadable files, database open failure)
)

// Error codes for failures outside the progression taxonomy.
const (
	ErrCodeUsage    = "E_USAGE"
	ErrCodeIO       = "E_IO"
	ErrCodeCatalog  = "E_CATALOG"
	ErrCodeInternal = "E_INTERNAL"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// ErrCode is the code reported in output, e.g. E_USAGE.
	ErrCode string

	// Reported is set once the error has been written to the output.
	Reported bool
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

// IsReported reports whether err was already written by a command.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // payload, also present on failure outcomes
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // NOT_FOUND, CONFIG_ERROR, E_USAGE, ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Emit writes data. JSON output wraps it in a CLIResponse; text output is
// produced by text.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	return f.Emit(data, func(w io.Writer) {
		fmt.Fprintln(w, data)
	})
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Progression errors exit with ExitFailure under their taxonomy code; an
// *ExitError keeps its own code.
func (f *OutputFormatter) Fail(err error) error {
	code, exit := classify(err)
	_ = f.Error(code, err.Error(), nil)
	return &ExitError{Code: exit, Message: code, Err: err, ErrCode: code, Reported: true}
}

// FailWith reports a failure outcome together with its data.
func (f *OutputFormatter) FailWith(data any, err error, text func(w io.Writer)) error {
	code, exit := classify(err)
	if f.Format == "json" {
		if encErr := f.encode(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  &CLIError{Code: code, Message: err.Error()},
		}); encErr != nil {
			return encErr
		}
	} else {
		text(f.Writer)
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, err.Error())
	}
	return &ExitError{Code: exit, Message: code, Err: err, ErrCode: code, Reported: true}
}

// classify maps an error to its output code and exit code.
func classify(err error) (string, int) {
	if code := progression.CodeOf(err); code != "" {
		return string(code), ExitFailure
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ErrCode
		if code == "" {
			code = ErrCodeInternal
		}
		return code, exitErr.Code
	}
	return ErrCodeInternal, ExitFailure
}

// usageError marks err as a command-line mistake.
func usageError(err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: "invalid usage", Err: err, ErrCode: ErrCodeUsage}
}

// ioError marks err as an environment failure: unreadable files, an
// unopenable database.
func ioError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err, ErrCode: ErrCodeIO}
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
