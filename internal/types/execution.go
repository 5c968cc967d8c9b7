package types

import (
	"time"
)

// ExecutionStatus is the outcome of one plugin invocation
type ExecutionStatus string

const (
	StatusSuccess   ExecutionStatus = "success"
	StatusFailure   ExecutionStatus = "failure"
	StatusTimeout   ExecutionStatus = "timeout"
	StatusCancelled ExecutionStatus = "cancelled"
)

// IsValid checks if the status value is valid
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// ErrorKind classifies why an invocation did not succeed.
type ErrorKind string

const (
	ErrorNone        ErrorKind = ""
	ErrorInvocation  ErrorKind = "invocation"
	ErrorTimeout     ErrorKind = "timeout"
	ErrorOutputParse ErrorKind = "output_parse"
	ErrorCancelled   ErrorKind = "cancelled"
)

// RawOutput is what an adapter hands back from one invocation.
type RawOutput struct {
	Stdout   []byte `json:"-"`
	Stderr   []byte `json:"-"`
	ExitCode int    `json:"exit_code"`
}

// ExecutionResult records one (package, plugin) invocation. It is created by
// the executor once the invocation finishes and not modified afterwards;
// WithParseFailure returns a new value.
type ExecutionResult struct {
	Package   string          `json:"package"`
	Plugin    string          `json:"plugin"`
	Status    ExecutionStatus `json:"status"`
	Output    RawOutput       `json:"output"`
	Duration  time.Duration   `json:"duration"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Message   string          `json:"message,omitempty"` // diagnostic for non-success results
}

// Succeeded reports whether the invocation completed and was accepted.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// WithParseFailure returns a copy of r marked as a failure because its output
// could not be parsed.
func (r ExecutionResult) WithParseFailure(err error) ExecutionResult {
	r.Status = StatusFailure
	r.ErrorKind = ErrorOutputParse
	r.Message = err.Error()
	return r
}
