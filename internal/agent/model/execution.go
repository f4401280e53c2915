package model

import "context"

// ExecutionError is a structured fault from the sandbox environment.
type ExecutionError struct {
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// Execution is the observable result of one sandbox run. Stdout is the sole
// result channel back to the orchestrator: every generated step prints a
// marker and its resulting structure.
type Execution struct {
	Stdout []string        `json:"stdout"`
	Error  *ExecutionError `json:"error,omitempty"`
}

// Failed reports whether the run produced a structured error.
func (e *Execution) Failed() bool {
	return e != nil && e.Error != nil
}

// SandboxRequest describes one isolated code run.
type SandboxRequest struct {
	// Code is the full source to execute, bootstrap included.
	Code string
	// DatasetPath is the working dataset file staged into the sandbox
	// as dataset.csv before the code runs. Empty means no dataset.
	DatasetPath string
}

// SandboxRunner executes generated code in an isolated environment.
// Implementations guarantee process/filesystem isolation, no network, and
// deterministic output given the same code and dataset. Unexpected
// provisioning failures are returned as the error; code-level faults are
// reported inside Execution.Error.
type SandboxRunner interface {
	Run(ctx context.Context, req SandboxRequest) (*Execution, error)
}
