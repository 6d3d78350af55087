package convert

import "fmt"

// LoadError indicates the source model could not be loaded at all: unknown
// identifier, missing revision, or a failed fetch.
type LoadError struct {
	ModelID string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load model %s: %v", e.ModelID, e.Cause)
	}
	return fmt.Sprintf("load model %s", e.ModelID)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// ExportError indicates the model loaded but could not be traced into the
// intermediate graph format, typically a shape or architecture mismatch.
type ExportError struct {
	ModelID string
	Cause   error
}

func (e *ExportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("export model %s: %v", e.ModelID, e.Cause)
	}
	return fmt.Sprintf("export model %s", e.ModelID)
}

func (e *ExportError) Unwrap() error { return e.Cause }

// CompileError indicates target compilation failed: unsupported operator,
// target mismatch, or calibration failure.
type CompileError struct {
	Reason string
	Cause  error
}

func (e *CompileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compile: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("compile: %s", e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Cause }
