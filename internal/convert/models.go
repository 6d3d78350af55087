package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/tars-home/modelforge/internal/artifacts"
)

// Precision is the numeric precision requested for the compiled artifact.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
	PrecisionInt8 Precision = "int8"
)

// ParsePrecision normalizes a precision label from config or flags.
func ParsePrecision(value string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "fp32", "float32", "full":
		return PrecisionFP32, nil
	case "fp16", "float16", "half":
		return PrecisionFP16, nil
	case "int8", "i8":
		return PrecisionInt8, nil
	default:
		return PrecisionFP32, fmt.Errorf("unknown precision %q", value)
	}
}

// ModelSpec identifies a source model and the shape it is exported with.
// The input shape is fixed at export time; changing batch size or sequence
// length requires a fresh export.
type ModelSpec struct {
	ID        string    `json:"id" yaml:"id"`
	Revision  string    `json:"revision,omitempty" yaml:"revision,omitempty"`
	Component string    `json:"component" yaml:"component"`
	BatchSize int       `json:"batch_size" yaml:"batch_size"`
	MaxSeqLen int       `json:"max_seq_len" yaml:"max_seq_len"`
	Precision Precision `json:"precision" yaml:"precision"`
}

// BaseName returns the final path element of the model identifier, used to
// derive artifact filenames (e.g. "sentence-transformers/all-MiniLM-L6-v2"
// becomes "all-MiniLM-L6-v2").
func (s ModelSpec) BaseName() string {
	id := strings.TrimSuffix(strings.TrimSpace(s.ID), "/")
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// Validate rejects specs the exporter cannot act on.
func (s ModelSpec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("model id is required")
	}
	if strings.TrimSpace(s.Component) == "" {
		return fmt.Errorf("component is required")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	if s.MaxSeqLen <= 0 {
		return fmt.Errorf("max sequence length must be positive, got %d", s.MaxSeqLen)
	}
	switch s.Precision {
	case PrecisionFP32, PrecisionFP16, PrecisionInt8:
		return nil
	default:
		return fmt.Errorf("unknown precision %q", s.Precision)
	}
}

// Quantized reports whether compilation applies int8 post-training
// quantization for this spec.
func (s ModelSpec) Quantized() bool {
	return s.Precision == PrecisionInt8
}

// ConversionRequest carries one pipeline invocation.
type ConversionRequest struct {
	Spec               ModelSpec
	TargetPlatform     string
	CalibrationSamples int
}

// Pipeline stage names as reported in results and logs.
const (
	StageExport  = "export"
	StageCompile = "compile"
)

// StageStatus is the outcome class of a single pipeline stage.
type StageStatus string

const (
	StageSuccess       StageStatus = "success"
	StageSkippedCached StageStatus = "skipped-cached"
	StageFailed        StageStatus = "failed"
)

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Stage    string              `json:"stage"`
	Status   StageStatus         `json:"status"`
	Artifact *artifacts.Artifact `json:"artifact,omitempty"`
	Error    string              `json:"error,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// ConversionRun is the full record of one orchestrator invocation. The run
// owns its stage results; the artifacts themselves are owned by the model
// cache directory convention and re-probed on every invocation.
type ConversionRun struct {
	ID             string        `json:"id"`
	Spec           ModelSpec     `json:"spec"`
	TargetPlatform string        `json:"target_platform"`
	State          RunState      `json:"state"`
	Stages         []StageResult `json:"stages"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Succeeded reports whether the run reached the COMPILED state.
func (r *ConversionRun) Succeeded() bool {
	return r.State == StateCompiled
}

// Stage returns the recorded result for the named stage, if any.
func (r *ConversionRun) Stage(name string) (StageResult, bool) {
	for _, result := range r.Stages {
		if result.Stage == name {
			return result, true
		}
	}
	return StageResult{}, false
}
