package convert

import (
	"context"

	"github.com/tars-home/modelforge/internal/artifacts"
)

// GraphExporter turns a source model into a portable intermediate graph at
// outputPath. Implementations stage their output and rename it into place so
// an interrupted export never leaves a readable partial file.
type GraphExporter interface {
	Export(ctx context.Context, spec ModelSpec, outputPath string) (artifacts.Artifact, error)
}

// CompileOptions carries everything the target compiler needs beyond the
// input graph.
type CompileOptions struct {
	TargetPlatform     string
	Precision          Precision
	BatchSize          int
	MaxSeqLen          int
	CalibrationSamples int
	OutputPath         string
}

// TargetCompiler compiles an intermediate graph into an accelerator binary.
// Compilation is the pipeline's only long-running operation; implementations
// must honor context cancellation.
type TargetCompiler interface {
	Compile(ctx context.Context, input artifacts.Artifact, opts CompileOptions) (artifacts.Artifact, error)
}

// RunRepository persists conversion run records.
type RunRepository interface {
	Save(run ConversionRun) error
	List() ([]ConversionRun, error)
}
