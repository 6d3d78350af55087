package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tars-home/modelforge/internal/artifacts"
)

// ConvertService runs the export → compile pipeline for one model spec.
// State across runs lives entirely in the model cache directory; the service
// re-derives it by probing the injected cache before each stage.
type ConvertService struct {
	Logger   *slog.Logger
	Cache    artifacts.Cache
	Layout   artifacts.Layout
	Exporter GraphExporter
	Compiler TargetCompiler
	Runs     RunRepository // optional; nil disables run records
}

// Run executes the pipeline for the requested spec. The returned run record
// is non-nil whenever the request itself was valid, including failed runs.
// There are no automatic retries; a FAILED run requires operator action and
// a fresh invocation.
func (s *ConvertService) Run(ctx context.Context, request *ConversionRequest) (*ConversionRun, error) {
	if s.Cache == nil {
		return nil, errors.New("artifact cache is not configured")
	}
	if s.Exporter == nil || s.Compiler == nil {
		return nil, errors.New("exporter and compiler must be configured")
	}
	if request == nil {
		return nil, errors.New("conversion request is required")
	}

	spec := request.Spec
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model spec: %w", err)
	}
	if request.TargetPlatform == "" {
		return nil, errors.New("target platform is required")
	}

	logger := s.logger().With(
		"model", spec.ID,
		"component", spec.Component,
		"target", request.TargetPlatform,
		"precision", spec.Precision,
	)

	run := &ConversionRun{
		ID:             uuid.NewString(),
		Spec:           spec,
		TargetPlatform: request.TargetPlatform,
		State:          StateNotStarted,
		StartedAt:      time.Now(),
	}
	defer s.persist(logger, run)

	onnxPath := s.Layout.ONNXPath(spec.Component, spec.BaseName())
	compiledPath := s.Layout.CompiledPath(spec.Component, spec.BaseName(), spec.Quantized())

	// A present compiled artifact short-circuits the whole pipeline.
	if s.Cache.Exists(compiledPath) {
		compiled := s.describe(compiledPath, artifacts.CompiledArtifact)
		run.Stages = append(run.Stages,
			StageResult{Stage: StageExport, Status: StageSkippedCached},
			StageResult{Stage: StageCompile, Status: StageSkippedCached, Artifact: &compiled},
		)
		if err := s.transition(logger, run, StateCompiled); err != nil {
			return run, err
		}
		logger.Info("compiled artifact cached, nothing to do",
			"path", compiledPath,
			"size", compiled.Size,
		)
		return run, nil
	}

	onnx, err := s.exportStage(ctx, logger, run, onnxPath)
	if err != nil {
		return run, err
	}

	if err := s.compileStage(ctx, logger, run, request, onnx, compiledPath); err != nil {
		return run, err
	}
	return run, nil
}

// exportStage yields a valid intermediate artifact or fails the run.
// Compilation is never attempted without it.
func (s *ConvertService) exportStage(ctx context.Context, logger *slog.Logger, run *ConversionRun, onnxPath string) (artifacts.Artifact, error) {
	if s.Cache.Exists(onnxPath) {
		onnx := s.describe(onnxPath, artifacts.ONNXArtifact)
		run.Stages = append(run.Stages, StageResult{
			Stage:    StageExport,
			Status:   StageSkippedCached,
			Artifact: &onnx,
		})
		if err := s.transition(logger, run, StateExported); err != nil {
			return artifacts.Artifact{}, err
		}
		logger.Info("intermediate artifact cached, skipping export",
			"stage", StageExport,
			"path", onnxPath,
			"size", onnx.Size,
		)
		return onnx, nil
	}

	if err := s.transition(logger, run, StateExporting); err != nil {
		return artifacts.Artifact{}, err
	}

	started := time.Now()
	onnx, err := s.Exporter.Export(ctx, run.Spec, onnxPath)
	elapsed := time.Since(started)

	if err != nil {
		run.Stages = append(run.Stages, StageResult{
			Stage:    StageExport,
			Status:   StageFailed,
			Error:    err.Error(),
			Duration: elapsed,
		})
		if terr := s.transition(logger, run, StateFailed); terr != nil {
			return artifacts.Artifact{}, terr
		}
		logger.Error("export failed", "stage", StageExport, "duration", elapsed, "error", err)
		return artifacts.Artifact{}, err
	}

	run.Stages = append(run.Stages, StageResult{
		Stage:    StageExport,
		Status:   StageSuccess,
		Artifact: &onnx,
		Duration: elapsed,
	})
	if err := s.transition(logger, run, StateExported); err != nil {
		return artifacts.Artifact{}, err
	}
	logger.Info("export completed",
		"stage", StageExport,
		"duration", elapsed,
		"path", onnx.Path,
		"size", onnx.Size,
	)
	return onnx, nil
}

func (s *ConvertService) compileStage(ctx context.Context, logger *slog.Logger, run *ConversionRun, request *ConversionRequest, onnx artifacts.Artifact, compiledPath string) error {
	if err := s.transition(logger, run, StateCompiling); err != nil {
		return err
	}

	opts := CompileOptions{
		TargetPlatform:     request.TargetPlatform,
		Precision:          run.Spec.Precision,
		BatchSize:          run.Spec.BatchSize,
		MaxSeqLen:          run.Spec.MaxSeqLen,
		CalibrationSamples: request.CalibrationSamples,
		OutputPath:         compiledPath,
	}

	started := time.Now()
	compiled, err := s.Compiler.Compile(ctx, onnx, opts)
	elapsed := time.Since(started)

	if err != nil {
		run.Stages = append(run.Stages, StageResult{
			Stage:    StageCompile,
			Status:   StageFailed,
			Error:    err.Error(),
			Duration: elapsed,
		})
		if terr := s.transition(logger, run, StateFailed); terr != nil {
			return terr
		}
		logger.Error("compilation failed", "stage", StageCompile, "duration", elapsed, "error", err)
		return err
	}

	run.Stages = append(run.Stages, StageResult{
		Stage:    StageCompile,
		Status:   StageSuccess,
		Artifact: &compiled,
		Duration: elapsed,
	})
	if err := s.transition(logger, run, StateCompiled); err != nil {
		return err
	}
	logger.Info("compilation completed",
		"stage", StageCompile,
		"duration", elapsed,
		"path", compiled.Path,
		"size", compiled.Size,
	)
	return nil
}

func (s *ConvertService) transition(logger *slog.Logger, run *ConversionRun, to RunState) error {
	next, err := Transition(run.State, to)
	if err != nil {
		logger.Error("pipeline state machine violation", "from", run.State, "to", to)
		return err
	}
	logger.Debug("pipeline transition", "from", run.State, "to", next)
	run.State = next
	return nil
}

func (s *ConvertService) describe(path string, kind artifacts.ArtifactKind) artifacts.Artifact {
	artifact := artifacts.Artifact{Kind: kind, Path: path}
	description, err := s.Cache.Describe(path)
	if err != nil {
		s.logger().Warn("describe cached artifact", "path", path, "error", err)
		return artifact
	}
	artifact.Size = description.Size
	return artifact
}

func (s *ConvertService) persist(logger *slog.Logger, run *ConversionRun) {
	run.FinishedAt = time.Now()
	if s.Runs == nil {
		return
	}
	if err := s.Runs.Save(*run); err != nil {
		logger.Warn("save run record", "run_id", run.ID, "error", err)
	}
}

func (s *ConvertService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
