// Package rknn compiles ONNX graphs into RKNN accelerator binaries by
// driving the external rknn-toolkit2 conversion script. Calibration-based
// int8 quantization happens here and can take several minutes, so the
// adapter is cancelable through the caller's context.
package rknn

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tars-home/modelforge/internal/artifacts"
	"github.com/tars-home/modelforge/internal/calibration"
	"github.com/tars-home/modelforge/internal/convert"
)

// Ensure ToolCompiler satisfies the target compiler interface.
var _ convert.TargetCompiler = (*ToolCompiler)(nil)

const (
	defaultPython = "python3"
	defaultScript = "/usr/local/lib/modelforge/convert_onnx_to_rknn.py"
)

// ToolCompiler shells out to the RKNN conversion script.
type ToolCompiler struct {
	Logger *slog.Logger
	Python string
	Script string
}

func (c *ToolCompiler) logger() *slog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Compile produces the accelerator binary for input at opts.OutputPath.
// For int8 precision a synthetic calibration set is generated first; a zero
// sample count fails fast before the tool is ever invoked.
func (c *ToolCompiler) Compile(ctx context.Context, input artifacts.Artifact, opts convert.CompileOptions) (artifacts.Artifact, error) {
	if input.Path == "" {
		return artifacts.Artifact{}, &convert.CompileError{Reason: "input artifact path is required"}
	}
	if opts.TargetPlatform == "" {
		return artifacts.Artifact{}, &convert.CompileError{Reason: "target platform is required"}
	}
	if opts.OutputPath == "" {
		return artifacts.Artifact{}, &convert.CompileError{Reason: "output path is required"}
	}

	quantize := opts.Precision == convert.PrecisionInt8
	if quantize && opts.CalibrationSamples <= 0 {
		return artifacts.Artifact{}, &convert.CompileError{
			Reason: fmt.Sprintf("int8 quantization requires calibration samples, got %d", opts.CalibrationSamples),
		}
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("create artifact directory: %w", err)
	}

	logger := c.logger().With(
		"input", input.Path,
		"target", opts.TargetPlatform,
		"precision", opts.Precision,
	)

	command := []string{c.python(), c.script(), input.Path}

	staging := artifacts.StagingPath(opts.OutputPath)
	defer os.Remove(staging)
	command = append(command, staging, "--target", opts.TargetPlatform)

	if quantize {
		datasetPath, cleanup, err := c.writeCalibrationSet(logger, opts)
		if err != nil {
			return artifacts.Artifact{}, err
		}
		defer cleanup()
		command = append(command, "--quantize", "--dataset", datasetPath)
	}

	logger.Info("running target compiler", "command", strings.Join(command, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return artifacts.Artifact{}, fmt.Errorf("compilation interrupted: %w", ctx.Err())
		}
		return artifacts.Artifact{}, &convert.CompileError{
			Reason: fmt.Sprintf("target compiler failed for %s", opts.TargetPlatform),
			Cause:  toolFailure(err, &stderr),
		}
	}

	info, err := os.Stat(staging)
	if err != nil || info.Size() == 0 {
		return artifacts.Artifact{}, &convert.CompileError{
			Reason: "compiler reported success but produced no output",
		}
	}

	checksum, err := artifacts.FileChecksum(staging)
	if err != nil {
		return artifacts.Artifact{}, &convert.CompileError{Reason: "checksum compiled artifact", Cause: err}
	}

	if err := os.Rename(staging, opts.OutputPath); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("publish compiled artifact: %w", err)
	}

	return artifacts.Artifact{
		Kind:      artifacts.CompiledArtifact,
		Path:      opts.OutputPath,
		Size:      info.Size(),
		Checksum:  &checksum,
		CreatedAt: time.Now(),
		Metadata: map[string]any{
			"target":      opts.TargetPlatform,
			"precision":   string(opts.Precision),
			"source":      input.Path,
			"batch_size":  opts.BatchSize,
			"max_seq_len": opts.MaxSeqLen,
		},
	}, nil
}

// writeCalibrationSet materializes the ephemeral dataset in a temp dir that
// is removed once compilation finishes.
func (c *ToolCompiler) writeCalibrationSet(logger *slog.Logger, opts convert.CompileOptions) (string, func(), error) {
	set, err := calibration.Generate(opts.CalibrationSamples, opts.BatchSize, opts.MaxSeqLen)
	if err != nil {
		return "", nil, &convert.CompileError{Reason: "generate calibration set", Cause: err}
	}

	dir, err := os.MkdirTemp("", "modelforge-calibration-*")
	if err != nil {
		return "", nil, fmt.Errorf("create calibration directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	datasetPath := filepath.Join(dir, "dataset.jsonl")
	if err := set.WriteFile(datasetPath); err != nil {
		cleanup()
		return "", nil, &convert.CompileError{Reason: "write calibration set", Cause: err}
	}

	logger.Info("generated calibration set",
		"samples", set.Len(),
		"shape", fmt.Sprintf("%dx%d", opts.BatchSize, opts.MaxSeqLen),
		"dataset", datasetPath,
	)
	return datasetPath, cleanup, nil
}

func (c *ToolCompiler) python() string {
	if c.Python != "" {
		return c.Python
	}
	return defaultPython
}

func (c *ToolCompiler) script() string {
	if c.Script != "" {
		return c.Script
	}
	return defaultScript
}

func toolFailure(err error, stderr *bytes.Buffer) error {
	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		return err
	}
	lines := strings.Split(detail, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return fmt.Errorf("%w: %s", err, strings.Join(lines, " | "))
}
