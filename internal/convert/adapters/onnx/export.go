// Package onnx exports sentence-transformer models to the ONNX interchange
// format by driving the external exporter tool. The ML framework itself is
// deliberately outside this binary; the adapter owns argument construction,
// staging, and error classification.
package onnx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tars-home/modelforge/internal/artifacts"
	"github.com/tars-home/modelforge/internal/convert"
)

// Ensure ScriptExporter satisfies the graph exporter interface.
var _ convert.GraphExporter = (*ScriptExporter)(nil)

const (
	defaultPython = "python3"
	defaultScript = "/usr/local/lib/modelforge/convert_st_to_onnx.py"

	// The exporter script exits with this code when the model identifier
	// cannot be resolved or fetched, as opposed to a tracing failure.
	loadFailureExitCode = 3
)

// ScriptExporter shells out to the Python exporter script.
type ScriptExporter struct {
	Logger *slog.Logger
	Python string
	Script string
}

func (e *ScriptExporter) logger() *slog.Logger {
	if e != nil && e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Export writes the intermediate graph for spec at outputPath. Output is
// staged under a hidden sibling name and renamed into place on success, so
// a killed export never leaves a readable partial artifact.
func (e *ScriptExporter) Export(ctx context.Context, spec convert.ModelSpec, outputPath string) (artifacts.Artifact, error) {
	if err := spec.Validate(); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("invalid model spec: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("create artifact directory: %w", err)
	}

	staging := artifacts.StagingPath(outputPath)
	defer os.Remove(staging)

	command := e.command(spec, staging)
	logger := e.logger().With("model", spec.ID, "output", outputPath)
	logger.Info("running exporter", "command", strings.Join(command, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return artifacts.Artifact{}, fmt.Errorf("export interrupted: %w", ctx.Err())
		}
		cause := toolFailure(err, &stderr)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == loadFailureExitCode {
			return artifacts.Artifact{}, &convert.LoadError{ModelID: spec.ID, Cause: cause}
		}
		return artifacts.Artifact{}, &convert.ExportError{ModelID: spec.ID, Cause: cause}
	}

	info, err := os.Stat(staging)
	if err != nil || info.Size() == 0 {
		return artifacts.Artifact{}, &convert.ExportError{
			ModelID: spec.ID,
			Cause:   errors.New("exporter reported success but produced no output"),
		}
	}

	checksum, err := artifacts.FileChecksum(staging)
	if err != nil {
		return artifacts.Artifact{}, &convert.ExportError{ModelID: spec.ID, Cause: err}
	}

	if err := os.Rename(staging, outputPath); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("publish onnx artifact: %w", err)
	}

	return artifacts.Artifact{
		Kind:      artifacts.ONNXArtifact,
		Path:      outputPath,
		Size:      info.Size(),
		Checksum:  &checksum,
		CreatedAt: time.Now(),
		Metadata: map[string]any{
			"model":       spec.ID,
			"revision":    spec.Revision,
			"batch_size":  spec.BatchSize,
			"max_seq_len": spec.MaxSeqLen,
		},
	}, nil
}

func (e *ScriptExporter) command(spec convert.ModelSpec, outputPath string) []string {
	python := e.Python
	if python == "" {
		python = defaultPython
	}
	script := e.Script
	if script == "" {
		script = defaultScript
	}

	command := []string{
		python, script,
		"--model", spec.ID,
		"--output", outputPath,
		"--max-seq-length", strconv.Itoa(spec.MaxSeqLen),
		"--batch-size", strconv.Itoa(spec.BatchSize),
	}
	if spec.Revision != "" {
		command = append(command, "--revision", spec.Revision)
	}
	return command
}

// toolFailure folds the tail of the tool's stderr into the error so the
// operator sees the underlying cause without digging through logs.
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
