package rknn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tars-home/modelforge/internal/artifacts"
	"github.com/tars-home/modelforge/internal/convert"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compiler.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func onnxFixture(t *testing.T) artifacts.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("onnx-graph"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return artifacts.Artifact{Kind: artifacts.ONNXArtifact, Path: path, Size: 10}
}

func TestCompileProducesArtifact(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `#!/bin/sh
in="$1"
out="$2"
cat "$in" > "$out"
`)

	outputPath := filepath.Join(t.TempDir(), "embedder", "model.rknn")
	compiler := &ToolCompiler{Python: "/bin/sh", Script: script}

	artifact, err := compiler.Compile(context.Background(), onnxFixture(t), convert.CompileOptions{
		TargetPlatform: "rk3588",
		Precision:      convert.PrecisionFP32,
		BatchSize:      1,
		MaxSeqLen:      256,
		OutputPath:     outputPath,
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if artifact.Kind != artifacts.CompiledArtifact {
		t.Errorf("artifact kind = %s, want compiled", artifact.Kind)
	}
	if artifact.Size == 0 {
		t.Error("artifact size = 0, want non-zero")
	}
	if got := artifact.Metadata["batch_size"]; got != 1 {
		t.Errorf("metadata batch_size = %v, want 1", got)
	}
	if got := artifact.Metadata["max_seq_len"]; got != 256 {
		t.Errorf("metadata max_seq_len = %v, want 256", got)
	}

	entries, err := os.ReadDir(filepath.Dir(outputPath))
	if err != nil {
		t.Fatalf("read artifact dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("artifact dir has %d entries, want only the published artifact", len(entries))
	}
}

func TestCompileQuantizedPassesDataset(t *testing.T) {
	t.Parallel()

	// The stub refuses to compile when --quantize arrives without a
	// readable dataset, mirroring the real tool's behavior.
	script := writeScript(t, `#!/bin/sh
in="$1"
out="$2"
shift 2
dataset=""
quantize=0
while [ $# -gt 0 ]; do
  case "$1" in
    --quantize) quantize=1; shift ;;
    --dataset) dataset="$2"; shift 2 ;;
    *) shift ;;
  esac
done
if [ "$quantize" = "1" ] && [ ! -s "$dataset" ]; then
  echo "missing calibration dataset" >&2
  exit 1
fi
cat "$in" > "$out"
`)

	outputPath := filepath.Join(t.TempDir(), "model_int8.rknn")
	compiler := &ToolCompiler{Python: "/bin/sh", Script: script}

	_, err := compiler.Compile(context.Background(), onnxFixture(t), convert.CompileOptions{
		TargetPlatform:     "rk3588",
		Precision:          convert.PrecisionInt8,
		BatchSize:          1,
		MaxSeqLen:          64,
		CalibrationSamples: 8,
		OutputPath:         outputPath,
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, statErr := os.Stat(outputPath); statErr != nil {
		t.Errorf("compiled artifact missing: %v", statErr)
	}
}

func TestCompileInt8WithoutSamplesFailsFast(t *testing.T) {
	t.Parallel()

	// The script would block forever; the adapter must fail before
	// invoking it.
	script := writeScript(t, `#!/bin/sh
sleep 600
`)

	compiler := &ToolCompiler{Python: "/bin/sh", Script: script}
	started := time.Now()

	_, err := compiler.Compile(context.Background(), onnxFixture(t), convert.CompileOptions{
		TargetPlatform:     "rk3588",
		Precision:          convert.PrecisionInt8,
		BatchSize:          1,
		MaxSeqLen:          256,
		CalibrationSamples: 0,
		OutputPath:         filepath.Join(t.TempDir(), "model_int8.rknn"),
	})
	if err == nil {
		t.Fatal("Compile() error = nil, want fail-fast on zero calibration samples")
	}

	var compileErr *convert.CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("Compile() error = %v, want *convert.CompileError", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Errorf("fail-fast took %s, tool was likely invoked", elapsed)
	}
}

func TestCompileToolFailureCarriesStderr(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `#!/bin/sh
echo "unsupported operator: Erf" >&2
exit 1
`)

	compiler := &ToolCompiler{Python: "/bin/sh", Script: script}
	outputPath := filepath.Join(t.TempDir(), "model.rknn")

	_, err := compiler.Compile(context.Background(), onnxFixture(t), convert.CompileOptions{
		TargetPlatform: "rk3588",
		Precision:      convert.PrecisionFP32,
		BatchSize:      1,
		MaxSeqLen:      256,
		OutputPath:     outputPath,
	})
	if err == nil {
		t.Fatal("Compile() error = nil, want tool failure")
	}

	var compileErr *convert.CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("Compile() error = %v, want *convert.CompileError", err)
	}
	if !strings.Contains(err.Error(), "unsupported operator") {
		t.Errorf("error %q does not carry the tool's stderr", err)
	}
	if _, statErr := os.Stat(outputPath); statErr == nil {
		t.Error("failed compile left an artifact at the final path")
	}
}

func TestCompileCancellation(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `#!/bin/sh
sleep 600
`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	compiler := &ToolCompiler{Python: "/bin/sh", Script: script}
	_, err := compiler.Compile(ctx, onnxFixture(t), convert.CompileOptions{
		TargetPlatform: "rk3588",
		Precision:      convert.PrecisionFP32,
		BatchSize:      1,
		MaxSeqLen:      256,
		OutputPath:     filepath.Join(t.TempDir(), "model.rknn"),
	})
	if err == nil {
		t.Fatal("Compile() error = nil, want cancellation")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Compile() error = %v, want context deadline", err)
	}
}

func TestCompileValidatesOptions(t *testing.T) {
	t.Parallel()

	compiler := &ToolCompiler{Python: "/bin/sh", Script: "/bin/true"}
	input := onnxFixture(t)

	cases := []convert.CompileOptions{
		// missing target platform
		{Precision: convert.PrecisionFP32, OutputPath: "/tmp/out.rknn"},
		// missing output path
		{TargetPlatform: "rk3588", Precision: convert.PrecisionFP32},
	}

	for i, opts := range cases {
		if _, err := compiler.Compile(context.Background(), input, opts); err == nil {
			t.Errorf("case %d: Compile() error = nil, want non-nil", i)
		}
	}

	if _, err := compiler.Compile(context.Background(), artifacts.Artifact{}, convert.CompileOptions{
		TargetPlatform: "rk3588",
		OutputPath:     "/tmp/out.rknn",
	}); err == nil {
		t.Error("Compile() with empty input error = nil, want non-nil")
	}
}
