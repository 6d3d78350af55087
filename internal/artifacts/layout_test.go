package artifacts

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	t.Parallel()

	layout := Layout{CacheDir: "/var/tars/models"}

	if got := layout.ONNXPath("embedder", "all-MiniLM-L6-v2"); got != "/var/tars/models/embedder/all-MiniLM-L6-v2.onnx" {
		t.Errorf("ONNXPath = %s", got)
	}
	if got := layout.CompiledPath("embedder", "all-MiniLM-L6-v2", false); got != "/var/tars/models/embedder/all-MiniLM-L6-v2.rknn" {
		t.Errorf("CompiledPath = %s", got)
	}
	if got := layout.CompiledPath("reranker", "ms-marco-MiniLM-L-6-v2", true); got != "/var/tars/models/reranker/ms-marco-MiniLM-L-6-v2_int8.rknn" {
		t.Errorf("quantized CompiledPath = %s", got)
	}
	if got := layout.ComponentDir("reranker"); got != "/var/tars/models/reranker" {
		t.Errorf("ComponentDir = %s", got)
	}
}

func TestStagingPathStaysInDestinationDir(t *testing.T) {
	t.Parallel()

	final := "/var/tars/models/embedder/model.rknn"
	staging := StagingPath(final)

	if filepath.Dir(staging) != filepath.Dir(final) {
		t.Errorf("staging path %s left destination directory", staging)
	}
	if staging == final {
		t.Error("staging path equals final path")
	}
	if !IsStaging(filepath.Base(staging)) {
		t.Errorf("IsStaging(%s) = false, want true", filepath.Base(staging))
	}
	if IsStaging(filepath.Base(final)) {
		t.Errorf("IsStaging(%s) = true, want false", filepath.Base(final))
	}
}

func TestStagingPathsAreUnique(t *testing.T) {
	t.Parallel()

	final := "/cache/embedder/model.onnx"
	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		path := StagingPath(final)
		if seen[path] {
			t.Fatalf("duplicate staging path %s", path)
		}
		seen[path] = true
		if !strings.Contains(path, "model.onnx") {
			t.Errorf("staging path %s lost the artifact name", path)
		}
	}
}
