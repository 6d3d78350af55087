package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tars-home/modelforge/internal/artifacts"
)

// LocalArtifactCache answers artifact-presence probes against the model
// cache directory. It is strictly read-only; stage adapters own all writes.
type LocalArtifactCache struct{}

var _ artifacts.Cache = LocalArtifactCache{}

// Exists reports whether a complete artifact is present at path. Staging
// leftovers from interrupted runs and empty files count as absent, so a run
// killed mid-write is transparently redone.
func (LocalArtifactCache) Exists(path string) bool {
	if artifacts.IsStaging(filepath.Base(path)) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Describe returns size and kind for an artifact path.
func (LocalArtifactCache) Describe(path string) (artifacts.Description, error) {
	info, err := os.Stat(path)
	if err != nil {
		return artifacts.Description{}, err
	}
	if !info.Mode().IsRegular() {
		return artifacts.Description{}, fmt.Errorf("%s is not a regular file", path)
	}

	kind, err := kindFromPath(path)
	if err != nil {
		return artifacts.Description{}, err
	}
	return artifacts.Description{Size: info.Size(), Kind: kind}, nil
}

func kindFromPath(path string) (artifacts.ArtifactKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return artifacts.ONNXArtifact, nil
	case ".rknn":
		return artifacts.CompiledArtifact, nil
	default:
		return "", fmt.Errorf("unrecognized artifact extension on %s", path)
	}
}
