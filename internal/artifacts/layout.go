package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// Layout encodes the fixed model-cache path convention:
//
//	<cache_dir>/<component>/<model_basename>.onnx
//	<cache_dir>/<component>/<model_basename>.rknn
//	<cache_dir>/<component>/<model_basename>_int8.rknn
//
// Downstream inference workers resolve artifacts by the same convention, so
// the layout is part of the external contract and must not change shape.
type Layout struct {
	CacheDir string
}

// ComponentDir returns the directory holding all artifacts for a component.
func (l Layout) ComponentDir(component string) string {
	return filepath.Join(l.CacheDir, component)
}

// ONNXPath returns the destination for the exported intermediate graph.
func (l Layout) ONNXPath(component, baseName string) string {
	return filepath.Join(l.CacheDir, component, baseName+".onnx")
}

// CompiledPath returns the destination for the accelerator binary. Quantized
// artifacts carry the _int8 suffix so both variants can coexist.
func (l Layout) CompiledPath(component, baseName string, quantized bool) string {
	name := baseName + ".rknn"
	if quantized {
		name = baseName + "_int8.rknn"
	}
	return filepath.Join(l.CacheDir, component, name)
}

// StagingPath returns a unique sibling path used to stage an artifact before
// it is renamed into place. Keeping it in the destination directory makes
// the final rename atomic on POSIX filesystems.
func StagingPath(finalPath string) string {
	dir := filepath.Dir(finalPath)
	base := filepath.Base(finalPath)
	return filepath.Join(dir, fmt.Sprintf(".%s.partial-%s", base, uuid.NewString()))
}

// IsStaging reports whether a directory entry name is a staging leftover
// from an interrupted run. Cache probes and listings ignore these.
func IsStaging(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
