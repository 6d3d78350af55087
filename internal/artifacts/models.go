package artifacts

import "time"

type ArtifactKind string

const (
	ONNXArtifact     ArtifactKind = "onnx"     // portable intermediate graph
	CompiledArtifact ArtifactKind = "compiled" // accelerator-specific binary
)

// Artifact is one output file produced by a pipeline stage. Artifacts are
// immutable once created; only the clean command removes them.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	Path string       `json:"path"`
	Size int64        `json:"size"`

	Checksum  *string        `json:"checksum,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Description is the read-only probe result for a path in the model cache.
type Description struct {
	Size int64
	Kind ArtifactKind
}
