// Package catalog holds the model specifications the pipeline knows how to
// convert. A small embedded set covers the platform's stock embedder and
// reranker; operators register additional models through YAML files.
package catalog

import (
	"errors"
	"strings"

	"github.com/tars-home/modelforge/internal/convert"
)

// Platform component names artifacts are grouped by in the model cache.
const (
	ComponentEmbedder = "embedder"
	ComponentReranker = "reranker"
)

// EmbeddedRepository contains built-in model specifications, newest version
// of a spec last.
type EmbeddedRepository struct {
	history map[string][]convert.ModelSpec
	order   []string
}

// NewEmbeddedRepository constructs a repository pre-populated with the stock
// specs.
func NewEmbeddedRepository() *EmbeddedRepository {
	repo := &EmbeddedRepository{
		history: make(map[string][]convert.ModelSpec),
	}
	for _, spec := range defaultSpecs() {
		repo.append(spec)
	}
	return repo
}

// Get returns the latest specification for the provided model id.
func (r *EmbeddedRepository) Get(modelID string) (convert.ModelSpec, error) {
	versions, ok := r.history[modelID]
	if !ok || len(versions) == 0 {
		return convert.ModelSpec{}, errors.New("model specification not found")
	}
	return versions[len(versions)-1], nil
}

// Save registers a new version of a specification.
func (r *EmbeddedRepository) Save(spec convert.ModelSpec) (convert.ModelSpec, error) {
	if err := spec.Validate(); err != nil {
		return convert.ModelSpec{}, err
	}
	r.append(spec)
	return spec, nil
}

// ListAll returns the latest version of every known specification.
func (r *EmbeddedRepository) ListAll() ([]convert.ModelSpec, error) {
	if len(r.history) == 0 {
		return nil, nil
	}

	specs := make([]convert.ModelSpec, 0, len(r.order))
	for _, id := range r.order {
		if versions := r.history[id]; len(versions) > 0 {
			specs = append(specs, versions[len(versions)-1])
		}
	}
	return specs, nil
}

// FilterByComponent returns specs for the requested platform component.
func (r *EmbeddedRepository) FilterByComponent(component string) ([]convert.ModelSpec, error) {
	if component == "" {
		return r.ListAll()
	}

	all, err := r.ListAll()
	if err != nil {
		return nil, err
	}

	var matched []convert.ModelSpec
	for _, spec := range all {
		if strings.EqualFold(spec.Component, component) {
			matched = append(matched, spec)
		}
	}
	return matched, nil
}

func (r *EmbeddedRepository) append(spec convert.ModelSpec) {
	if _, exists := r.history[spec.ID]; !exists {
		r.order = append(r.order, spec.ID)
	}
	r.history[spec.ID] = append(r.history[spec.ID], spec)
}

func defaultSpecs() []convert.ModelSpec {
	return []convert.ModelSpec{
		{
			ID:        "sentence-transformers/all-MiniLM-L6-v2",
			Component: ComponentEmbedder,
			BatchSize: 1,
			MaxSeqLen: 256,
			Precision: convert.PrecisionFP32,
		},
		{
			ID:        "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Component: ComponentReranker,
			BatchSize: 1,
			MaxSeqLen: 512,
			Precision: convert.PrecisionFP32,
		},
	}
}
