package catalog

import (
	"testing"

	"github.com/tars-home/modelforge/internal/convert"
)

func TestRepositoryHasStockModels(t *testing.T) {
	t.Parallel()

	repo := NewEmbeddedRepository()
	specs, err := repo.ListAll()
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(specs) == 0 {
		t.Fatal("embedded catalog is empty")
	}

	for _, component := range []string{ComponentEmbedder, ComponentReranker} {
		matched, err := repo.FilterByComponent(component)
		if err != nil {
			t.Fatalf("FilterByComponent(%s) error = %v", component, err)
		}
		if len(matched) == 0 {
			t.Errorf("no stock model for component %s", component)
		}
		for _, spec := range matched {
			if err := spec.Validate(); err != nil {
				t.Errorf("stock spec %s invalid: %v", spec.ID, err)
			}
		}
	}
}

func TestGetAndSaveVersions(t *testing.T) {
	t.Parallel()

	repo := NewEmbeddedRepository()

	spec, err := repo.Get("sentence-transformers/all-MiniLM-L6-v2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if spec.MaxSeqLen != 256 {
		t.Errorf("stock embedder seq len = %d, want 256", spec.MaxSeqLen)
	}

	updated := spec
	updated.MaxSeqLen = 384
	if _, err := repo.Save(updated); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	latest, err := repo.Get(spec.ID)
	if err != nil {
		t.Fatalf("Get() after Save error = %v", err)
	}
	if latest.MaxSeqLen != 384 {
		t.Errorf("latest seq len = %d, want 384", latest.MaxSeqLen)
	}

	if _, err := repo.Get("unknown/model"); err == nil {
		t.Error("Get(unknown) error = nil, want non-nil")
	}
}

func TestSaveRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	repo := NewEmbeddedRepository()
	if _, err := repo.Save(convert.ModelSpec{ID: "x"}); err == nil {
		t.Error("Save() of invalid spec error = nil, want non-nil")
	}
}
