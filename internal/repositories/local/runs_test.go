package local

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tars-home/modelforge/internal/convert"
)

func testRun(started time.Time) convert.ConversionRun {
	return convert.ConversionRun{
		ID: uuid.NewString(),
		Spec: convert.ModelSpec{
			ID:        "sentence-transformers/all-MiniLM-L6-v2",
			Component: "embedder",
			BatchSize: 1,
			MaxSeqLen: 256,
			Precision: convert.PrecisionFP32,
		},
		TargetPlatform: "rk3588",
		State:          convert.StateCompiled,
		Stages: []convert.StageResult{
			{Stage: convert.StageExport, Status: convert.StageSuccess},
			{Stage: convert.StageCompile, Status: convert.StageSuccess},
		},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Minute),
	}
}

func TestSaveAndListRoundTrip(t *testing.T) {
	t.Parallel()

	repo := &LocalRunRepository{BaseDir: t.TempDir()}

	older := testRun(time.Now().Add(-time.Hour))
	newer := testRun(time.Now())

	if err := repo.Save(older); err != nil {
		t.Fatalf("Save(older) error = %v", err)
	}
	if err := repo.Save(newer); err != nil {
		t.Fatalf("Save(newer) error = %v", err)
	}

	runs, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("List() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != newer.ID {
		t.Errorf("List() first run = %s, want newest %s", runs[0].ID, newer.ID)
	}
	if runs[0].State != convert.StateCompiled {
		t.Errorf("decoded state = %s, want %s", runs[0].State, convert.StateCompiled)
	}
	if len(runs[0].Stages) != 2 {
		t.Errorf("decoded stages = %d, want 2", len(runs[0].Stages))
	}
}

func TestListSkipsCorruptRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := &LocalRunRepository{BaseDir: dir}

	good := testRun(time.Now())
	if err := repo.Save(good); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	runs, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v, want corrupt record skipped", err)
	}
	if len(runs) != 1 {
		t.Fatalf("List() returned %d runs, want 1", len(runs))
	}
	if runs[0].ID != good.ID {
		t.Errorf("List() run = %s, want %s", runs[0].ID, good.ID)
	}
}

func TestListMissingDirectory(t *testing.T) {
	t.Parallel()

	repo := &LocalRunRepository{BaseDir: "/nonexistent/modelforge-runs"}
	runs, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v, want nil for missing dir", err)
	}
	if runs != nil {
		t.Errorf("List() = %v, want nil", runs)
	}
}

func TestSaveValidation(t *testing.T) {
	t.Parallel()

	repo := &LocalRunRepository{}
	if err := repo.Save(testRun(time.Now())); err == nil {
		t.Error("Save() without base dir error = nil, want non-nil")
	}

	repo = &LocalRunRepository{BaseDir: t.TempDir()}
	run := testRun(time.Now())
	run.ID = ""
	if err := repo.Save(run); err == nil {
		t.Error("Save() without run id error = nil, want non-nil")
	}
}
