package local

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"

	"github.com/tars-home/modelforge/internal/convert"
)

// LocalRunRepository persists conversion run records as JSON documents under
// BaseDir, one file per run keyed by run id.
type LocalRunRepository struct {
	BaseDir string
	Logger  *slog.Logger
}

func (rep *LocalRunRepository) logger() *slog.Logger {
	if rep != nil && rep.Logger != nil {
		return rep.Logger
	}
	return slog.Default()
}

var _ convert.RunRepository = (*LocalRunRepository)(nil)

// Save writes the run record atomically so a crash never leaves a truncated
// document behind.
func (rep *LocalRunRepository) Save(run convert.ConversionRun) error {
	if rep.BaseDir == "" {
		return errors.New("base directory is not configured")
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}

	if err := os.MkdirAll(rep.BaseDir, 0o755); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(rep.BaseDir, run.ID+".json")
	return renameio.WriteFile(path, payload, 0o644)
}

// List returns all recorded runs, newest first. Files that cannot be read or
// decoded are skipped with a warning so a stray file never blocks the
// listing.
func (rep *LocalRunRepository) List() ([]convert.ConversionRun, error) {
	entries, err := os.ReadDir(rep.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var runs []convert.ConversionRun
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		payload, err := os.ReadFile(filepath.Join(rep.BaseDir, entry.Name()))
		if err != nil {
			rep.logger().Warn("skipping unreadable run record", "file", entry.Name(), "error", err)
			continue
		}

		var run convert.ConversionRun
		if err := json.Unmarshal(payload, &run); err != nil {
			rep.logger().Warn("skipping corrupt run record", "file", entry.Name(), "error", err)
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}
