package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tars-home/modelforge/internal/convert"
)

type catalogFile struct {
	Models []convert.ModelSpec `yaml:"models"`
}

// Load reads model specifications from a YAML catalog file. Every entry is
// validated; a file with no models is an error since it almost always means
// a typoed key.
func Load(path string) ([]convert.ModelSpec, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no models", path)
	}

	for i := range file.Models {
		if file.Models[i].Precision == "" {
			file.Models[i].Precision = convert.PrecisionFP32
		}
		if err := file.Models[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog file %s, model %d: %w", path, i, err)
		}
	}
	return file.Models, nil
}
