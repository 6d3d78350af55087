// Package simple wires the default adapters into ready-to-run services. It
// is the only place concrete implementations meet; commands and tests build
// on the interfaces.
package simple

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tars-home/modelforge/internal/artifacts"
	"github.com/tars-home/modelforge/internal/catalog"
	"github.com/tars-home/modelforge/internal/convert"
	"github.com/tars-home/modelforge/internal/convert/adapters/onnx"
	"github.com/tars-home/modelforge/internal/convert/adapters/rknn"
	"github.com/tars-home/modelforge/internal/logging"
	"github.com/tars-home/modelforge/internal/repositories/local"
	"github.com/tars-home/modelforge/internal/setup"
)

// ConvertModel executes the full export and compile pipeline for the
// given model spec.
func ConvertModel(ctx context.Context, cfg setup.Config, spec convert.ModelSpec, logger *slog.Logger) (*convert.ConversionRun, error) {
	logger = logging.Ensure(logger).With("component", "config.simple")

	if cfg.Quantize {
		spec.Precision = convert.PrecisionInt8
	}

	service := convert.ConvertService{
		Logger: logger.With("service", "convert"),
		Cache:  local.LocalArtifactCache{},
		Layout: artifacts.Layout{CacheDir: cfg.ModelCacheDir},
		Exporter: &onnx.ScriptExporter{
			Logger: logger.With("adapter", "onnx-export"),
		},
		Compiler: &rknn.ToolCompiler{
			Logger: logger.With("adapter", "rknn-compile"),
		},
		Runs: &local.LocalRunRepository{BaseDir: cfg.RunDir, Logger: logger.With("repository", "runs")},
	}

	return service.Run(ctx, &convert.ConversionRequest{
		Spec:               spec,
		TargetPlatform:     cfg.TargetPlatform,
		CalibrationSamples: cfg.CalibrationSamples,
	})
}

// Catalog builds the model catalog: the embedded stock specs plus any
// operator-registered models from a YAML file. The file is cfg.CatalogPath
// when set; otherwise <cache_dir>/catalog.yaml, which is allowed to be
// absent.
func Catalog(cfg setup.Config, logger *slog.Logger) (*catalog.EmbeddedRepository, error) {
	repo := catalog.NewEmbeddedRepository()

	path := cfg.CatalogPath
	conventional := path == ""
	if conventional {
		path = filepath.Join(cfg.ModelCacheDir, "catalog.yaml")
	}

	specs, err := catalog.Load(path)
	if err != nil {
		if conventional && errors.Is(err, fs.ErrNotExist) {
			return repo, nil
		}
		return nil, err
	}

	for _, spec := range specs {
		if _, err := repo.Save(spec); err != nil {
			return nil, fmt.Errorf("register catalog model %s: %w", spec.ID, err)
		}
	}
	logging.Ensure(logger).Info("loaded catalog file", "path", path, "models", len(specs))
	return repo, nil
}

// ResolveSpec looks up a model in the catalog, falling back to a synthesized
// embedder spec so arbitrary identifiers still convert.
func ResolveSpec(cfg setup.Config, modelID string, maxSeqLen int, precision convert.Precision, logger *slog.Logger) (convert.ModelSpec, error) {
	repo, err := Catalog(cfg, logger)
	if err != nil {
		return convert.ModelSpec{}, err
	}

	spec, err := repo.Get(modelID)
	if err != nil {
		spec = convert.ModelSpec{
			ID:        modelID,
			Component: catalog.ComponentEmbedder,
			BatchSize: 1,
			MaxSeqLen: 256,
			Precision: convert.PrecisionFP32,
		}
	}
	if maxSeqLen > 0 {
		spec.MaxSeqLen = maxSeqLen
	}
	if precision != "" {
		spec.Precision = precision
	}
	return spec, nil
}

// ExportModel runs only the export stage, writing the onnx artifact to
// outputPath (or the layout's conventional path when empty).
func ExportModel(ctx context.Context, cfg setup.Config, spec convert.ModelSpec, outputPath string, logger *slog.Logger) (artifacts.Artifact, error) {
	logger = logging.Ensure(logger).With("component", "config.simple")

	if outputPath == "" {
		layout := artifacts.Layout{CacheDir: cfg.ModelCacheDir}
		outputPath = layout.ONNXPath(spec.Component, spec.BaseName())
	}

	exporter := &onnx.ScriptExporter{Logger: logger.With("adapter", "onnx-export")}
	return exporter.Export(ctx, spec, outputPath)
}

// CompileModel runs only the compile stage for an existing onnx artifact.
func CompileModel(ctx context.Context, cfg setup.Config, inputPath, outputPath string, spec convert.ModelSpec, logger *slog.Logger) (artifacts.Artifact, error) {
	logger = logging.Ensure(logger).With("component", "config.simple")

	cache := local.LocalArtifactCache{}
	if !cache.Exists(inputPath) {
		return artifacts.Artifact{}, fmt.Errorf("onnx artifact %s does not exist", inputPath)
	}
	description, err := cache.Describe(inputPath)
	if err != nil {
		return artifacts.Artifact{}, err
	}

	if outputPath == "" {
		layout := artifacts.Layout{CacheDir: cfg.ModelCacheDir}
		outputPath = layout.CompiledPath(spec.Component, spec.BaseName(), spec.Quantized())
	}

	compiler := &rknn.ToolCompiler{Logger: logger.With("adapter", "rknn-compile")}
	return compiler.Compile(ctx,
		artifacts.Artifact{Kind: description.Kind, Path: inputPath, Size: description.Size},
		convert.CompileOptions{
			TargetPlatform:     cfg.TargetPlatform,
			Precision:          spec.Precision,
			BatchSize:          spec.BatchSize,
			MaxSeqLen:          spec.MaxSeqLen,
			CalibrationSamples: cfg.CalibrationSamples,
			OutputPath:         outputPath,
		})
}

// List returns the catalog specs, optionally narrowed to one platform
// component, and whether each has a compiled artifact in the cache.
func List(cfg setup.Config, component string, logger *slog.Logger) ([]convert.ModelSpec, []bool, error) {
	repo, err := Catalog(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	specs, err := repo.FilterByComponent(component)
	if err != nil {
		return nil, nil, err
	}

	cache := local.LocalArtifactCache{}
	layout := artifacts.Layout{CacheDir: cfg.ModelCacheDir}

	built := make([]bool, len(specs))
	for i, spec := range specs {
		quantized := spec.Quantized() || cfg.Quantize
		built[i] = cache.Exists(layout.CompiledPath(spec.Component, spec.BaseName(), quantized))
	}
	return specs, built, nil
}

// ListRuns returns recorded conversion runs, newest first.
func ListRuns(cfg setup.Config, logger *slog.Logger) ([]convert.ConversionRun, error) {
	repo := &local.LocalRunRepository{
		BaseDir: cfg.RunDir,
		Logger:  logging.Ensure(logger).With("repository", "runs"),
	}
	return repo.List()
}

// Clean removes every artifact for a component. This is the only sanctioned
// artifact deletion path.
func Clean(cfg setup.Config, component string, logger *slog.Logger) error {
	logger = logging.Ensure(logger).With("component", "config.simple")
	if component == "" {
		return fmt.Errorf("component is required")
	}

	layout := artifacts.Layout{CacheDir: cfg.ModelCacheDir}
	dir := layout.ComponentDir(component)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("nothing to clean", "dir", dir)
			return nil
		}
		return err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	logger.Info("cleaned component artifacts", "dir", dir, "removed", removed)
	return nil
}
