package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults matching the platform's container layout.
var (
	DefaultCacheDir       = "/var/tars/models"
	DefaultRunDir         = "/var/tars/runs"
	DefaultTargetPlatform = "rk3588"
	DefaultEmbedModel     = "sentence-transformers/all-MiniLM-L6-v2"

	defaultCalibrationSamples = 100
)

// Config is the explicit environment configuration handed to the composition
// root. Nothing outside this package reads the process environment.
type Config struct {
	EmbedderEnabled    bool
	ModelCacheDir      string
	RunDir             string
	CatalogPath        string
	EmbedModel         string
	TargetPlatform     string
	Quantize           bool
	CalibrationSamples int
}

// LoadEnvFile merges a dotenv file into the process environment before
// FromEnvironment is called. A missing file is not an error when path is
// the empty string.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	getLogger().Info("loading environment file", "path", path)
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// FromEnvironment reads the pipeline's environment variables into a Config.
func FromEnvironment() (Config, error) {
	cfg := Config{
		EmbedderEnabled:    os.Getenv("NPU_EMBEDDER_ENABLED") == "1",
		ModelCacheDir:      envOrDefault("MODEL_CACHE_DIR", DefaultCacheDir),
		RunDir:             envOrDefault("MODEL_RUN_DIR", DefaultRunDir),
		CatalogPath:        strings.TrimSpace(os.Getenv("MODEL_CATALOG")),
		EmbedModel:         envOrDefault("EMBED_MODEL", DefaultEmbedModel),
		TargetPlatform:     envOrDefault("NPU_TARGET_PLATFORM", DefaultTargetPlatform),
		Quantize:           os.Getenv("QUANTIZE") == "1",
		CalibrationSamples: defaultCalibrationSamples,
	}

	if raw := strings.TrimSpace(os.Getenv("CALIBRATION_SAMPLES")); raw != "" {
		samples, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("CALIBRATION_SAMPLES must be an integer, got %q", raw)
		}
		cfg.CalibrationSamples = samples
	}

	return cfg, nil
}

// Verify checks that the model cache directory exists and is usable. It does
// not create anything; initialization is an operator action.
func Verify(cfg Config) error {
	info, err := os.Stat(cfg.ModelCacheDir)
	if err != nil {
		return fmt.Errorf("model cache dir %s does not exist", cfg.ModelCacheDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("model cache dir %s is not a directory", cfg.ModelCacheDir)
	}
	return nil
}

// Initialize creates the model cache and run directories.
func Initialize(cfg Config) error {
	getLogger().Info("initializing directories",
		"model_cache_dir", cfg.ModelCacheDir,
		"run_dir", cfg.RunDir,
	)
	for _, dir := range []string{cfg.ModelCacheDir, cfg.RunDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
