package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	simple "github.com/tars-home/modelforge/config"
	"github.com/tars-home/modelforge/internal/convert"
	"github.com/tars-home/modelforge/internal/logging"
	"github.com/tars-home/modelforge/internal/setup"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	setup.SetLogger(logger.With("component", "setup"))

	logLevel := defaultLogLevel
	envFile := ""

	root := &cobra.Command{
		Use:           "modelforge",
		Short:         "Convert TARS inference models for the NPU accelerator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&envFile, "env", "", "Optional dotenv file merged into the environment before reading configuration")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return setup.LoadEnvFile(envFile)
	}

	root.AddCommand(
		newConvertCommand(logger),
		newExportCommand(logger),
		newCompileCommand(logger),
		newListCommand(logger),
		newRunsCommand(logger),
		newCleanCommand(logger),
		newSetupCommand(logger),
	)
	return root
}

func loadConfig(logger *slog.Logger) (setup.Config, error) {
	cfg, err := setup.FromEnvironment()
	if err != nil {
		logger.Error("reading environment configuration failed", "error", err)
		return setup.Config{}, err
	}
	return cfg, nil
}

func verifySetup(cfg setup.Config, logger *slog.Logger) error {
	logger = logger.With("action", "verify_setup")
	if err := setup.Verify(cfg); err != nil {
		logger.Error("setup verification failed", "error", err)
		logger.Info("run 'modelforge setup' to initialize the directories")
		return err
	}
	return nil
}

func newConvertCommand(logger *slog.Logger) *cobra.Command {
	var (
		maxSeqLen int
		precision string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "convert [model-id]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Run the full export and compile pipeline for a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "convert")

			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}
			if !cfg.EmbedderEnabled && !force {
				cmdLogger.Warn("NPU embedder is disabled; set NPU_EMBEDDER_ENABLED=1 or pass --force")
				return nil
			}
			if err := verifySetup(cfg, cmdLogger); err != nil {
				return err
			}

			modelID := cfg.EmbedModel
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				modelID = strings.TrimSpace(args[0])
			}

			parsedPrecision := convert.Precision("")
			if precision != "" {
				parsedPrecision, err = convert.ParsePrecision(precision)
				if err != nil {
					return err
				}
			}

			spec, err := simple.ResolveSpec(cfg, modelID, maxSeqLen, parsedPrecision, cmdLogger)
			if err != nil {
				cmdLogger.Error("resolving model spec failed", "error", err)
				return err
			}
			cmdLogger = cmdLogger.With("model", spec.ID, "component", spec.Component)
			cmdLogger.Info("starting conversion pipeline",
				"target", cfg.TargetPlatform,
				"cache_dir", cfg.ModelCacheDir,
			)

			run, err := simple.ConvertModel(cmd.Context(), cfg, spec, cmdLogger)
			if err != nil {
				cmdLogger.Error("conversion failed", "error", err)
				return err
			}

			printRun(cmd, run)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSeqLen, "max-seq-length", 0, "Override the exported sequence length")
	cmd.Flags().StringVar(&precision, "precision", "", "Precision mode (fp32, fp16, int8)")
	cmd.Flags().BoolVar(&force, "force", false, "Run even when NPU_EMBEDDER_ENABLED is not set")

	return cmd
}

func newExportCommand(logger *slog.Logger) *cobra.Command {
	var (
		modelID   string
		output    string
		maxSeqLen int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a sentence-transformer model to ONNX",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(modelID) == "" {
				return fmt.Errorf("--model is required")
			}

			cmdLogger := logger.With("command", "export", "model", modelID)
			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}

			spec, err := simple.ResolveSpec(cfg, modelID, maxSeqLen, "", cmdLogger)
			if err != nil {
				cmdLogger.Error("resolving model spec failed", "error", err)
				return err
			}
			artifact, err := simple.ExportModel(cmd.Context(), cfg, spec, output, cmdLogger)
			if err != nil {
				cmdLogger.Error("export failed", "error", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", artifact.Path, artifact.Size)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "Source model identifier")
	cmd.Flags().StringVar(&output, "output", "", "Output path for the onnx artifact (defaults to the cache layout)")
	cmd.Flags().IntVar(&maxSeqLen, "max-seq-length", 0, "Override the exported sequence length")

	return cmd
}

func newCompileCommand(logger *slog.Logger) *cobra.Command {
	var (
		target    string
		quantize  bool
		batchSize int
		maxSeqLen int
	)

	cmd := &cobra.Command{
		Use:   "compile <input.onnx> <output.rknn>",
		Args:  cobra.ExactArgs(2),
		Short: "Compile an ONNX artifact for the NPU target",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "compile", "input", args[0])

			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}
			if target != "" {
				cfg.TargetPlatform = target
			}
			if quantize {
				cfg.Quantize = true
			}

			spec := convert.ModelSpec{
				ID:        args[0],
				Component: "adhoc",
				BatchSize: batchSize,
				MaxSeqLen: maxSeqLen,
				Precision: convert.PrecisionFP32,
			}
			if cfg.Quantize {
				spec.Precision = convert.PrecisionInt8
			}

			artifact, err := simple.CompileModel(cmd.Context(), cfg, args[0], args[1], spec, cmdLogger)
			if err != nil {
				cmdLogger.Error("compilation failed", "error", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", artifact.Path, artifact.Size)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Target NPU platform (defaults to NPU_TARGET_PLATFORM)")
	cmd.Flags().BoolVar(&quantize, "quantize", false, "Apply int8 post-training quantization")
	cmd.Flags().IntVar(&batchSize, "batch-size", 1, "Input batch size used for calibration")
	cmd.Flags().IntVar(&maxSeqLen, "max-seq-length", 256, "Input sequence length used for calibration")

	return cmd
}

func newListCommand(logger *slog.Logger) *cobra.Command {
	var component string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models and whether a compiled artifact exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "list")

			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}

			specs, built, err := simple.List(cfg, component, cmdLogger)
			if err != nil {
				cmdLogger.Error("listing models failed", "error", err)
				return err
			}
			if len(specs) == 0 {
				cmdLogger.Warn("no models in catalog")
				return nil
			}

			for i, spec := range specs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tseq=%d\t(compiled: %t)\n",
					spec.ID, spec.Component, spec.MaxSeqLen, built[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "Only list models for this platform component")

	return cmd
}

func newRunsCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded conversion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "runs")

			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}

			runs, err := simple.ListRuns(cfg, cmdLogger)
			if err != nil {
				cmdLogger.Error("listing runs failed", "error", err)
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Spec.ID, run.TargetPlatform, run.State)
			}
			return nil
		},
	}
}

func newCleanCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <component>",
		Args:  cobra.ExactArgs(1),
		Short: "Remove all cached artifacts for a component",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "clean")

			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}
			return simple.Clean(cfg, strings.TrimSpace(args[0]), cmdLogger)
		},
	}
}

func newSetupCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Initialize the model cache and run directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "setup")

			cfg, err := loadConfig(cmdLogger)
			if err != nil {
				return err
			}
			if err := setup.Initialize(cfg); err != nil {
				cmdLogger.Error("initialization failed", "error", err)
				return err
			}
			cmdLogger.Info("initialization completed")
			return nil
		},
	}
}

func printRun(cmd *cobra.Command, run *convert.ConversionRun) {
	out := cmd.OutOrStdout()
	for _, stage := range run.Stages {
		line := fmt.Sprintf("%s\t%s", stage.Stage, stage.Status)
		if stage.Artifact != nil {
			line += fmt.Sprintf("\t%s (%d bytes)", stage.Artifact.Path, stage.Artifact.Size)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "state: %s\n", run.State)
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}
