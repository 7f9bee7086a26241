package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb"
	"github.com/sirupsen/logrus"

	"spectrecon/pkg/config"
	"spectrecon/pkg/reconstruction"
	"spectrecon/pkg/visualization"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("spectrecon", flag.ContinueOnError)

	defaults := config.DefaultConfig()
	inputDir := fs.String("input", config.DefaultInputDir, "Directory containing phase space files and rotation_log.txt")
	outputDir := fs.String("output", "", "Output directory (default: <input>/reconstruction)")
	algorithm := fs.String("algorithm", defaults.Reconstruction.Algorithm, "Reconstruction algorithm: "+strings.Join(config.Algorithms, ", "))
	iterations := fs.Int("iterations", 0, "Iterations (default: fbp 1, sirt 100, mlem 20, osem 10)")
	subsets := fs.Int("subsets", defaults.Reconstruction.Subsets, "Number of OSEM subsets")
	filter := fs.String("filter", defaults.Reconstruction.Filter, "FBP filter: "+strings.Join(config.Filters, ", "))
	smooth := fs.Float64("smooth", defaults.Reconstruction.Smooth, "Gaussian smoothing sigma in pixels (0 disables)")
	quiet := fs.Bool("quiet", false, "Only log warnings and errors")
	debug := fs.Bool("debug", false, "Enable debug logging")
	configPath := fs.String("config", "", "YAML configuration file; flags given explicitly override it")
	writeConfig := fs.String("write-config", "", "Write the effective configuration to this YAML file and exit")
	numCores := fs.Int("cores", defaults.NumCores, "Number of CPU cores to use")
	seed := fs.Uint64("seed", defaults.Loader.Seed, "Seed of the synthetic fallback noise")
	formats := fs.String("formats", strings.Join(defaults.Output.Formats, ","), "Optional output formats: npy, mhd, nifti, tiff, png")
	extractProjections := fs.Bool("extract-projections", false, "Save a PNG preview of every projection")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := initLogger(*quiet, *debug)

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.WithError(err).Error("Failed to load configuration")
			return exitFailure
		}
		cfg = loaded
	}

	// Explicit flags win over the configuration file
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	override := func(name string, apply func()) {
		if set[name] || *configPath == "" {
			apply()
		}
	}
	override("input", func() { cfg.Loader.InputDir = *inputDir })
	override("output", func() { cfg.Output.Dir = *outputDir })
	override("algorithm", func() { cfg.Reconstruction.Algorithm = strings.ToLower(*algorithm) })
	override("iterations", func() { cfg.Reconstruction.Iterations = *iterations })
	override("subsets", func() { cfg.Reconstruction.Subsets = *subsets })
	override("filter", func() { cfg.Reconstruction.Filter = strings.ToLower(*filter) })
	override("smooth", func() { cfg.Reconstruction.Smooth = *smooth })
	override("cores", func() { cfg.NumCores = *numCores })
	override("seed", func() { cfg.Loader.Seed = *seed })
	override("formats", func() { cfg.Output.Formats = splitList(*formats) })
	if *quiet {
		cfg.Output.Verbose = false
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("Invalid configuration")
		fs.Usage()
		return exitUsage
	}

	if *writeConfig != "" {
		if err := config.SaveConfig(cfg, *writeConfig); err != nil {
			logger.WithError(err).Error("Failed to write configuration")
			return exitFailure
		}
		logger.WithField("file", *writeConfig).Info("Configuration written")
		return exitOK
	}

	logger.WithFields(logrus.Fields{
		"input":     cfg.Loader.InputDir,
		"output":    cfg.OutputDir(),
		"algorithm": cfg.Reconstruction.Algorithm,
		"cores":     cfg.NumCores,
	}).Info("Starting SPECT reconstruction")

	reconstructor := reconstruction.NewReconstructor(cfg, logger)

	var bar *pb.ProgressBar
	if cfg.Output.Verbose {
		reconstructor.Progress = func(completed, total int, message string) {
			if bar == nil {
				bar = pb.New(total)
				bar.Output = os.Stderr
				bar.ShowTimeLeft = true
				bar.Start()
			}
			bar.Set(completed)
			if completed == total {
				bar.FinishPrint(message)
			}
		}
	}

	manifest, err := reconstructor.Process()
	if err != nil {
		logger.WithError(err).Error("Reconstruction failed")
		if errors.Is(err, config.ErrInvalidConfig) {
			return exitUsage
		}
		return exitFailure
	}

	if *extractProjections {
		dir := filepath.Join(cfg.OutputDir(), "projections")
		viewer, err := visualization.NewViewer(reconstructor.Projections().Images...)
		if err == nil {
			err = viewer.SaveSliceSequence("z", dir)
		}
		if err != nil {
			logger.WithError(err).Warn("Failed to save projection previews")
		} else {
			logger.WithField("dir", dir).Info("Projection previews saved")
		}
	}

	fields := logrus.Fields{
		"min":  fmt.Sprintf("%.6f", manifest.Stats.Min),
		"max":  fmt.Sprintf("%.6f", manifest.Stats.Max),
		"mean": fmt.Sprintf("%.6f", manifest.Stats.Mean),
		"std":  fmt.Sprintf("%.6f", manifest.Stats.Std),
	}
	if m := manifest.Metrics; m != nil {
		fields["rmse"] = fmt.Sprintf("%.6f", m.RMSE)
		fields["ssim"] = fmt.Sprintf("%.3f", m.SSIM)
		fields["mi"] = fmt.Sprintf("%.3f", m.MI)
		fields["contrast"] = fmt.Sprintf("%.3f", m.Contrast)
	}
	logger.WithFields(fields).Infof("Reconstruction completed in %.2f seconds, results in %s",
		manifest.Elapsed.Seconds(), manifest.OutputDir)

	return exitOK
}

// initLogger initializes the logger with the level selected by the flags
func initLogger(quiet, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	switch {
	case debug:
		logger.SetLevel(logrus.DebugLevel)
	case quiet:
		logger.SetLevel(logrus.WarnLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
