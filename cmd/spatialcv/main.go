package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spatialcv/internal/cfg"
	"spatialcv/internal/dataset"
	"spatialcv/internal/metric"
	"spatialcv/internal/metrics"
	"spatialcv/internal/model"
	"spatialcv/internal/partition"
	"spatialcv/internal/resample"
	"spatialcv/internal/storage"
)

func main() {
	var (
		dataFile    = flag.String("data", "", "Path to observation CSV (overrides config)")
		dataURL     = flag.String("data-url", "", "URL of a remote observation CSV (overrides config)")
		synthetic   = flag.Int("synthetic", 0, "Generate a synthetic spatially autocorrelated set of this size instead of loading data")
		folds       = flag.Int("folds", 0, "Number of spatial folds (overrides config)")
		repetitions = flag.Int("repetitions", 0, "Number of repetitions (overrides config)")
		seedBase    = flag.Int64("seed", 0, "Partition seed base (overrides config)")
		outputPath  = flag.String("output", "", "Output directory for reports (overrides config)")
		compare     = flag.Bool("compare", false, "Also run a non-spatial random baseline on the same data")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Flag overrides
	if *dataFile != "" {
		config.DataFile = *dataFile
		config.DataURL = ""
	}
	if *dataURL != "" {
		config.DataURL = *dataURL
		config.DataFile = ""
	}
	if *folds > 0 {
		config.Folds = *folds
	}
	if *repetitions > 0 {
		config.Repetitions = *repetitions
	}
	if *seedBase != 0 {
		config.PartitionSeedBase = *seedBase
	}
	if *outputPath != "" {
		config.OutputPath = *outputPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if config.MetricsPort > 0 {
		startMetricsServer(config.MetricsPort)
	}

	set, err := loadObservations(config, *synthetic)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load observation set")
	}
	pos, neg := set.ClassCounts()
	log.Info().
		Int("observations", set.Len()).
		Int("positive", pos).
		Int("negative", neg).
		Msg("Observation set ready")

	adapter := &model.Logistic{
		MaxIterations: config.ModelMaxIterations,
		Tolerance:     config.ModelTolerance,
	}
	opts := resample.Options{
		Folds:              config.Folds,
		Repetitions:        config.Repetitions,
		Workers:            config.Workers,
		SeedBase:           config.PartitionSeedBase,
		MaxFailureFraction: config.MaxFailureFraction,
		MetricName:         "auroc",
	}

	spatial := &partition.KMeans{MaxRetries: config.PartitionRetries, MaxIterations: 100}
	result, summary, err := runOnce(ctx, opts, spatial, adapter, m, set)
	if err != nil {
		log.Fatal().Err(err).Msg("Resampling run failed")
	}

	reporter := resample.NewReporter(config.OutputPath)
	if err := reporter.Write(result, summary); err != nil {
		log.Fatal().Err(err).Msg("Failed to write reports")
	}

	if config.DataPath != "" {
		persistRun(config.DataPath, result, summary)
	}

	fmt.Printf("%s (%s): mean=%.4f sd=%.4f n=%d excluded=%d skipped=%d\n",
		summary.Metric, summary.Partitioner, summary.Mean, summary.StdDev,
		summary.Count, summary.Excluded, summary.Skipped)

	if *compare {
		baseResult, baseSummary, err := runOnce(ctx, opts, partition.NewRandom(), adapter, m, set)
		if err != nil {
			log.Fatal().Err(err).Msg("Baseline run failed")
		}
		if err := resample.NewReporter(config.OutputPath + "/baseline").Write(baseResult, baseSummary); err != nil {
			log.Fatal().Err(err).Msg("Failed to write baseline reports")
		}

		cmp := resample.Compare(summary, baseSummary)
		if err := reporter.WriteComparison(cmp); err != nil {
			log.Fatal().Err(err).Msg("Failed to write comparison")
		}
		fmt.Printf("%s (%s): mean=%.4f sd=%.4f n=%d\n",
			baseSummary.Metric, baseSummary.Partitioner, baseSummary.Mean, baseSummary.StdDev, baseSummary.Count)
		fmt.Printf("mean difference (spatial - random): %+.4f\n", cmp.MeanDiff)
	}
}

func runOnce(ctx context.Context, opts resample.Options, p partition.Partitioner, a model.Adapter, m *metrics.Metrics, set *dataset.Set) (*resample.Result, resample.Summary, error) {
	scheduler, err := resample.NewScheduler(opts, p, a, metric.AUROC)
	if err != nil {
		return nil, resample.Summary{}, err
	}
	scheduler.SetRecorder(m)

	result, err := scheduler.Run(ctx, set)
	if err != nil {
		return nil, resample.Summary{}, err
	}

	summary, err := resample.Summarize(result)
	if err != nil {
		return nil, resample.Summary{}, err
	}
	return result, summary, nil
}

func loadObservations(config cfg.Settings, synthetic int) (*dataset.Set, error) {
	switch {
	case synthetic > 0:
		gen := dataset.DefaultSyntheticConfig()
		gen.N = synthetic
		gen.Seed = config.PartitionSeedBase
		return dataset.GenerateSynthetic(gen)
	case config.DataURL != "":
		return dataset.NewRemoteLoader(config.FetchTimeout).Fetch(config.DataURL)
	case config.DataFile != "":
		return dataset.LoadCSV(config.DataFile)
	}
	return nil, fmt.Errorf("no observation source configured: set -data, -data-url or -synthetic")
}

func persistRun(dataPath string, result *resample.Result, summary resample.Summary) {
	store, err := storage.New(dataPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open results store, skipping persistence")
		return
	}
	defer store.Close()

	runID := fmt.Sprintf("%s-%d", result.Partitioner, time.Now().Unix())
	if err := store.StoreRun(runID, result, summary); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to persist run")
		return
	}
	log.Info().Str("run_id", runID).Msg("Run persisted")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", port).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}
