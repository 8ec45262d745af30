// Package cfg loads harness configuration from a YAML file with
// environment variable overrides, then validates every value against
// its allowed range.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved harness configuration.
type Settings struct {
	Folds              int
	Repetitions        int
	Workers            int
	PartitionSeedBase  int64
	PartitionRetries   int
	MaxFailureFraction float64
	ModelMaxIterations int
	ModelTolerance     float64
	DataFile           string
	DataURL            string
	FetchTimeout       time.Duration
	DataPath           string
	OutputPath         string
	MetricsPort        int
}

// ConfigFile mirrors the YAML layout.
type ConfigFile struct {
	Resampling struct {
		Folds              int     `yaml:"folds"`
		Repetitions        int     `yaml:"repetitions"`
		Workers            int     `yaml:"workers"`
		MaxFailureFraction float64 `yaml:"maxFailureFraction"`
	} `yaml:"resampling"`

	Partition struct {
		SeedBase   int64 `yaml:"seedBase"`
		MaxRetries int   `yaml:"maxRetries"`
	} `yaml:"partition"`

	Model struct {
		MaxIterations int     `yaml:"maxIterations"`
		Tolerance     float64 `yaml:"tolerance"`
	} `yaml:"model"`

	Data struct {
		File         string `yaml:"file"`
		URL          string `yaml:"url"`
		FetchTimeout string `yaml:"fetchTimeout"`
	} `yaml:"data"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		OutputPath  string `yaml:"outputPath"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load resolves settings from the file named by CONFIG_FILE when set,
// otherwise from environment variables and defaults.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(config.Data.FetchTimeout)
	if err != nil {
		fetchTimeout = 30 * time.Second
	}

	settings := Settings{
		Folds:              getIntFromEnvOrConfig("FOLDS", config.Resampling.Folds, 5),
		Repetitions:        getIntFromEnvOrConfig("REPETITIONS", config.Resampling.Repetitions, 100),
		Workers:            getIntFromEnvOrConfig("WORKERS", config.Resampling.Workers, 0),
		MaxFailureFraction: getFloatFromEnvOrConfig("MAX_FAILURE_FRACTION", config.Resampling.MaxFailureFraction, 0.2),
		PartitionSeedBase:  getInt64FromEnvOrConfig("PARTITION_SEED_BASE", config.Partition.SeedBase, 1),
		PartitionRetries:   getIntFromEnvOrConfig("PARTITION_RETRIES", config.Partition.MaxRetries, 10),
		ModelMaxIterations: getIntFromEnvOrConfig("MODEL_MAX_ITERATIONS", config.Model.MaxIterations, 50),
		ModelTolerance:     getFloatFromEnvOrConfig("MODEL_TOLERANCE", config.Model.Tolerance, 1e-8),
		DataFile:           getEnvOrDefault("DATA_FILE", config.Data.File),
		DataURL:            getEnvOrDefault("DATA_URL", config.Data.URL),
		FetchTimeout:       fetchTimeout,
		DataPath:           getEnvOrDefault("DATA_PATH", config.System.DataPath),
		OutputPath:         getEnvOrDefault("OUTPUT_PATH", defaultString(config.System.OutputPath, "results")),
		MetricsPort:        getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Folds:              getIntOrDefault("FOLDS", 5),
		Repetitions:        getIntOrDefault("REPETITIONS", 100),
		Workers:            getIntOrDefault("WORKERS", 0),
		MaxFailureFraction: getFloatOrDefault("MAX_FAILURE_FRACTION", 0.2),
		PartitionSeedBase:  getInt64OrDefault("PARTITION_SEED_BASE", 1),
		PartitionRetries:   getIntOrDefault("PARTITION_RETRIES", 10),
		ModelMaxIterations: getIntOrDefault("MODEL_MAX_ITERATIONS", 50),
		ModelTolerance:     getFloatOrDefault("MODEL_TOLERANCE", 1e-8),
		DataFile:           os.Getenv("DATA_FILE"),
		DataURL:            os.Getenv("DATA_URL"),
		FetchTimeout:       getDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
		DataPath:           os.Getenv("DATA_PATH"), // optional, disables persistence when empty
		OutputPath:         getEnvOrDefault("OUTPUT_PATH", "results"),
		MetricsPort:        getIntOrDefault("METRICS_PORT", 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs range validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.Folds < 2 {
		return fmt.Errorf("folds must be at least 2, got %d", settings.Folds)
	}
	if settings.Folds > 1000 {
		return fmt.Errorf("folds must be at most 1000, got %d", settings.Folds)
	}
	if settings.Repetitions < 1 || settings.Repetitions > 100000 {
		return fmt.Errorf("repetitions must be between 1 and 100000, got %d", settings.Repetitions)
	}
	if settings.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", settings.Workers)
	}
	if settings.MaxFailureFraction < 0 || settings.MaxFailureFraction > 1 {
		return fmt.Errorf("max failure fraction must be between 0 and 1, got %f", settings.MaxFailureFraction)
	}
	if settings.PartitionRetries < 1 || settings.PartitionRetries > 1000 {
		return fmt.Errorf("partition retries must be between 1 and 1000, got %d", settings.PartitionRetries)
	}
	if settings.ModelMaxIterations < 1 || settings.ModelMaxIterations > 10000 {
		return fmt.Errorf("model max iterations must be between 1 and 10000, got %d", settings.ModelMaxIterations)
	}
	if settings.ModelTolerance <= 0 || settings.ModelTolerance > 1 {
		return fmt.Errorf("model tolerance must be in (0, 1], got %g", settings.ModelTolerance)
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 10*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 10m, got %v", settings.FetchTimeout)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.DataFile != "" && settings.DataURL != "" {
		return fmt.Errorf("data file and data URL are mutually exclusive")
	}
	return nil
}
