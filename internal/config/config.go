package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"ehrkit/pkg/contracts/domain"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RunTimeout      time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" default:"30m"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/ehrkit.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	ExportDir string `yaml:"export_dir" envconfig:"EXPORT_DIR" default:"exports"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// PipelineConfig contains the preprocessing defaults threaded through the
// orchestrator. There is no process-wide mutable state; per-run options may
// override any of these.
type PipelineConfig struct {
	CardinalityThreshold int     `yaml:"cardinality_threshold" envconfig:"CARDINALITY_THRESHOLD" default:"10" validate:"min=2"`
	OutlierSigma         float64 `yaml:"outlier_sigma" envconfig:"OUTLIER_SIGMA" default:"3" validate:"gt=0"`
	ConvergenceEpsilon   float64 `yaml:"convergence_epsilon" envconfig:"CONVERGENCE_EPSILON" default:"0.001" validate:"gt=0"`
	MaxIterations        int     `yaml:"max_iterations" envconfig:"MAX_ITERATIONS" default:"10" validate:"min=1"`
	Neighbors            int     `yaml:"neighbors" envconfig:"NEIGHBORS" default:"5" validate:"min=1"`
	Workers              int     `yaml:"workers" envconfig:"WORKERS" default:"4" validate:"min=1"`
	EncodeMissing        bool    `yaml:"encode_missing" envconfig:"ENCODE_MISSING" default:"false"`

	// Global strategy defaults; per-feature selections are per-run options.
	EncodingStrategy   string `yaml:"encoding_strategy" envconfig:"ENCODING_STRATEGY" default:"one_hot" validate:"oneof=one_hot ordinal count hash"`
	ImputationStrategy string `yaml:"imputation_strategy" envconfig:"IMPUTATION_STRATEGY" default:"mean" validate:"oneof=mean median mode knn chained"`

	// DateFormats are tried in order when classifying date features.
	DateFormats []string `yaml:"date_formats" envconfig:"DATE_FORMATS" default:"2006-01-02,2006-01-02 15:04:05,02/01/2006"`
}

// EncodingStrategyValue returns the configured global encoding strategy as
// a domain value.
func (p PipelineConfig) EncodingStrategyValue() domain.EncodingStrategy {
	return domain.EncodingStrategy(p.EncodingStrategy)
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Environment variables take precedence over the file.
	if err := envconfig.Process("EHR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Paths.DataDir == "" {
		envConfig.Paths.DataDir = fileConfig.Paths.DataDir
	}
	if envConfig.Pipeline.CardinalityThreshold == 0 {
		envConfig.Pipeline.CardinalityThreshold = fileConfig.Pipeline.CardinalityThreshold
	}
	if envConfig.Pipeline.EncodingStrategy == "" {
		envConfig.Pipeline.EncodingStrategy = fileConfig.Pipeline.EncodingStrategy
	}
	if envConfig.Pipeline.ImputationStrategy == "" {
		envConfig.Pipeline.ImputationStrategy = fileConfig.Pipeline.ImputationStrategy
	}
	return envConfig
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if !domain.EncodingStrategy(c.Pipeline.EncodingStrategy).Valid() {
		return fmt.Errorf("unknown encoding strategy %q", c.Pipeline.EncodingStrategy)
	}
	return nil
}

// EnsureDirs creates the configured directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ExportDir, c.Paths.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// getConfigFilePath returns the config file location, next to the working
// directory unless overridden.
func getConfigFilePath() string {
	if path := os.Getenv("EHR_CONFIG_FILE"); path != "" {
		return path
	}
	return filepath.Join(".", "ehrkit.yaml")
}
