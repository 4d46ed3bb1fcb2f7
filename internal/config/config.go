package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/riskstack/riskmodel/internal/dataset"
	"github.com/riskstack/riskmodel/internal/learn"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Config captures the settings of one model selection run.
type Config struct {
	Data       DataConfig                 `yaml:"data"`
	Split      SplitConfig                `yaml:"split"`
	Algorithms map[string]AlgorithmConfig `yaml:"algorithms"`
	Output     OutputConfig               `yaml:"output"`
	Logging    LoggingConfig              `yaml:"logging"`
	Metrics    MetricsConfig              `yaml:"metrics"`
	Telemetry  TelemetryConfig            `yaml:"telemetry"`
	Lock       LockConfig                 `yaml:"lock"`
	History    HistoryConfig              `yaml:"history"`
	Rules      RulesConfig                `yaml:"rules"`
	Tasks      []dataset.TaskSpec         `yaml:"tasks"`
}

// DataConfig locates the policy extract.
type DataConfig struct {
	Path      string `yaml:"path"`
	Separator string `yaml:"separator"`
}

// SplitConfig controls the hold-out split.
type SplitConfig struct {
	Seed     uint64  `yaml:"seed"`
	TestSize float64 `yaml:"testSize"`
	Scale    bool    `yaml:"scale"`
}

// AlgorithmConfig enables or tunes one catalogue entry.
type AlgorithmConfig struct {
	Enabled      *bool `yaml:"enabled"`
	learn.Params `yaml:",inline"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	SaveModels bool   `yaml:"saveModels"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"serviceName"`
}

// LockConfig selects the artifact lock. An empty Addr keeps locking in-process.
type LockConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	TTL          time.Duration `yaml:"ttl"`
	Timeout      time.Duration `yaml:"timeout"`
}

// HistoryConfig controls the decision ledger.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RulesConfig controls rule-pack loading for business impact text.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from .env, a YAML file and environment overrides.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("RISKMODEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, utils.NewAppError(op, utils.ErrNotFound, "config file "+path, err)
			}
			return nil, utils.NewAppError(op, utils.ErrIO, "read config", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, utils.NewAppError(op, utils.ErrInvalidInput, "parse config", err)
		}
	}

	applyEnvOverrides(&cfg)
	if len(cfg.Tasks) == 0 {
		cfg.Tasks = dataset.DefaultTasks()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() Config {
	cfg := defaultConfig()
	cfg.Tasks = dataset.DefaultTasks()
	return cfg
}

func defaultConfig() Config {
	return Config{
		Data:    DataConfig{Path: "data/MachineLearningRating_v3.txt", Separator: "|"},
		Split:   SplitConfig{Seed: dataset.DefaultSeed, TestSize: dataset.DefaultTestSize},
		Output:  OutputConfig{Dir: "reports"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Telemetry: TelemetryConfig{
			ServiceName: "riskmodel",
		},
		Lock: LockConfig{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			TTL:          30 * time.Second,
			Timeout:      time.Minute,
		},
		History: HistoryConfig{Enabled: true, Path: "reports/history.sqlite"},
		Rules:   RulesConfig{Path: "configs/rules/impact.yaml"},
	}
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	const op = "config.Validate"
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return utils.InvalidInput(op, "split.testSize must be in (0, 1), got %v", c.Split.TestSize)
	}
	if _, err := c.SeparatorRune(); err != nil {
		return err
	}
	for key := range c.Algorithms {
		if _, ok := learn.LookupKey(key); !ok {
			return utils.InvalidInput(op, "unknown algorithm %q", key)
		}
	}
	seen := make(map[string]bool, len(c.Tasks))
	for _, task := range c.Tasks {
		if task.Name == "" || task.Target == "" {
			return utils.InvalidInput(op, "task requires name and target")
		}
		if !task.Type.Valid() {
			return utils.InvalidInput(op, "task %q has unsupported type %q", task.Name, task.Type)
		}
		if seen[task.Name] {
			return utils.InvalidInput(op, "duplicate task %q", task.Name)
		}
		seen[task.Name] = true
	}
	return nil
}

// SeparatorRune returns the single-character data separator.
func (c Config) SeparatorRune() (rune, error) {
	if c.Data.Separator == "" {
		return dataset.DefaultSeparator, nil
	}
	r, size := utf8.DecodeRuneInString(c.Data.Separator)
	if r == utf8.RuneError || size != len(c.Data.Separator) {
		return 0, utils.InvalidInput("config.SeparatorRune", "separator must be one character, got %q", c.Data.Separator)
	}
	return r, nil
}

// CatalogueOptions maps the algorithms section onto catalogue options.
func (c Config) CatalogueOptions() learn.Options {
	opts := learn.Options{
		Seed:      c.Split.Seed,
		Disabled:  make(map[string]bool),
		Overrides: make(map[string]learn.Params),
	}
	for key, alg := range c.Algorithms {
		if alg.Enabled != nil && !*alg.Enabled {
			opts.Disabled[key] = true
		}
		opts.Overrides[key] = alg.Params
	}
	return opts
}

// TaskNames lists configured task names in order.
func (c Config) TaskNames() []string {
	names := make([]string, len(c.Tasks))
	for i, t := range c.Tasks {
		names[i] = t.Name
	}
	return names
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RISKMODEL_DATA_PATH"); v != "" {
		cfg.Data.Path = v
	}
	if v := os.Getenv("RISKMODEL_DATA_SEPARATOR"); v != "" {
		cfg.Data.Separator = v
	}
	if v := os.Getenv("RISKMODEL_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Split.Seed = seed
		}
	}
	if v := os.Getenv("RISKMODEL_TEST_SIZE"); v != "" {
		if size, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Split.TestSize = size
		}
	}
	if v := os.Getenv("RISKMODEL_SCALE"); v != "" {
		cfg.Split.Scale = truthy(v)
	}
	if v := os.Getenv("RISKMODEL_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("RISKMODEL_SAVE_MODELS"); v != "" {
		cfg.Output.SaveModels = truthy(v)
	}
	if v := os.Getenv("RISKMODEL_DISABLED_ALGORITHMS"); v != "" {
		if cfg.Algorithms == nil {
			cfg.Algorithms = make(map[string]AlgorithmConfig)
		}
		disabled := false
		for _, key := range strings.Split(v, ",") {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			alg := cfg.Algorithms[key]
			alg.Enabled = &disabled
			cfg.Algorithms[key] = alg
		}
	}
	if v := os.Getenv("RISKMODEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RISKMODEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("RISKMODEL_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("RISKMODEL_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("RISKMODEL_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := os.Getenv("RISKMODEL_OTEL_INSECURE"); v != "" {
		cfg.Telemetry.Insecure = truthy(v)
	}
	if v := os.Getenv("RISKMODEL_LOCK_ADDR"); v != "" {
		cfg.Lock.Addr = v
	}
	if v := os.Getenv("RISKMODEL_LOCK_USERNAME"); v != "" {
		cfg.Lock.Username = v
	}
	if v := os.Getenv("RISKMODEL_LOCK_PASSWORD"); v != "" {
		cfg.Lock.Password = v
	}
	if v := os.Getenv("RISKMODEL_LOCK_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Lock.DB = db
		}
	}
	if v := os.Getenv("RISKMODEL_LOCK_TLS"); truthy(v) {
		cfg.Lock.TLS = true
	}
	if v := os.Getenv("RISKMODEL_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Lock.TTL = d
		}
	}
	if v := os.Getenv("RISKMODEL_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Lock.Timeout = d
		}
	}
	if v := os.Getenv("RISKMODEL_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = truthy(v)
	}
	if v := os.Getenv("RISKMODEL_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("RISKMODEL_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
}

func truthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// String renders a short description for startup logs.
func (c Config) String() string {
	return fmt.Sprintf("data=%s tasks=%d seed=%d testSize=%.2f output=%s", c.Data.Path, len(c.Tasks), c.Split.Seed, c.Split.TestSize, c.Output.Dir)
}
