package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Seed    int64         `yaml:"seed"`
	Env     EnvConfig     `yaml:"env"`
	Loop    LoopConfig    `yaml:"loop"`
	Model   ModelConfig   `yaml:"model"`
	Stats   StatsConfig   `yaml:"stats"`
	Eval    EvalConfig    `yaml:"eval"`
	Logging LoggingConfig `yaml:"logging"`
}

// EnvConfig defines the puzzle board
type EnvConfig struct {
	Size            int     `yaml:"size"`
	WinTile         int     `yaml:"win_tile"`
	StartTiles      int     `yaml:"start_tiles"`
	FourProbability float64 `yaml:"four_probability"`
}

// LoopConfig defines the agent schedule
type LoopConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ModelConfig is the hyperparameter bundle of the Q-learning brain.
// It is handed to the agent loop so a reset can rebuild an identical model.
type ModelConfig struct {
	HiddenLayers        []int   `yaml:"hidden_layers"`
	TemporalWindow      int     `yaml:"temporal_window"`
	LearningRate        float64 `yaml:"learning_rate"`
	Momentum            float64 `yaml:"momentum"`
	BatchSize           int     `yaml:"batch_size"`
	L2Decay             float64 `yaml:"l2_decay"`
	Gamma               float64 `yaml:"gamma"`
	EpsilonMin          float64 `yaml:"epsilon_min"`
	EpsilonTestTime     float64 `yaml:"epsilon_test_time"`
	ExperienceAddEvery  int     `yaml:"experience_add_every"`
	ExperienceSize      int     `yaml:"experience_size"`
	LearningStepsTotal  int     `yaml:"learning_steps_total"`
	LearningStepsBurnin int     `yaml:"learning_steps_burnin"`
	StartLearnThreshold int     `yaml:"start_learn_threshold"`
	TDErrorClamp        float64 `yaml:"tderror_clamp"`
}

// StatsConfig defines the rolling statistics
type StatsConfig struct {
	WindowSize   int `yaml:"window_size"`
	LongRunEvery int `yaml:"long_run_every"`
}

// EvalConfig defines the greedy benchmark
type EvalConfig struct {
	Workers          int     `yaml:"workers"` // 0 = NumCPU
	MaxTicks         int     `yaml:"max_ticks"`
	BenchmarkSeeds   []int64 `yaml:"benchmark_seeds"`
	RobustnessLambda float64 `yaml:"robustness_lambda"`
}

// LoggingConfig defines logging and artifact output
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Pretty         bool   `yaml:"pretty"`
	CSVPath        string `yaml:"csv_path"`
	JSONPath       string `yaml:"json_path"`
	DBPath         string `yaml:"db_path"`
	ReplayDir      string `yaml:"replay_dir"`
	CheckpointPath string `yaml:"checkpoint_path"`
}

// Load reads a YAML config file and returns a Config
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a config with every field at its default
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Seed == 0 {
		cfg.Seed = 1337
	}
	if cfg.Env.Size == 0 {
		cfg.Env.Size = 4
	}
	if cfg.Env.WinTile == 0 {
		cfg.Env.WinTile = 2048
	}
	if cfg.Env.StartTiles == 0 {
		cfg.Env.StartTiles = 2
	}
	if cfg.Env.FourProbability == 0 {
		cfg.Env.FourProbability = 0.1
	}
	if cfg.Loop.IntervalMs == 0 {
		cfg.Loop.IntervalMs = 200
	}
	applyModelDefaults(&cfg.Model)
	if cfg.Stats.WindowSize == 0 {
		cfg.Stats.WindowSize = 200
	}
	if cfg.Stats.LongRunEvery == 0 {
		cfg.Stats.LongRunEvery = 10000
	}
	if cfg.Eval.MaxTicks == 0 {
		cfg.Eval.MaxTicks = 5000
	}
	if len(cfg.Eval.BenchmarkSeeds) == 0 {
		cfg.Eval.BenchmarkSeeds = []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	}
	if cfg.Eval.RobustnessLambda == 0 {
		cfg.Eval.RobustnessLambda = 0.5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyModelDefaults(m *ModelConfig) {
	if len(m.HiddenLayers) == 0 {
		m.HiddenLayers = []int{50, 50}
	}
	if m.TemporalWindow == 0 {
		m.TemporalWindow = 1
	}
	if m.LearningRate == 0 {
		m.LearningRate = 0.001
	}
	if m.BatchSize == 0 {
		m.BatchSize = 64
	}
	if m.L2Decay == 0 {
		m.L2Decay = 0.01
	}
	if m.Gamma == 0 {
		m.Gamma = 0.9
	}
	if m.EpsilonMin == 0 {
		m.EpsilonMin = 0.05
	}
	if m.EpsilonTestTime == 0 {
		m.EpsilonTestTime = 0.05
	}
	if m.ExperienceAddEvery == 0 {
		m.ExperienceAddEvery = 5
	}
	if m.ExperienceSize == 0 {
		m.ExperienceSize = 10000
	}
	if m.LearningStepsTotal == 0 {
		m.LearningStepsTotal = 200000
	}
	if m.LearningStepsBurnin == 0 {
		m.LearningStepsBurnin = 3000
	}
	if m.StartLearnThreshold == 0 {
		m.StartLearnThreshold = 1000
	}
	if m.TDErrorClamp == 0 {
		m.TDErrorClamp = 1.0
	}
}

// DefaultModel returns the default brain hyperparameters
func DefaultModel() ModelConfig {
	var m ModelConfig
	applyModelDefaults(&m)
	return m
}

// Validate rejects values the defaults cannot repair
func (c *Config) Validate() error {
	if c.Env.Size < 2 {
		return fmt.Errorf("env.size must be at least 2, got %d", c.Env.Size)
	}
	if c.Env.FourProbability < 0 || c.Env.FourProbability > 1 {
		return fmt.Errorf("env.four_probability must be in [0, 1], got %g", c.Env.FourProbability)
	}
	if c.Loop.IntervalMs < 0 {
		return fmt.Errorf("loop.interval_ms must be positive, got %d", c.Loop.IntervalMs)
	}
	if c.Stats.WindowSize < 1 {
		return fmt.Errorf("stats.window_size must be positive, got %d", c.Stats.WindowSize)
	}
	if c.Stats.LongRunEvery < 1 {
		return fmt.Errorf("stats.long_run_every must be positive, got %d", c.Stats.LongRunEvery)
	}
	if c.Eval.Workers < 0 {
		return fmt.Errorf("eval.workers must not be negative, got %d", c.Eval.Workers)
	}
	m := c.Model
	if m.Gamma < 0 || m.Gamma >= 1 {
		return fmt.Errorf("model.gamma must be in [0, 1), got %g", m.Gamma)
	}
	if m.LearningStepsTotal <= m.LearningStepsBurnin {
		return fmt.Errorf("model.learning_steps_total (%d) must exceed learning_steps_burnin (%d)",
			m.LearningStepsTotal, m.LearningStepsBurnin)
	}
	for _, h := range m.HiddenLayers {
		if h < 1 {
			return fmt.Errorf("model.hidden_layers entries must be positive, got %v", m.HiddenLayers)
		}
	}
	return nil
}

// NumInputs returns the observation length for the configured board
func (c *Config) NumInputs() int {
	return c.Env.Size * c.Env.Size
}
