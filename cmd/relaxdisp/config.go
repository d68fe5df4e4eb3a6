package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the relaxdisp configuration file
// (~/.config/relaxdisp/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	// Evaluation defaults
	Model       string `yaml:"model"`
	RecalcTau   *bool  `yaml:"recalc_tau"`
	R1Fit       *bool  `yaml:"r1_fit"`
	ExpmWorkers *int   `yaml:"expm_workers"`

	// Fitting
	MaxEvaluations *int   `yaml:"max_evaluations"`
	Simulations    *int   `yaml:"simulations"`
	Seed           *int64 `yaml:"seed"`
	Workers        *int   `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	MaxJobs       *int     `yaml:"max_jobs"`
	RateLimit     *float64 `yaml:"rate_limit"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "relaxdisp", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return readConfig(configPath())
}

func readConfig(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyModelConfig applies config file defaults to the evaluation flags
// that were not set on the command line.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelName = cfg.Model
	}
	if cfg.RecalcTau != nil && !c.IsSet("recalc-tau") {
		recalcTau = *cfg.RecalcTau
	}
	recalcTauSet = c.IsSet("recalc-tau") || cfg.RecalcTau != nil
	if cfg.R1Fit != nil && !c.IsSet("r1-fit") {
		r1Fit = *cfg.R1Fit
	}
	if cfg.ExpmWorkers != nil && !c.IsSet("expm-workers") {
		expmWorkers = *cfg.ExpmWorkers
	}
}

func applyFitConfig(c *cli.Command, cfg Config) {
	if cfg.MaxEvaluations != nil && !c.IsSet("max-evals") {
		maxEvaluations = *cfg.MaxEvaluations
	}
	if cfg.Simulations != nil && !c.IsSet("simulations") && !c.IsSet("mc") {
		simulations = *cfg.Simulations
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.Workers != nil && !c.IsSet("workers") && !c.IsSet("j") {
		workers = *cfg.Workers
	}
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxJobs *int, rateLimit *float64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxJobs != nil && !c.IsSet("max-jobs") {
		*maxJobs = *cfg.MaxJobs
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *cfg.RateLimit
	}
}
