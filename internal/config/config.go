package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for perfviz
type Config struct {
	Input  InputConfig
	Output OutputConfig
	Chart  ChartConfig
	Log    LogConfig
}

type InputConfig struct {
	Path string // file, directory, .zip, .tgz; detector decides the format
}

type OutputConfig struct {
	Directory string // result directory; created if missing
	Overwrite bool   // replace existing artifacts instead of failing
}

type ChartConfig struct {
	SortColumnsByName bool // sort legends alphabetically instead of by relevance
	Workers           int  // concurrent node files within one input (0 = per CPU)
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("PERFVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("perfviz")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.perfviz/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Input: InputConfig{
			Path: v.GetString("input.path"),
		},
		Output: OutputConfig{
			Directory: v.GetString("output.directory"),
			Overwrite: v.GetBool("output.overwrite"),
		},
		Chart: ChartConfig{
			SortColumnsByName: v.GetBool("chart.sort_columns_by_name"),
			Workers:           v.GetInt("chart.workers"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.path", "")
	v.SetDefault("output.directory", "results")
	v.SetDefault("output.overwrite", true)
	v.SetDefault("chart.sort_columns_by_name", false)
	v.SetDefault("chart.workers", getDefaultWorkers())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// getDefaultWorkers bounds node-file concurrency to the machine
func getDefaultWorkers() int {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return workers
}

// Validate checks the loaded configuration for fatal mistakes before any
// input is touched.
func (c *Config) Validate() error {
	if c.Chart.Workers < 0 {
		return fmt.Errorf("chart.workers must not be negative, got %d", c.Chart.Workers)
	}
	if c.Input.Path != "" {
		if _, err := os.Stat(c.Input.Path); err != nil {
			return fmt.Errorf("input.path %q: %w", c.Input.Path, err)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
