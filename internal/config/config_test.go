package config

import (
	"os"
	"runtime"
	"testing"
)

func TestGetDefaultWorkers(t *testing.T) {
	expected := runtime.NumCPU()
	if expected > 8 {
		expected = 8
	}
	actual := getDefaultWorkers()
	if actual != expected {
		t.Errorf("getDefaultWorkers() = %d, want %d", actual, expected)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "perfviz-config-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	oldWd, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Output.Directory != "results" {
		t.Errorf("output.directory = %q, want %q", cfg.Output.Directory, "results")
	}
	if cfg.Chart.SortColumnsByName {
		t.Error("chart.sort_columns_by_name should default to false (sort by relevance)")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PERFVIZ_LOG_LEVEL", "debug")
	t.Setenv("PERFVIZ_CHART_SORT_COLUMNS_BY_NAME", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want %q", cfg.Log.Level, "debug")
	}
	if !cfg.Chart.SortColumnsByName {
		t.Error("chart.sort_columns_by_name not overridden by environment")
	}
}

func TestValidate_RejectsBadFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{Level: "info", Format: "yaml"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted log.format yaml")
	}
}

func TestValidate_RejectsMissingInput(t *testing.T) {
	cfg := &Config{
		Input: InputConfig{Path: "/does/not/exist.data"},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted nonexistent input path")
	}
}
