package config

import (
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	return cmd
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newTestCmd())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PulsarURL != DefaultPulsarURL {
		t.Errorf("PulsarURL = %q, want %q", cfg.PulsarURL, DefaultPulsarURL)
	}
	if cfg.ConcurrentTasks != DefaultConcurrentTasks {
		t.Errorf("ConcurrentTasks = %d, want %d", cfg.ConcurrentTasks, DefaultConcurrentTasks)
	}
	if !cfg.Headless {
		t.Error("Headless should default to true")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cmd := newTestCmd()
	args := []string{
		"--pulsar-url", "pulsar://broker:6650",
		"--tasks", "8",
		"--proxies", "10.0.0.1:3128, 10.0.0.2:3128",
		"--headful",
		"--verbose",
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PulsarURL != "pulsar://broker:6650" {
		t.Errorf("PulsarURL = %q", cfg.PulsarURL)
	}
	if cfg.ConcurrentTasks != 8 {
		t.Errorf("ConcurrentTasks = %d, want 8", cfg.ConcurrentTasks)
	}
	if len(cfg.Proxies) != 2 || cfg.Proxies[0] != "10.0.0.1:3128" || cfg.Proxies[1] != "10.0.0.2:3128" {
		t.Errorf("Proxies = %v", cfg.Proxies)
	}
	if cfg.Headless {
		t.Error("Headless should be false with --headful")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug with --verbose", cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SCRAPERD_PULSAR_URL", "pulsar://env:6650")
	t.Setenv("SCRAPERD_PROXIES", "proxy.internal:8080")
	t.Setenv("SCRAPERD_CONCURRENT_TASKS", "9")

	cfg, err := Load(newTestCmd())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PulsarURL != "pulsar://env:6650" {
		t.Errorf("PulsarURL = %q, want env value", cfg.PulsarURL)
	}
	if len(cfg.Proxies) != 1 || cfg.Proxies[0] != "proxy.internal:8080" {
		t.Errorf("Proxies = %v", cfg.Proxies)
	}
	// The tasks flag carries a non-empty default; an unset flag must not
	// clobber the environment value.
	if cfg.ConcurrentTasks != 9 {
		t.Errorf("ConcurrentTasks = %d, want 9 from SCRAPERD_CONCURRENT_TASKS", cfg.ConcurrentTasks)
	}
}

func TestLoad_SetFlagBeatsEnv(t *testing.T) {
	t.Setenv("SCRAPERD_CONCURRENT_TASKS", "9")

	cmd := newTestCmd()
	if err := cmd.ParseFlags([]string{"--tasks", "2"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConcurrentTasks != 2 {
		t.Errorf("ConcurrentTasks = %d, want 2 from the explicit flag", cfg.ConcurrentTasks)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"same topics", []string{"--domain-topic", "x", "--result-topic", "x"}},
		{"too many tasks", []string{"--tasks", "1000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newTestCmd()
			if err := cmd.ParseFlags(tc.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			if _, err := Load(cmd); err == nil {
				t.Error("Load should reject invalid configuration")
			}
		})
	}
}
