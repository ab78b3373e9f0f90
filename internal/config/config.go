package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// Queue
	PulsarURL       string
	DomainTopic     string
	ResultTopic     string
	Subscription    string
	ReceiveInterval time.Duration

	// Concurrency
	ConcurrentTasks int

	// Session timing
	NavigationTimeout time.Duration
	MaxWaitTime       time.Duration
	CheckInterval     time.Duration
	NoChangeLimit     int
	ChangeLimit       int
	DNSTimeout        time.Duration

	// Browser
	ChromePath string
	Headless   bool

	// Upstream proxies, host:port
	Proxies []string

	// Extra substrings blocked on top of the builtin blocklist
	BlockedHosts []string

	// Identity and observability
	ClientNameFile string
	MetricsAddr    string
}

// Load builds a Config by combining defaults, environment variables, and
// CLI flags. Caller should pass the root *cobra.Command so flags can be
// read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:          DefaultLogLevel,
		JSONLog:           DefaultJSONLog,
		PulsarURL:         DefaultPulsarURL,
		DomainTopic:       DefaultDomainTopic,
		ResultTopic:       DefaultResultTopic,
		Subscription:      DefaultSubscription,
		ReceiveInterval:   DefaultReceiveInterval,
		ConcurrentTasks:   DefaultConcurrentTasks,
		NavigationTimeout: DefaultNavigationTimeout,
		MaxWaitTime:       DefaultMaxWaitTime,
		CheckInterval:     DefaultCheckInterval,
		NoChangeLimit:     DefaultNoChangeLimit,
		ChangeLimit:       DefaultChangeLimit,
		DNSTimeout:        DefaultDNSTimeout,
		Headless:          DefaultHeadless,
		ClientNameFile:    DefaultClientNameFile,
		MetricsAddr:       DefaultMetricsAddr,
	}

	// Override from environment variables (simple helpers)
	if v := os.Getenv("SCRAPERD_PULSAR_URL"); v != "" {
		cfg.PulsarURL = v
	}
	if v := os.Getenv("SCRAPERD_DOMAIN_TOPIC"); v != "" {
		cfg.DomainTopic = v
	}
	if v := os.Getenv("SCRAPERD_RESULT_TOPIC"); v != "" {
		cfg.ResultTopic = v
	}
	if v := os.Getenv("SCRAPERD_SUBSCRIPTION"); v != "" {
		cfg.Subscription = v
	}
	if v := os.Getenv("SCRAPERD_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("SCRAPERD_PROXIES"); v != "" {
		cfg.Proxies = splitList(v)
	}
	if v := os.Getenv("SCRAPERD_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConcurrentTasks = n
		}
	}

	// Read CLI flags if provided. Only flags the user actually set may
	// override; otherwise a flag's registered default would clobber the
	// environment values applied above.
	if cmd != nil {
		if f := cmd.Flags().Lookup("pulsar-url"); f != nil && f.Changed {
			cfg.PulsarURL = f.Value.String()
		}
		if f := cmd.Flags().Lookup("domain-topic"); f != nil && f.Changed {
			cfg.DomainTopic = f.Value.String()
		}
		if f := cmd.Flags().Lookup("result-topic"); f != nil && f.Changed {
			cfg.ResultTopic = f.Value.String()
		}
		if f := cmd.Flags().Lookup("subscription"); f != nil && f.Changed {
			cfg.Subscription = f.Value.String()
		}
		if f := cmd.Flags().Lookup("tasks"); f != nil && f.Changed {
			if n, err := strconv.Atoi(f.Value.String()); err == nil && n > 0 {
				cfg.ConcurrentTasks = n
			}
		}
		if f := cmd.Flags().Lookup("proxies"); f != nil && f.Changed {
			cfg.Proxies = splitList(f.Value.String())
		}
		if f := cmd.Flags().Lookup("blocked-hosts"); f != nil && f.Changed {
			cfg.BlockedHosts = splitList(f.Value.String())
		}
		if f := cmd.Flags().Lookup("chrome-path"); f != nil && f.Changed {
			cfg.ChromePath = f.Value.String()
		}
		if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Changed {
			cfg.MetricsAddr = f.Value.String()
		}
		if f := cmd.Flags().Lookup("client-name-file"); f != nil && f.Changed {
			cfg.ClientNameFile = f.Value.String()
		}
		if f := cmd.Flags().Lookup("headful"); f != nil && f.Changed {
			if f.Value.String() == "true" {
				cfg.Headless = false
			}
		}
		if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
			if f.Value.String() == "true" {
				cfg.JSONLog = true
			}
		}
		if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
			if f.Value.String() == "true" {
				cfg.LogLevel = "debug"
			}
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// splitList parses a comma-separated list, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
