package config

import "fmt"

func validate(c *Config) error {
	if c.PulsarURL == "" {
		return fmt.Errorf("pulsar url must be set")
	}
	if c.DomainTopic == "" || c.ResultTopic == "" {
		return fmt.Errorf("domain and result topics must be set")
	}
	if c.DomainTopic == c.ResultTopic {
		return fmt.Errorf("domain and result topics must differ")
	}
	if c.Subscription == "" {
		return fmt.Errorf("subscription name must be set")
	}
	if c.ConcurrentTasks <= 0 || c.ConcurrentTasks > DefaultMaxConcurrentTasks {
		return fmt.Errorf("concurrent tasks must be between 1 and %d", DefaultMaxConcurrentTasks)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be > 0")
	}
	if c.MaxWaitTime <= 0 {
		return fmt.Errorf("max wait time must be > 0")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be > 0")
	}
	if c.NoChangeLimit <= 0 || c.ChangeLimit <= 0 {
		return fmt.Errorf("convergence limits must be > 0")
	}
	return nil
}
