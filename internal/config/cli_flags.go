package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("pulsar-url", "", "Pulsar broker URL (e.g., pulsar://localhost:6650)")
	cmd.PersistentFlags().String("domain-topic", "", "Inbound topic carrying domains to scrape")
	cmd.PersistentFlags().String("result-topic", "", "Outbound topic for scrape results")
	cmd.PersistentFlags().String("subscription", "", "Shared subscription name on the domain topic")
	cmd.PersistentFlags().IntP("tasks", "t", DefaultConcurrentTasks, "Maximum concurrent scrape sessions")
	cmd.PersistentFlags().String("proxies", "", "Comma-separated upstream proxies (host:port)")
	cmd.PersistentFlags().String("blocked-hosts", "", "Comma-separated extra substrings to block in request URLs")
	cmd.PersistentFlags().String("chrome-path", "", "Path to the Chrome/Chromium binary")
	cmd.PersistentFlags().Bool("headful", false, "Run the browser with a visible window")
	cmd.PersistentFlags().String("metrics-addr", "", "Listen address for the Prometheus endpoint")
	cmd.PersistentFlags().String("client-name-file", "", "Path of the persisted worker identity file")
}
