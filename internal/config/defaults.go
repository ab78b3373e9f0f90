package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel           = "info"
	DefaultJSONLog            = false
	DefaultPulsarURL          = "pulsar://localhost:6650"
	DefaultDomainTopic        = "domains"
	DefaultResultTopic        = "results"
	DefaultSubscription       = "scraperd"
	DefaultReceiveInterval    = 500 * time.Millisecond
	DefaultConcurrentTasks    = 4
	DefaultMaxConcurrentTasks = 64
	DefaultNavigationTimeout  = 30 * time.Second
	DefaultMaxWaitTime        = 12 * time.Second
	DefaultCheckInterval      = 400 * time.Millisecond
	DefaultNoChangeLimit      = 3
	DefaultChangeLimit        = 4
	DefaultDNSTimeout         = 1 * time.Second
	DefaultHeadless           = true
	DefaultClientNameFile     = "client_name"
	DefaultMetricsAddr        = ":9200"
)
