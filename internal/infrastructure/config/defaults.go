package config

import "time"

const (
	DefaultHTTPPort          = "8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultHTTPClientTimeout = 15 * time.Second
	DefaultPGMaxConns        = 5
	DefaultPGMinConns        = 1
)
