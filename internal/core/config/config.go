package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr                 string
	LogLevel             string
	LogConsole           bool
	LogSampleN           int
	OAFPageSize          int
	OAFMaxPages          int
	InterfaceCacheSize   int
	PropertyFetchTimeout time.Duration
	Metrics              MetricsCfg
}

func FromEnv() Config {
	pageSize := getint("OAF_PAGE_SIZE", 1000)
	if pageSize <= 0 {
		pageSize = 1000
	}
	maxPages := getint("OAF_MAX_PAGES", 100)
	if maxPages <= 0 {
		maxPages = 100
	}

	return Config{
		Addr:                 getenv("ADDR", ":8090"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogConsole:           getbool("LOG_CONSOLE", false),
		LogSampleN:           getint("LOG_SAMPLE_N", 0),
		OAFPageSize:          pageSize,
		OAFMaxPages:          maxPages,
		InterfaceCacheSize:   getint("INTERFACE_CACHE_SIZE", 64),
		PropertyFetchTimeout: getduration("PROPERTY_FETCH_TIMEOUT", 0),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
