// Package config defines service configuration and its defaults.
//
// Values are layered by Load: defaults from New, then an optional YAML file,
// then LIFTMAP_* environment variables.
package config

import (
	"runtime"

	"github.com/okian/liftmap/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds each worker's in-memory batch queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many batch keys are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxBatchSize caps the readings accepted in one POST.
	MaxBatchSize int `koanf:"max_batch_size"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// Timezone names the IANA zone used to format path times.
	Timezone string `koanf:"timezone"`

	// Elevators is the registry of serviceable units.
	Elevators []model.Elevator `koanf:"elevators"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		QueueSize:    10_000,
		WorkerCount:  runtime.NumCPU(),
		DedupeSize:   100_000,
		MaxBatchSize: 5_000,
		DBPath:       "liftmap.db",
		Timezone:     "Local",
		Elevators:    model.DefaultElevators(),
	}
}
