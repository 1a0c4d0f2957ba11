// Package simulate drives a running liftmap service with synthetic elevator
// rides and checks every server-side report against a local replay.
package simulate

import (
	"fmt"
	"io"
	"time"
)

// Defaults for a simulation run.
const (
	DefaultSessions   = 4
	DefaultStops      = 6
	DefaultRate       = 10 // readings per second
	DefaultBatchSize  = 50
	DefaultWorkers    = 4
	DefaultTimeout    = 10 * time.Second
	DefaultElevatorID = "1"
	DefaultTechnician = "simulator"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Sessions   int           // Number of sessions to record
	Stops      int           // Floor changes per session
	Rate       int           // Readings per second
	BatchSize  int           // Readings per submitted batch
	Workers    int           // Sessions recorded concurrently
	Timeout    time.Duration // HTTP request timeout
	ElevatorID string        // Elevator every session is started on
	Technician string
	Seed       uint64 // Seed of the ride generator
	// Retransmit is the fraction of batches sent twice, in [0, 1].
	Retransmit float64
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Sessions <= 0 {
		c.Sessions = DefaultSessions
	}
	if c.Stops <= 0 {
		c.Stops = DefaultStops
	}
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ElevatorID == "" {
		c.ElevatorID = DefaultElevatorID
	}
	if c.Technician == "" {
		c.Technician = DefaultTechnician
	}
	c.Retransmit = min(max(c.Retransmit, 0), 1)
	return c
}

// Stats holds run statistics.
type Stats struct {
	SessionsStarted  int
	SessionsVerified int
	SessionsFailed   int
	Readings         int
	BatchesAccepted  int
	BatchesDuplicate int
	BatchesRetried   int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// Print writes a human readable summary of s.
func (s *Stats) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, `sessions: %d started, %d verified, %d failed
readings: %d
batches:  %d accepted, %d duplicate, %d retried
duration: %s
`, s.SessionsStarted, s.SessionsVerified, s.SessionsFailed,
		s.Readings,
		s.BatchesAccepted, s.BatchesDuplicate, s.BatchesRetried,
		s.Duration.Round(time.Millisecond))
	return err
}
