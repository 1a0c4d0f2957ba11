// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/liftmap/internal/domain/trajectory"
)

// Elevator identifies a unit that can be serviced.
type Elevator struct {
	ID       string `json:"id" koanf:"id"`
	Name     string `json:"name" koanf:"name"`
	Code     string `json:"code" koanf:"code"`
	Location string `json:"location" koanf:"location"`
	Status   string `json:"status" koanf:"status"` // "active" or "maintenance"
}

// DefaultElevators returns the built-in elevator registry.
func DefaultElevators() []Elevator {
	return []Elevator{
		{ID: "1", Name: "Tower A", Code: "ELV-001", Location: "Helsinki Central", Status: "active"},
		{ID: "2", Name: "Tower B", Code: "ELV-002", Location: "Kosmo One", Status: "active"},
		{ID: "3", Name: "Office Building", Code: "ELV-003", Location: "Espoo Campus", Status: "maintenance"},
	}
}

// SessionStatus is the lifecycle state of a maintenance session.
type SessionStatus string

// Session lifecycle states.
const (
	StatusRecording SessionStatus = "recording"
	StatusCompleted SessionStatus = "completed"
)

// Session describes one maintenance visit.
type Session struct {
	ID         string        `json:"id"`
	ElevatorID string        `json:"elevator_id"`
	Technician string        `json:"technician"`
	Status     SessionStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
}

// SampleBatch carries readings captured for one session. Readings are
// applied in slice order.
type SampleBatch struct {
	SessionID  string               // owning session
	BatchID    string               // idempotency key supplied by the device, may be empty
	Readings   []trajectory.Reading // raw accelerometer tuples
	ReceivedAt time.Time            // server receive time
}

// Report is the immutable bundle produced when a session finishes.
type Report struct {
	SessionID   string                                `json:"session_id"`
	Session     Session                               `json:"session"`
	Vertical    trajectory.VerticalHeatmap            `json:"vertical"`
	Horizontal  map[int][]trajectory.PositionedSample `json:"horizontal"`
	Summary     trajectory.Summary                    `json:"summary"`
	Analysis    []trajectory.FloorStats               `json:"analysis"`
	Path        []trajectory.PathStep                 `json:"path"`
	Visits      []trajectory.Visit                    `json:"visits"`
	GeneratedAt time.Time                             `json:"generated_at"`
}
