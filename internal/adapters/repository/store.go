// Package repository persists maintenance sessions and their derived analytics.
package repository

import (
	"context"
	"time"

	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
)

// Store provides read/write access to persisted sessions.
type Store interface {
	// CreateSession inserts a new recording session.
	CreateSession(ctx context.Context, s model.Session) error
	// FinishSession marks a session completed at endedAt.
	// Returns ErrNotFound if the session is unknown.
	FinishSession(ctx context.Context, sessionID string, endedAt time.Time) error
	// GetSession returns one session. Returns ErrNotFound if it is unknown.
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	// ListSessions returns every session, most recently started first.
	ListSessions(ctx context.Context) ([]model.Session, error)

	// AppendSamples stores samples after those already stored for the session.
	// batchID may be empty for readings that carry no idempotency key.
	AppendSamples(ctx context.Context, sessionID, batchID string, samples []trajectory.Sample) error
	// BatchIDs returns the non-empty batch ids of the stored samples in the
	// order they were first appended.
	BatchIDs(ctx context.Context, sessionID string) ([]string, error)
	// DeleteSamples drops every stored sample of the session.
	DeleteSamples(ctx context.Context, sessionID string) error
	// Samples returns the stored samples of a session in ingestion order.
	Samples(ctx context.Context, sessionID string) ([]trajectory.Sample, error)

	// SaveVisits replaces the floor visits of a session.
	SaveVisits(ctx context.Context, sessionID string, visits []trajectory.Visit) error
	// Visits returns the floor visits of a session ordered by entry time.
	Visits(ctx context.Context, sessionID string) ([]trajectory.Visit, error)
	// SaveHeatmaps replaces the per-floor horizontal heat maps of a session.
	SaveHeatmaps(ctx context.Context, sessionID string, heatmaps map[int][]trajectory.PositionedSample) error

	// SaveReport stores the final report of a session, replacing any previous one.
	SaveReport(ctx context.Context, r model.Report) error
	// GetReport returns the stored report. Returns ErrNotFound if none exists.
	GetReport(ctx context.Context, sessionID string) (model.Report, error)

	Close() error
}
