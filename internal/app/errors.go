package service

import "errors"

// Sentinel error kinds returned by Service. Callers match them with errors.Is.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionNotFound = errors.New("session not found")
	ErrReportNotFound  = errors.New("report not found")
	ErrUnknownElevator = errors.New("unknown elevator")
	ErrSessionClosed   = errors.New("session is not recording")
	ErrEmptyBatch      = errors.New("batch has no readings")
	ErrBatchTooLarge   = errors.New("batch exceeds maximum size")
	ErrQueueFull       = errors.New("ingestion queue full")
)
