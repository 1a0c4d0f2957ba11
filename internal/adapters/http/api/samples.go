package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
)

// Upper bound on the encoded size of one reading, used to cap request bodies.
const maxReadingBytes = 256

// SamplesHandler accepts accelerometer batches.
type SamplesHandler struct {
	deps         SampleDependencies
	maxBatchSize int
	now          func() time.Time
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps SampleDependencies, maxBatchSize int) *SamplesHandler {
	if maxBatchSize < 1 {
		maxBatchSize = 1
	}
	return &SamplesHandler{deps: deps, maxBatchSize: maxBatchSize, now: time.Now}
}

// samplesRequest mirrors the OpenAPI schema for POST /sessions/{id}/samples.
type samplesRequest struct {
	BatchID string               `json:"batch_id"`
	Samples []trajectory.Reading `json:"samples"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Accepted  int    `json:"accepted"`
}

// HandlePostSamples handles POST /sessions/{id}/samples. Readings without a
// timestamp are stamped with the receive time.
func (h *SamplesHandler) HandlePostSamples(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, int64(h.maxBatchSize*maxReadingBytes+1024))
	var req samplesRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	received := h.now()
	for i := range req.Samples {
		if req.Samples[i].Timestamp == 0 {
			req.Samples[i].Timestamp = received.UnixMilli()
		}
	}

	dup, err := h.deps.Enqueue(r.Context(), model.SampleBatch{
		SessionID:  r.PathValue("id"),
		BatchID:    req.BatchID,
		Readings:   req.Samples,
		ReceivedAt: received,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Accepted: len(req.Samples)})
}
