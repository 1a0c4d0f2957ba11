// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
//
// Every live maintenance session owns one trajectory engine guarded by its
// own mutex. Sample batches reach the engine through a worker pool that routes
// all batches of a session to the same worker, so each engine has a single
// writer and sees readings in arrival order.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	workerpool "github.com/okian/liftmap/internal/adapters/mq/worker"
	"github.com/okian/liftmap/internal/adapters/repository"
	"github.com/okian/liftmap/internal/domain/dedupe"
	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
	"github.com/okian/liftmap/pkg/logger"
	"github.com/okian/liftmap/pkg/metrics"
)

// Service implements the API dependencies for the trajectory system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	deduper    dedupe.Deduper
	workerPool *workerpool.Pool
	sessions   map[string]*liveSession

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	maxBatchSize int
	dbPath       string
	elevators    []model.Elevator
	location     *time.Location
	now          func() time.Time

	started bool

	logger logger.Logger
}

// liveSession is the in-memory side of one session.
type liveSession struct {
	mu      sync.Mutex
	info    model.Session
	engine  *trajectory.Engine
	closing bool
	// pending counts batches accepted by Enqueue and not yet applied.
	pending sync.WaitGroup
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    10_000,
		dedupeSize:   100_000,
		maxBatchSize: 5_000,
		dbPath:       "liftmap.db",
		elevators:    model.DefaultElevators(),
		location:     time.Local,
		now:          time.Now,
		sessions:     make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store when none was injected and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting trajectory service...")

	if s.store == nil {
		store, err := repository.NewSQLiteStore(ctx, s.dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queueSize, queuedIngester{s: s})
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "trajectory service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued batches and releases resources.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool := s.workerPool
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping trajectory service...")

	// Workers take session locks, so the pool is drained without holding s.mu.
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "close store", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}
	s.sessions = make(map[string]*liveSession)
	s.logger.Info(ctx, "trajectory service stopped")
}

// Elevators returns the elevator registry.
func (s *Service) Elevators(context.Context) []model.Elevator {
	return append([]model.Elevator(nil), s.elevators...)
}

func (s *Service) elevator(id string) (model.Elevator, bool) {
	for _, e := range s.elevators {
		if e.ID == id {
			return e, true
		}
	}
	return model.Elevator{}, false
}

// StartSession opens a recording session on an elevator.
func (s *Service) StartSession(ctx context.Context, elevatorID, technician string) (model.Session, error) {
	if _, ok := s.elevator(elevatorID); !ok {
		return model.Session{}, fmt.Errorf("%w: %q", ErrUnknownElevator, elevatorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return model.Session{}, ErrNotStarted
	}

	info := model.Session{
		ID:         uuid.NewString(),
		ElevatorID: elevatorID,
		Technician: technician,
		Status:     model.StatusRecording,
		StartedAt:  s.now().UTC(),
	}
	if err := s.store.CreateSession(ctx, info); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.sessions[info.ID] = &liveSession{
		info:   info,
		engine: trajectory.NewEngine(trajectory.WithLocation(s.location)),
	}

	metrics.RecordSessionStarted()
	metrics.UpdateSessionsActive(s.activeLocked())
	s.logger.Info(ctx, "session started",
		logger.String("session", info.ID),
		logger.String("elevator", elevatorID),
	)
	return info, nil
}

// lookup returns the live session, rebuilding it from the store when the
// process has restarted since the session was created.
func (s *Service) lookup(ctx context.Context, id string) (*liveSession, error) {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return nil, ErrNotStarted
	}
	ls, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return ls, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if ls, ok := s.sessions[id]; ok {
		return ls, nil
	}

	info, err := s.store.GetSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	samples, err := s.store.Samples(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load samples of %s: %w", id, err)
	}

	readings := make([]trajectory.Reading, len(samples))
	for i, p := range samples {
		readings[i] = trajectory.Reading{X: p.X, Y: p.Y, Z: p.Z, Timestamp: p.Timestamp}
	}
	engine := trajectory.Replay(readings, trajectory.WithLocation(s.location))
	if info.EndedAt != nil {
		engine.SetTiming(info.StartedAt, *info.EndedAt)
	}

	var batches []string
	if info.Status == model.StatusRecording {
		batches, err = s.store.BatchIDs(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load batch ids of %s: %w", id, err)
		}
		for _, b := range batches {
			s.deduper.SeenAndRecord(ctx, dedupe.Key(id, b))
		}
	}

	ls = &liveSession{info: info, engine: engine}
	s.sessions[id] = ls
	s.logger.Debug(ctx, "session restored from store",
		logger.String("session", id),
		logger.Int("samples", len(samples)),
		logger.Int("batches", len(batches)),
	)
	return ls, nil
}

// Session returns the metadata of one session.
func (s *Service) Session(ctx context.Context, id string) (model.Session, error) {
	ls, err := s.lookup(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.info, nil
}

// ListSessions returns every persisted session, most recent first.
func (s *Service) ListSessions(ctx context.Context) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store.ListSessions(ctx)
}

// Enqueue accepts a batch for asynchronous ingestion. It reports duplicate
// when the batch ID was already accepted for the session; such batches are
// dropped without error.
func (s *Service) Enqueue(ctx context.Context, b model.SampleBatch) (duplicate bool, err error) { //nolint:gocritic // hugeParam: batches travel by value through the queue
	if len(b.Readings) == 0 {
		return false, ErrEmptyBatch
	}
	if len(b.Readings) > s.maxBatchSize {
		return false, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.Readings), s.maxBatchSize)
	}

	ls, err := s.lookup(ctx, b.SessionID)
	if err != nil {
		return false, err
	}

	ls.mu.Lock()
	if ls.closing || ls.info.Status != model.StatusRecording {
		ls.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrSessionClosed, b.SessionID)
	}
	ls.pending.Add(1)
	ls.mu.Unlock()

	var key string
	if b.BatchID != "" {
		key = dedupe.Key(b.SessionID, b.BatchID)
		if s.deduper.SeenAndRecord(ctx, key) {
			ls.pending.Done()
			metrics.RecordBatchDuplicate()
			s.logger.Debug(ctx, "duplicate batch dropped",
				logger.String("session", b.SessionID),
				logger.String("batch", b.BatchID),
			)
			return true, nil
		}
	}

	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = s.now()
	}
	if !s.workerPool.Submit(ctx, b) {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		ls.pending.Done()
		return false, ErrQueueFull
	}
	return false, nil
}

// queuedIngester is the worker pool's view of the service. It releases the
// pending slot taken by Enqueue once the batch has been applied.
type queuedIngester struct {
	s *Service
}

func (q queuedIngester) Ingest(ctx context.Context, b model.SampleBatch) error { //nolint:gocritic // hugeParam: batches travel by value through the queue
	q.s.mu.RLock()
	ls, ok := q.s.sessions[b.SessionID]
	q.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, b.SessionID)
	}
	defer ls.pending.Done()

	err := q.s.apply(ctx, ls, b.BatchID, b.Readings)
	if err != nil && b.BatchID != "" {
		// Nothing was applied, so a retransmission must be accepted.
		q.s.deduper.Unrecord(ctx, dedupe.Key(b.SessionID, b.BatchID))
	}
	return err
}

// Ingest applies a batch synchronously. It bypasses the queue and the batch
// deduplication.
func (s *Service) Ingest(ctx context.Context, b model.SampleBatch) error { //nolint:gocritic // hugeParam: batches travel by value through the queue
	ls, err := s.lookup(ctx, b.SessionID)
	if err != nil {
		return err
	}
	return s.apply(ctx, ls, b.BatchID, b.Readings)
}

// apply stores the batch and only then installs it in the engine, so the live
// engine never holds samples a restart could not replay.
func (s *Service) apply(ctx context.Context, ls *liveSession, batchID string, readings []trajectory.Reading) error {
	start := time.Now()
	defer func() {
		metrics.RecordIngestLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.info.Status != model.StatusRecording {
		return fmt.Errorf("%w: %s", ErrSessionClosed, ls.info.ID)
	}

	next, samples := ls.engine.Stage(readings)
	if err := s.store.AppendSamples(ctx, ls.info.ID, batchID, samples); err != nil {
		s.logger.Error(ctx, "persist samples failed",
			logger.String("session", ls.info.ID),
			logger.String("batch", batchID),
			logger.Int("samples", len(samples)),
			logger.Error(err),
		)
		return fmt.Errorf("persist samples: %w", err)
	}
	transitions := len(next.Trajectory) - ls.engine.Transitions()
	ls.engine.Commit(next)

	metrics.RecordSamplesIngested(len(samples))
	metrics.RecordFloorTransitions(transitions)
	return nil
}

// ResetSession discards every sample of a recording session.
func (s *Service) ResetSession(ctx context.Context, id string) error {
	ls, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.info.Status != model.StatusRecording {
		return fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	if err := s.store.DeleteSamples(ctx, id); err != nil {
		return fmt.Errorf("reset session %s: %w", id, err)
	}
	ls.engine.Reset()
	// Stored batch ids went with the samples; keep the live keys in line.
	s.deduper.Forget(ctx, id)
	s.logger.Info(ctx, "session reset", logger.String("session", id))
	return nil
}

// FinishSession stops accepting batches, waits for accepted batches to be
// applied, then persists visits, heat maps and the final report.
func (s *Service) FinishSession(ctx context.Context, id string) (model.Report, error) {
	ls, err := s.lookup(ctx, id)
	if err != nil {
		return model.Report{}, err
	}

	ls.mu.Lock()
	if ls.closing || ls.info.Status != model.StatusRecording {
		ls.mu.Unlock()
		return model.Report{}, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	ls.closing = true
	ls.mu.Unlock()

	if err := waitPending(ctx, &ls.pending); err != nil {
		s.reopen(ls)
		return model.Report{}, fmt.Errorf("finish session %s: %w", id, err)
	}

	ls.mu.Lock()
	end := s.now().UTC()
	ls.engine.SetTiming(ls.info.StartedAt, end)
	info := ls.info
	info.Status = model.StatusCompleted
	info.EndedAt = &end
	report := buildReport(info, ls.engine, end)

	if err := s.persist(ctx, report); err != nil {
		ls.closing = false
		ls.mu.Unlock()
		return model.Report{}, err
	}
	ls.info = info
	ls.closing = false
	ls.mu.Unlock()
	s.deduper.Forget(ctx, id)

	metrics.RecordSessionFinished()
	s.mu.RLock()
	metrics.UpdateSessionsActive(s.activeLocked())
	s.mu.RUnlock()
	s.logger.Info(ctx, "session finished",
		logger.String("session", id),
		logger.Int("samples", report.Summary.TotalPoints),
		logger.Int("floorsVisited", report.Summary.FloorsVisited),
		logger.Float64("duration", report.Summary.Duration),
	)
	return report, nil
}

func (s *Service) reopen(ls *liveSession) {
	ls.mu.Lock()
	ls.closing = false
	ls.mu.Unlock()
}

func waitPending(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildReport(info model.Session, e *trajectory.Engine, end time.Time) model.Report {
	horizontal := make(map[int][]trajectory.PositionedSample)
	for f := trajectory.MinFloor; f <= trajectory.MaxFloor; f++ {
		if points := e.FloorHeatmap(f); len(points) > 0 {
			horizontal[f] = points
		}
	}
	return model.Report{
		SessionID:   info.ID,
		Session:     info,
		Vertical:    e.VerticalHeatmap(),
		Horizontal:  horizontal,
		Summary:     e.Summary(),
		Analysis:    e.WorkflowAnalysis(),
		Path:        e.Path(),
		Visits:      e.Visits(end.UnixMilli()),
		GeneratedAt: end,
	}
}

func (s *Service) persist(ctx context.Context, r model.Report) error { //nolint:gocritic // hugeParam: report is built once per session
	if err := s.store.SaveVisits(ctx, r.SessionID, r.Visits); err != nil {
		return fmt.Errorf("save visits: %w", err)
	}
	if err := s.store.SaveHeatmaps(ctx, r.SessionID, r.Horizontal); err != nil {
		return fmt.Errorf("save heatmaps: %w", err)
	}
	if err := s.store.SaveReport(ctx, r); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if err := s.store.FinishSession(ctx, r.SessionID, *r.Session.EndedAt); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// Report returns the stored report of a finished session.
func (s *Service) Report(ctx context.Context, id string) (model.Report, error) {
	if _, err := s.lookup(ctx, id); err != nil {
		return model.Report{}, err
	}
	r, err := s.store.GetReport(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return r, err
}

// withEngine runs fn with the session's engine locked.
func (s *Service) withEngine(ctx context.Context, id string, fn func(e *trajectory.Engine)) error {
	ls, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	fn(ls.engine)
	return nil
}

// VerticalHeatmap returns per-floor dwell statistics of a session.
func (s *Service) VerticalHeatmap(ctx context.Context, id string) (out trajectory.VerticalHeatmap, err error) {
	err = s.withEngine(ctx, id, func(e *trajectory.Engine) { out = e.VerticalHeatmap() })
	return out, err
}

// FloorHeatmap returns the positioned samples of one floor of a session.
func (s *Service) FloorHeatmap(ctx context.Context, id string, floor int) (out []trajectory.PositionedSample, err error) {
	err = s.withEngine(ctx, id, func(e *trajectory.Engine) { out = e.FloorHeatmap(floor) })
	return out, err
}

// WorkflowAnalysis returns floors ranked by dwell time.
func (s *Service) WorkflowAnalysis(ctx context.Context, id string) (out []trajectory.FloorStats, err error) {
	err = s.withEngine(ctx, id, func(e *trajectory.Engine) { out = e.WorkflowAnalysis() })
	return out, err
}

// Path returns the chronological floor path of a session.
func (s *Service) Path(ctx context.Context, id string) (out []trajectory.PathStep, err error) {
	err = s.withEngine(ctx, id, func(e *trajectory.Engine) { out = e.Path() })
	return out, err
}

// Summary returns the digest of a session.
func (s *Service) Summary(ctx context.Context, id string) (out trajectory.Summary, err error) {
	err = s.withEngine(ctx, id, func(e *trajectory.Engine) { out = e.Summary() })
	return out, err
}

func (s *Service) activeLocked() int {
	n := 0
	for _, ls := range s.sessions {
		ls.mu.Lock()
		if ls.info.Status == model.StatusRecording {
			n++
		}
		ls.mu.Unlock()
	}
	return n
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"maxBatchSize": s.maxBatchSize,
	}
	if s.started {
		ctx := context.Background()
		stats["queueLength"] = s.workerPool.Len(ctx)
		stats["processedBatches"] = s.workerPool.Processed()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["liveSessions"] = len(s.sessions)
		active := s.activeLocked()
		stats["activeSessions"] = active
		metrics.UpdateSessionsActive(active)
		metrics.UpdateQueueSize(s.workerPool.Len(ctx))
	}
	return stats
}
