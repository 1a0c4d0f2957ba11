package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
	"github.com/okian/liftmap/pkg/logger"
	"github.com/okian/liftmap/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	logger      logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// pending migrations.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("store")
	}

	db, err := sql.Open("sqlite", dsn(path, s.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	// SQLite allows one writer; a single connection also keeps pragmas consistent.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	s.db = db

	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "store ready", logger.String("path", path))
	return s, nil
}

func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(busy.Milliseconds(), 10)+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return path + "?" + q.Encode()
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: source: %w", ErrMigrate, err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("%w: driver: %w", ErrMigrate, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return nil
}

// migrateLogger forwards golang-migrate output to the service logger.
type migrateLogger struct {
	logger logger.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(context.Background(), "migrate", logger.String("msg", fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool { return false }

// observe records latency and failures of one store operation.
func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if *err != nil {
		metrics.RecordStoreError(op)
		metrics.RecordErrorByComponent("store", op)
	}
}

// CreateSession inserts a new recording session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess model.Session) (err error) {
	defer observe("create_session", time.Now(), &err)

	var ended sql.NullInt64
	if sess.EndedAt != nil {
		ended = sql.NullInt64{Int64: sess.EndedAt.UnixMilli(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, elevator_id, technician, status, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO NOTHING`,
		sess.ID, sess.ElevatorID, sess.Technician, string(sess.Status), sess.StartedAt.UnixMilli(), ended)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrAlreadyExists)
	}
	return nil
}

// FinishSession marks a session completed.
func (s *SQLiteStore) FinishSession(ctx context.Context, sessionID string, endedAt time.Time) (err error) {
	defer observe("finish_session", time.Now(), &err)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ? WHERE session_id = ?`,
		string(model.StatusCompleted), endedAt.UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session %s: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

const sessionColumns = `session_id, elevator_id, technician, status, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (model.Session, error) {
	var (
		sess    model.Session
		status  string
		started int64
		ended   sql.NullInt64
	)
	if err := r.Scan(&sess.ID, &sess.ElevatorID, &sess.Technician, &status, &started, &ended); err != nil {
		return model.Session{}, err
	}
	sess.Status = model.SessionStatus(status)
	sess.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		t := time.UnixMilli(ended.Int64).UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetSession returns one session.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (sess model.Session, err error) {
	defer observe("get_session", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	sess, err = scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// ListSessions returns every session, most recently started first.
func (s *SQLiteStore) ListSessions(ctx context.Context) (out []model.Session, err error) {
	defer observe("list_sessions", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out = []model.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// AppendSamples stores samples in one transaction.
func (s *SQLiteStore) AppendSamples(ctx context.Context, sessionID, batchID string, samples []trajectory.Sample) (err error) {
	defer observe("append_samples", time.Now(), &err)
	if len(samples) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO samples (session_id, batch_id, x, y, z, ts_ms, magnitude, floor) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare sample insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range samples {
			if _, err := stmt.ExecContext(ctx, sessionID, batchID, p.X, p.Y, p.Z, p.Timestamp, p.Magnitude, p.Floor); err != nil {
				return fmt.Errorf("insert sample of %s: %w", sessionID, err)
			}
		}
		return nil
	})
}

// BatchIDs returns the distinct non-empty batch ids of a session's samples.
func (s *SQLiteStore) BatchIDs(ctx context.Context, sessionID string) (out []string, err error) {
	defer observe("batch_ids", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id FROM samples WHERE session_id = ? AND batch_id <> ''
		 GROUP BY batch_id ORDER BY MIN(sample_id)`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query batch ids of %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	out = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query batch ids of %s: %w", sessionID, err)
	}
	return out, nil
}

// DeleteSamples drops every stored sample of the session.
func (s *SQLiteStore) DeleteSamples(ctx context.Context, sessionID string) (err error) {
	defer observe("delete_samples", time.Now(), &err)

	if _, err = s.db.ExecContext(ctx, `DELETE FROM samples WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete samples of %s: %w", sessionID, err)
	}
	return nil
}

// Samples returns the stored samples of a session in ingestion order.
func (s *SQLiteStore) Samples(ctx context.Context, sessionID string) (out []trajectory.Sample, err error) {
	defer observe("samples", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y, z, ts_ms, magnitude, floor FROM samples WHERE session_id = ? ORDER BY sample_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query samples of %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	out = []trajectory.Sample{}
	for rows.Next() {
		var p trajectory.Sample
		if err := rows.Scan(&p.X, &p.Y, &p.Z, &p.Timestamp, &p.Magnitude, &p.Floor); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query samples of %s: %w", sessionID, err)
	}
	return out, nil
}

// SaveVisits replaces the floor visits of a session.
func (s *SQLiteStore) SaveVisits(ctx context.Context, sessionID string, visits []trajectory.Visit) (err error) {
	defer observe("save_visits", time.Now(), &err)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM floor_visits WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear visits of %s: %w", sessionID, err)
		}
		for _, v := range visits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO floor_visits (session_id, floor, entered_at, exited_at, duration_s, samples, intensity)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sessionID, v.Floor, v.EnteredAt, v.ExitedAt, v.Duration, v.Samples, v.Intensity); err != nil {
				return fmt.Errorf("insert visit of %s: %w", sessionID, err)
			}
		}
		return nil
	})
}

// Visits returns the floor visits of a session ordered by entry time.
func (s *SQLiteStore) Visits(ctx context.Context, sessionID string) (out []trajectory.Visit, err error) {
	defer observe("visits", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT floor, entered_at, exited_at, duration_s, samples, intensity
		 FROM floor_visits WHERE session_id = ? ORDER BY visit_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query visits of %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	out = []trajectory.Visit{}
	for rows.Next() {
		var v trajectory.Visit
		if err := rows.Scan(&v.Floor, &v.EnteredAt, &v.ExitedAt, &v.Duration, &v.Samples, &v.Intensity); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query visits of %s: %w", sessionID, err)
	}
	return out, nil
}

// SaveHeatmaps replaces the per-floor horizontal heat maps of a session.
func (s *SQLiteStore) SaveHeatmaps(ctx context.Context, sessionID string, heatmaps map[int][]trajectory.PositionedSample) (err error) {
	defer observe("save_heatmaps", time.Now(), &err)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM floor_heatmaps WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear heatmaps of %s: %w", sessionID, err)
		}
		for floor, points := range heatmaps {
			raw, err := json.Marshal(points)
			if err != nil {
				return fmt.Errorf("encode heatmap of floor %d: %w", floor, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO floor_heatmaps (session_id, floor, points_json) VALUES (?, ?, ?)`,
				sessionID, floor, string(raw)); err != nil {
				return fmt.Errorf("insert heatmap of %s floor %d: %w", sessionID, floor, err)
			}
		}
		return nil
	})
}

// SaveReport stores the final report of a session.
func (s *SQLiteStore) SaveReport(ctx context.Context, r model.Report) (err error) {
	defer observe("save_report", time.Now(), &err)

	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (session_id, report_json, generated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET report_json = excluded.report_json, generated_at = excluded.generated_at`,
		r.SessionID, string(raw), r.GeneratedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.SessionID, err)
	}
	return nil
}

// GetReport returns the stored report of a session.
func (s *SQLiteStore) GetReport(ctx context.Context, sessionID string) (r model.Report, err error) {
	defer observe("get_report", time.Now(), &err)

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("report %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("get report %s: %w", sessionID, err)
	}
	if err = json.Unmarshal([]byte(raw), &r); err != nil {
		return model.Report{}, fmt.Errorf("decode report %s: %w", sessionID, err)
	}
	return r, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
