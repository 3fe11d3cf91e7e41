package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"driveguardian/go-backend/internal/detection"
	"driveguardian/go-backend/internal/models"
	"driveguardian/go-backend/internal/scoring"
)

var (
	ErrAlreadyActive = errors.New("monitoring session already active")
	ErrNotActive     = errors.New("no active monitoring session")
	ErrPaused        = errors.New("monitoring session is paused")
	ErrFrameDropped  = errors.New("frame dropped: previous frame still in flight")
	ErrInvalidFrame  = fmt.Errorf("frame with a detected face needs at least %d landmarks", models.MinLandmarks)
)

// SessionSaver persists completed sessions.
type SessionSaver interface {
	SaveSession(ctx context.Context, rec models.SessionRecord) error
}

type MonitorDeps struct {
	Params  detection.Params
	Saver   SessionSaver
	Alerter Alerter
	Metrics *Metrics
	Logger  *zap.Logger

	// Now and NewID default to time.Now and uuid strings.
	Now   func() time.Time
	NewID func() string
}

// Snapshot is a point-in-time view of a Monitor.
type Snapshot struct {
	ClientID      string             `json:"client_id"`
	Driver        string             `json:"driver,omitempty"`
	Active        bool               `json:"active"`
	Paused        bool               `json:"paused"`
	Failed        bool               `json:"failed"`
	FailureReason string             `json:"failure_reason,omitempty"`
	StartedAt     time.Time          `json:"started_at,omitempty"`
	Elapsed       time.Duration      `json:"elapsed"`
	Status        models.Status      `json:"status"`
	Last          models.FrameResult `json:"last"`
}

// Monitor runs one driver's monitoring session. Frames go through a
// non-blocking busy guard so a slow frame causes the next one to be dropped
// rather than queued.
type Monitor struct {
	clientID string
	deps     MonitorDeps

	busy atomic.Bool

	mu        sync.Mutex
	state     detection.State
	active    bool
	paused    bool
	failed    string
	driver    string
	startedAt time.Time
	seq       int32
	last      models.FrameResult
}

func NewMonitor(clientID string, deps MonitorDeps) *Monitor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Alerter == nil {
		deps.Alerter = Multi(nil)
	}
	return &Monitor{
		clientID: clientID,
		deps:     deps,
		last:     idleResult(),
	}
}

func idleResult() models.FrameResult {
	return models.FrameResult{
		Phase:     detection.Calibrating.String(),
		Indicator: string(detection.IndicatorCalibrating),
		Status:    models.StatusWarning,
	}
}

func (m *Monitor) ClientID() string { return m.clientID }

func (m *Monitor) source() AlertSource {
	return AlertSource{ClientID: m.clientID, Driver: m.driver}
}

func (m *Monitor) alert(ev detection.Event) {
	var err error
	switch {
	case ev.AlertStarted:
		err = m.deps.Alerter.Start(m.source())
	case ev.AlertStopped:
		err = m.deps.Alerter.Stop(m.source())
	default:
		return
	}
	if err != nil {
		m.deps.Metrics.IncrementErrors()
		m.deps.Logger.Warn("alert device failed",
			zap.String("client_id", m.clientID),
			zap.Bool("active", ev.AlertStarted),
			zap.Error(err))
	}
}

// Start begins a session for driver. Calibration starts immediately.
func (m *Monitor) Start(driver string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return ErrAlreadyActive
	}
	m.state = detection.State{}
	m.active = true
	m.paused = false
	m.failed = ""
	m.driver = driver
	m.startedAt = m.deps.Now()
	m.seq = 0
	m.last = idleResult()
	m.deps.Metrics.SessionStarted()

	m.deps.Logger.Info("monitoring started",
		zap.String("client_id", m.clientID),
		zap.String("driver", driver))
	return nil
}

// ProcessFrame runs one landmark frame through the engine.
func (m *Monitor) ProcessFrame(f models.LandmarkFrame) (models.FrameResult, detection.Event, error) {
	if !m.busy.CompareAndSwap(false, true) {
		m.deps.Metrics.IncrementDropped()
		return models.FrameResult{}, detection.Event{}, ErrFrameDropped
	}
	defer m.busy.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return models.FrameResult{}, detection.Event{}, ErrNotActive
	}
	if m.paused {
		return models.FrameResult{}, detection.Event{}, ErrPaused
	}
	if !f.Valid() {
		m.deps.Metrics.IncrementErrors()
		return models.FrameResult{}, detection.Event{}, ErrInvalidFrame
	}

	start := m.deps.Now()
	next, ev := detection.Step(m.state, f, m.deps.Params)
	m.state = next
	m.seq++

	m.alert(ev)
	if ev.AlertRaised {
		m.deps.Metrics.IncrementAlerts()
		m.deps.Logger.Warn("drowsiness alert",
			zap.String("client_id", m.clientID),
			zap.Int("alert_count", next.AlertCount),
			zap.Float64("ear", ev.EAR))
	}
	if ev.CalibrationDone {
		m.deps.Logger.Info("calibration complete",
			zap.String("client_id", m.clientID),
			zap.Float64("threshold", next.Threshold))
	}
	if !ev.Detected {
		m.deps.Metrics.IncrementNoFace()
	}

	res := next.Result(ev)
	res.SequenceNumber = m.seq
	m.last = res
	m.deps.Metrics.IncrementFrames()
	m.deps.Metrics.RecordLatency(m.deps.Now().Sub(start))
	return res, ev, nil
}

// Pause silences the tone and ignores frames until Resume. The closure
// streak survives so an ongoing closure sounds again after resuming.
func (m *Monitor) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return ErrNotActive
	}
	if m.paused {
		return nil
	}
	m.paused = true
	if m.state.AlertActive {
		m.state.AlertActive = false
		m.alert(detection.Event{AlertStopped: true})
	}
	m.deps.Logger.Info("monitoring paused", zap.String("client_id", m.clientID))
	return nil
}

func (m *Monitor) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return ErrNotActive
	}
	m.paused = false
	m.deps.Logger.Info("monitoring resumed", zap.String("client_id", m.clientID))
	return nil
}

// Recalibrate discards the baseline, streak and alert tally.
func (m *Monitor) Recalibrate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return ErrNotActive
	}
	next, ev := detection.Reset(m.state)
	m.state = next
	m.alert(ev)
	m.last = idleResult()
	m.deps.Logger.Info("recalibrating", zap.String("client_id", m.clientID))
	return nil
}

// Stop ends the session. When a session was running the scored record is
// saved and returned; otherwise nothing is written, the record is nil and
// the request counts as discarded.
func (m *Monitor) Stop(ctx context.Context) (*models.SessionRecord, error) {
	return m.end(ctx, true)
}

// Close ends the session when the transport goes away. A running session is
// saved like Stop; an idle or failed monitor is left alone.
func (m *Monitor) Close(ctx context.Context) (*models.SessionRecord, error) {
	return m.end(ctx, false)
}

func (m *Monitor) end(ctx context.Context, requested bool) (*models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		if requested {
			m.deps.Metrics.IncrementDiscarded()
		}
		return nil, nil
	}

	now := m.deps.Now()
	elapsed := now.Sub(m.startedAt)
	alerts := m.state.AlertCount
	m.teardown()

	sum := scoring.Summarize(alerts, elapsed)
	rec := models.SessionRecord{
		ID:       m.deps.NewID(),
		Date:     now,
		Duration: sum.Minutes,
		Score:    sum.Score,
		Alerts:   sum.Alerts,
		Status:   sum.Status,
		Notes:    sum.Notes,
	}
	if err := m.deps.Saver.SaveSession(ctx, rec); err != nil {
		m.deps.Metrics.SessionEnded(false, false)
		m.deps.Metrics.IncrementErrors()
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.deps.Metrics.SessionEnded(true, false)
	m.deps.Logger.Info("monitoring stopped",
		zap.String("client_id", m.clientID),
		zap.String("session_id", rec.ID),
		zap.Int("minutes", rec.Duration),
		zap.Int("alerts", rec.Alerts),
		zap.Float64("score", rec.Score))
	return &rec, nil
}

// Fail ends the session after an acquisition failure. Nothing is saved and
// the monitor stays in the danger state until the next Start.
func (m *Monitor) Fail(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasActive := m.active
	m.teardown()
	m.failed = reason
	m.last.Status = models.StatusDanger
	if wasActive {
		m.deps.Metrics.SessionEnded(false, true)
	}
	m.deps.Logger.Error("monitoring failed",
		zap.String("client_id", m.clientID),
		zap.String("reason", reason))
}

// teardown silences the tone and clears the session; caller holds mu.
func (m *Monitor) teardown() {
	if m.state.AlertActive {
		m.alert(detection.Event{AlertStopped: true})
	}
	m.state = detection.State{}
	m.active = false
	m.paused = false
	m.startedAt = time.Time{}
	m.seq = 0
	m.last = idleResult()
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		ClientID:      m.clientID,
		Driver:        m.driver,
		Active:        m.active,
		Paused:        m.paused,
		Failed:        m.failed != "",
		FailureReason: m.failed,
		StartedAt:     m.startedAt,
		Status:        m.last.Status,
		Last:          m.last,
	}
	if m.active {
		s.Elapsed = m.deps.Now().Sub(m.startedAt)
	}
	if m.paused {
		s.Status = models.StatusWarning
	}
	return s
}
