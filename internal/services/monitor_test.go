package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"driveguardian/go-backend/internal/detection"
	"driveguardian/go-backend/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memorySaver struct {
	saved []models.SessionRecord
	err   error
}

func (s *memorySaver) SaveSession(_ context.Context, rec models.SessionRecord) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

type recordingAlerter struct {
	edges []bool
}

func (a *recordingAlerter) Start(AlertSource) error { a.edges = append(a.edges, true); return nil }
func (a *recordingAlerter) Stop(AlertSource) error  { a.edges = append(a.edges, false); return nil }

type monitorFixture struct {
	m       *Monitor
	clock   *fakeClock
	saver   *memorySaver
	alerter *recordingAlerter
	metrics *Metrics
}

func newMonitorFixture() *monitorFixture {
	f := &monitorFixture{
		clock:   &fakeClock{t: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)},
		saver:   &memorySaver{},
		alerter: &recordingAlerter{},
		metrics: NewMetrics(),
	}
	f.m = NewMonitor("client-1", MonitorDeps{
		Params:  detection.DefaultParams(),
		Saver:   f.saver,
		Alerter: f.alerter,
		Metrics: f.metrics,
		Logger:  zap.NewNop(),
		Now:     f.clock.Now,
		NewID:   func() string { return "session-1" },
	})
	return f
}

func (f *monitorFixture) feed(t *testing.T, ear float64, n int) models.FrameResult {
	t.Helper()
	var res models.FrameResult
	for i := 0; i < n; i++ {
		var err error
		res, _, err = f.m.ProcessFrame(detection.SyntheticFrame(ear))
		require.NoError(t, err)
	}
	return res
}

func TestMonitorFullSession(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start("jane@example.com"))
	assert.ErrorIs(t, f.m.Start("jane@example.com"), ErrAlreadyActive)

	res := f.feed(t, 0.3, 100)
	assert.Equal(t, "MONITORING", res.Phase)
	assert.InDelta(t, 0.225, res.Threshold, 1e-9)
	assert.Equal(t, int32(100), res.SequenceNumber)

	res = f.feed(t, 0.1, 30)
	assert.Equal(t, string(detection.IndicatorDrowsy), res.Indicator)
	assert.Equal(t, 1, res.AlertCount)
	assert.Equal(t, []bool{true}, f.alerter.edges)

	res = f.feed(t, 0.3, 1)
	assert.Equal(t, models.StatusSafe, res.Status)
	assert.Equal(t, []bool{true, false}, f.alerter.edges)

	f.clock.Advance(30*time.Minute + 59*time.Second)
	rec, err := f.m.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "session-1", rec.ID)
	assert.Equal(t, 30, rec.Duration)
	assert.Equal(t, 10.0, rec.Score)
	assert.Equal(t, 1, rec.Alerts)
	assert.Equal(t, models.StatusSafe, rec.Status)
	assert.Equal(t, "Good focus with minor distractions.", rec.Notes)
	assert.Equal(t, []models.SessionRecord{*rec}, f.saver.saved)

	assert.Equal(t, int64(131), f.metrics.GetTotalFrames())
	assert.Equal(t, int64(1), f.metrics.GetAlerts())
	assert.Equal(t, 0, f.metrics.GetActiveSessions())
	assert.False(t, f.m.Snapshot().Active)
}

func TestMonitorIgnoresFramesWhenIdle(t *testing.T) {
	f := newMonitorFixture()
	_, _, err := f.m.ProcessFrame(detection.SyntheticFrame(0.3))
	assert.ErrorIs(t, err, ErrNotActive)
	assert.ErrorIs(t, f.m.Pause(), ErrNotActive)
	assert.ErrorIs(t, f.m.Resume(), ErrNotActive)
	assert.ErrorIs(t, f.m.Recalibrate(), ErrNotActive)
}

func TestMonitorStopWithoutSessionWritesNothing(t *testing.T) {
	f := newMonitorFixture()
	rec, err := f.m.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, f.saver.saved)
}

func TestMonitorDropsOverlappingFrames(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))

	f.m.busy.Store(true)
	_, _, err := f.m.ProcessFrame(detection.SyntheticFrame(0.3))
	assert.ErrorIs(t, err, ErrFrameDropped)
	assert.Equal(t, int64(1), f.metrics.GetDroppedFrames())
	f.m.busy.Store(false)

	res, _, err := f.m.ProcessFrame(detection.SyntheticFrame(0.3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CalibrationProgress)
}

func TestMonitorConcurrentFramesNeverQueue(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.m.ProcessFrame(detection.SyntheticFrame(0.3))
			if err == nil {
				mu.Lock()
				processed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrFrameDropped)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, processed, 1)
	assert.Equal(t, int64(50), int64(processed)+f.metrics.GetDroppedFrames())
}

func TestMonitorRejectsShortMesh(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))
	_, _, err := f.m.ProcessFrame(models.LandmarkFrame{Detected: true, Landmarks: make([]models.Point, 10)})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestMonitorPauseResume(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))
	f.feed(t, 0.3, 100)
	f.feed(t, 0.1, 15)
	require.Equal(t, []bool{true}, f.alerter.edges)

	require.NoError(t, f.m.Pause())
	assert.Equal(t, []bool{true, false}, f.alerter.edges, "pausing silences the tone")
	_, _, err := f.m.ProcessFrame(detection.SyntheticFrame(0.1))
	assert.ErrorIs(t, err, ErrPaused)
	assert.True(t, f.m.Snapshot().Paused)

	require.NoError(t, f.m.Resume())
	res := f.feed(t, 0.1, 6)
	assert.Equal(t, 21, res.ClosedStreak, "streak survives the pause")
	assert.Equal(t, 1, res.AlertCount)
	assert.Equal(t, []bool{true, false, true}, f.alerter.edges)
}

func TestMonitorRecalibrate(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))
	f.feed(t, 0.3, 100)
	f.feed(t, 0.1, 25)

	require.NoError(t, f.m.Recalibrate())
	assert.Equal(t, []bool{true, false}, f.alerter.edges)

	res := f.feed(t, 0.2, 1)
	assert.Equal(t, "CALIBRATING", res.Phase)
	assert.Equal(t, 0, res.AlertCount)
	assert.Equal(t, 1, res.CalibrationProgress)
}

func TestMonitorFail(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))
	f.feed(t, 0.3, 10)

	f.m.Fail("camera unavailable")
	snap := f.m.Snapshot()
	assert.False(t, snap.Active)
	assert.True(t, snap.Failed)
	assert.Equal(t, models.StatusDanger, snap.Status)
	assert.Equal(t, "camera unavailable", snap.FailureReason)

	rec, err := f.m.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, f.saver.saved)

	require.NoError(t, f.m.Start(""))
	assert.False(t, f.m.Snapshot().Failed)
}

func TestMonitorSaveError(t *testing.T) {
	f := newMonitorFixture()
	f.saver.err = errors.New("disk full")
	require.NoError(t, f.m.Start(""))

	_, err := f.m.Stop(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, f.m.Snapshot().Active)
}

func TestMonitorNoFaceKeepsCounters(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start(""))
	f.feed(t, 0.3, 100)
	f.feed(t, 0.1, 5)

	res, ev, err := f.m.ProcessFrame(detection.NoFace())
	require.NoError(t, err)
	assert.False(t, ev.Detected)
	assert.Equal(t, string(detection.IndicatorNoFace), res.Indicator)
	assert.Equal(t, 5, res.ClosedStreak)
}

func sessionCount(m *Metrics, key string) int64 {
	return m.Snapshot()["sessions"].(map[string]interface{})[key].(int64)
}

func TestMonitorDiscardCountsOnlyRequestedStops(t *testing.T) {
	f := newMonitorFixture()

	rec, err := f.m.Close(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int64(0), sessionCount(f.metrics, "discarded"))

	rec, err = f.m.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int64(1), sessionCount(f.metrics, "discarded"))

	require.NoError(t, f.m.Start(""))
	f.m.Fail("camera unavailable")
	_, err = f.m.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sessionCount(f.metrics, "failed"))
	assert.Equal(t, int64(1), sessionCount(f.metrics, "discarded"))
	assert.Equal(t, models.StatusDanger, f.m.Snapshot().Status)
}

func TestMonitorCloseSavesRunningSession(t *testing.T) {
	f := newMonitorFixture()
	require.NoError(t, f.m.Start("jane@example.com"))
	f.clock.Advance(5 * time.Minute)

	rec, err := f.m.Close(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Duration)
	assert.Len(t, f.saver.saved, 1)
	assert.Equal(t, int64(1), sessionCount(f.metrics, "saved"))
	assert.Equal(t, int64(0), sessionCount(f.metrics, "discarded"))
	assert.Equal(t, 0, f.metrics.GetActiveSessions())
}

func TestMonitorSaveErrorIsNotDiscard(t *testing.T) {
	f := newMonitorFixture()
	f.saver.err = errors.New("disk full")
	require.NoError(t, f.m.Start(""))

	_, err := f.m.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(0), sessionCount(f.metrics, "discarded"))
	assert.Equal(t, int64(1), f.metrics.GetTotalErrors())
}
