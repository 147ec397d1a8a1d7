package coach

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/telemetry/metrics"
	"github.com/2beens/formcoach/internal/testinternals"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestRegistry_CreateGetRemove(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	registry := NewRegistry(time.Minute, metricsManager)

	live, err := registry.Create(formcheck.BicepCurl(), 12)
	require.NoError(t, err)
	require.NotEmpty(t, live.ID)
	assert.Equal(t, "bicep_curl", live.ExerciseID)
	assert.Equal(t, 12, live.Kilos)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.GaugeActiveSessions))

	got, err := registry.Get(live.ID)
	require.NoError(t, err)
	assert.Same(t, live, got)

	registry.Remove(live.ID)
	_, err = registry.Get(live.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, registry.Len())
	assert.Equal(t, float64(0), testutil.ToFloat64(metricsManager.GaugeActiveSessions))
}

func TestRegistry_CreateWithID(t *testing.T) {
	registry := NewRegistry(time.Minute, nil)

	_, err := registry.CreateWithID("live", formcheck.BicepCurl(), 0)
	require.NoError(t, err)
	_, err = registry.CreateWithID("live", formcheck.BicepCurl(), 0)
	assert.ErrorIs(t, err, ErrSessionIDInUse)

	def := formcheck.BicepCurl()
	def.ContractedAngle = 170
	_, err = registry.CreateWithID("broken", def, 0)
	assert.ErrorIs(t, err, formcheck.ErrInvalidDefinition)
	assert.Equal(t, 1, registry.Len())
}

func TestLiveSession_ProcessRecordsMetrics(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	registry := NewRegistry(time.Minute, metricsManager)
	live, err := registry.Create(formcheck.BicepCurl(), 10)
	require.NoError(t, err)

	frames := testinternals.CurlFrames(testinternals.ElbowPoses(testinternals.CleanReps(2))...)
	for _, f := range frames {
		_, err := live.Process(f, time.Now())
		require.NoError(t, err)
	}
	bent := testinternals.CurlFrame(len(frames), testinternals.CurlPose{Elbow: 110, Wrist: 100})
	res, err := live.Process(bent, time.Now())
	require.NoError(t, err)
	require.NotNil(t, res.Notification)

	assert.Equal(t, float64(len(frames)+1), testutil.ToFloat64(metricsManager.CounterFrames.WithLabelValues("bicep_curl", "evaluated")))
	assert.Equal(t, float64(4), testutil.ToFloat64(metricsManager.CounterReps.WithLabelValues("bicep_curl")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterFormErrors.WithLabelValues("bicep_curl", string(formcheck.WristMisalignment))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterNotificationsEmitted))

	_, err = live.Process(testinternals.CurlFrame(len(frames)+1, testinternals.CurlPose{Elbow: 110}), time.Now())
	require.NoError(t, err)
	empty := frames[0]
	empty.Joints = nil
	_, err = live.Process(empty, time.Now())
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterFrames.WithLabelValues("bicep_curl", "empty")))
}

func TestLiveSession_Finish(t *testing.T) {
	registry := NewRegistry(time.Minute, nil)
	live, err := registry.Create(formcheck.BicepCurl(), 10)
	require.NoError(t, err)

	for _, f := range testinternals.CurlFrames(testinternals.ElbowPoses(testinternals.CleanReps(3))...) {
		_, err := live.Process(f, time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, live.Summary().FullReps)

	summary, err := live.Finish()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.FullReps)
	assert.Equal(t, 3.0, summary.Count)

	_, err = live.Finish()
	assert.ErrorIs(t, err, ErrSessionFinished)
	_, err = live.Process(testinternals.CurlFrame(1000, testinternals.CurlPose{Elbow: 160}), time.Now())
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestRegistry_ExpireIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	registry := NewRegistry(time.Minute, nil)
	registry.now = clock.Now

	idle, err := registry.CreateWithID("idle", formcheck.BicepCurl(), 0)
	require.NoError(t, err)
	active, err := registry.CreateWithID("active", formcheck.BicepCurl(), 0)
	require.NoError(t, err)

	clock.now = clock.now.Add(50 * time.Second)
	_, err = active.Process(testinternals.CurlFrame(0, testinternals.CurlPose{Elbow: 160}), clock.now)
	require.NoError(t, err)

	clock.now = clock.now.Add(20 * time.Second)
	assert.Equal(t, 1, registry.ExpireIdle())

	_, err = registry.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = registry.Get(active.ID)
	assert.NoError(t, err)
}

func TestRegistry_PinnedSessionNeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	metricsManager := metrics.NewTestManager()
	registry := NewRegistry(300*time.Second, metricsManager)
	registry.now = clock.Now

	live, err := registry.CreatePinned("live", formcheck.BicepCurl(), 0)
	require.NoError(t, err)
	_, err = registry.CreateWithID("phone", formcheck.BicepCurl(), 0)
	require.NoError(t, err)

	// the detector never connected
	clock.now = clock.now.Add(301 * time.Second)
	assert.Equal(t, 1, registry.ExpireIdle())

	got, err := registry.Get("live")
	require.NoError(t, err)
	assert.Same(t, live, got)
	_, err = registry.Get("phone")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.GaugeActiveSessions))

	_, err = registry.CreatePinned("live", formcheck.BicepCurl(), 0)
	assert.ErrorIs(t, err, ErrSessionIDInUse)

	// pinned sessions can still be finished and removed explicitly
	registry.Remove("live")
	assert.Zero(t, registry.Len())
}

func TestRegistry_ExpireIdleDisabled(t *testing.T) {
	registry := NewRegistry(0, nil)
	registry.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := registry.Create(formcheck.BicepCurl(), 0)
	require.NoError(t, err)

	registry.now = time.Now
	assert.Zero(t, registry.ExpireIdle())
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_RunExpiry(t *testing.T) {
	registry := NewRegistry(time.Millisecond, nil)
	_, err := registry.Create(formcheck.BicepCurl(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.RunExpiry(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
