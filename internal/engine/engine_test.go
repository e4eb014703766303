package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duetto/internal/models"
	"duetto/internal/pipeline"
)

// fakeCollector feeds scripted alerts to the engine. Closing after the
// script simulates a collector whose source died.
type fakeCollector struct {
	name      string
	script    []models.Alert
	closeWhen bool // close the channel after the script instead of idling

	mu     sync.Mutex
	starts int
	out    chan models.Alert
	cancel context.CancelFunc
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	ctx, f.cancel = context.WithCancel(ctx)
	f.out = make(chan models.Alert, len(f.script)+1)
	out := f.out
	go func() {
		defer close(out)
		for _, a := range f.script {
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
		if !f.closeWhen {
			<-ctx.Done()
		}
	}()
	return nil
}

func (f *fakeCollector) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

func (f *fakeCollector) Alerts() <-chan models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out
}

func (f *fakeCollector) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// fakeHub records broadcasts.
type fakeHub struct {
	mu     sync.Mutex
	alerts []models.Alert
	closed bool
}

func (h *fakeHub) Broadcast(a models.Alert) {
	h.mu.Lock()
	h.alerts = append(h.alerts, a)
	h.mu.Unlock()
}

func (h *fakeHub) ConnectionCount() int { return 0 }

func (h *fakeHub) RecentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.alerts)
}

func (h *fakeHub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *fakeHub) broadcasts() []models.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.Alert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

// fakeFanout counts notifications.
type fakeFanout struct {
	notified atomic.Int64
	closed   atomic.Bool
}

func (f *fakeFanout) Notify(ctx context.Context, a models.Alert) { f.notified.Add(1) }
func (f *fakeFanout) Close()                                     { f.closed.Store(true) }

func testAlert(id string, p models.Priority) models.Alert {
	return models.Alert{
		ID:       id,
		Kind:     models.KindFiling8K,
		Priority: p,
		Company:  "Acme Corp",
		Title:    "8-K: Acme Corp",
		Source:   "SEC EDGAR",
	}
}

func newTestChain(t *testing.T) *pipeline.Chain {
	t.Helper()
	dedup, err := pipeline.NewDedup(100)
	require.NoError(t, err)
	return pipeline.NewChain(dedup, pipeline.NewClassifier(false))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEngineFlowsAlertsToSinks(t *testing.T) {
	col := &fakeCollector{name: "fake", script: []models.Alert{
		testAlert("a1", models.PriorityLow),
		testAlert("a2", models.PriorityHigh),
		testAlert("a1", models.PriorityLow), // dropped by dedup
	}}
	h := &fakeHub{}
	f := &fakeFanout{}

	eng := New(nil, newTestChain(t), h, f, col)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	waitFor(t, func() bool { return len(h.broadcasts()) == 2 }, "alerts did not reach the hub")
	assert.Equal(t, int64(2), f.notified.Load())

	got := h.broadcasts()
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)

	st := eng.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.RecentCount)
	assert.False(t, st.LastSuccess["fake"].IsZero())
}

func TestEngineRestartsClosedCollector(t *testing.T) {
	col := &fakeCollector{name: "flaky", closeWhen: true, script: []models.Alert{
		testAlert("r1", models.PriorityLow),
	}}
	h := &fakeHub{}
	f := &fakeFanout{}

	eng := New(nil, newTestChain(t), h, f, col)
	eng.restartInitial = time.Millisecond
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	waitFor(t, func() bool { return col.startCount() >= 3 }, "collector was not restarted")
	// The duplicate script alerts after restart are deduped; only the
	// first run's alert survives.
	assert.Equal(t, 1, len(h.broadcasts()))
}

func TestEngineStop(t *testing.T) {
	col := &fakeCollector{name: "fake", script: []models.Alert{
		testAlert("s1", models.PriorityMedium),
	}}
	h := &fakeHub{}
	f := &fakeFanout{}

	eng := New(nil, newTestChain(t), h, f, col)
	require.NoError(t, eng.Start(context.Background()))
	require.NoError(t, eng.Start(context.Background()), "Start is idempotent while running")

	waitFor(t, func() bool { return len(h.broadcasts()) == 1 }, "alert did not flow")

	eng.Stop()
	eng.Stop() // idempotent

	assert.False(t, eng.Status().Running)
	assert.True(t, f.closed.Load())
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	assert.True(t, closed)
}

func TestEngineContinuesWhenOneCollectorFails(t *testing.T) {
	good := &fakeCollector{name: "good", script: []models.Alert{
		testAlert("g1", models.PriorityLow),
	}}
	bad := &fakeCollector{name: "bad", closeWhen: true}
	h := &fakeHub{}
	f := &fakeFanout{}

	eng := New(nil, newTestChain(t), h, f, good, bad)
	eng.restartInitial = time.Millisecond
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	waitFor(t, func() bool { return len(h.broadcasts()) == 1 }, "healthy collector was starved")
	assert.Equal(t, "g1", h.broadcasts()[0].ID)
}
