package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/cache/memory"
	"github.com/pario-ai/sxsearch/pkg/errs"
	"github.com/pario-ai/sxsearch/pkg/jobs"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// countingProducer returns successive values and counts its calls. When
// gate is non-nil every call blocks until the gate is closed.
type countingProducer struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (p *countingProducer) Produce(ctx context.Context) (any, error) {
	n := p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return []string{"v", string(rune('0' + n))}, nil
}

type harness struct {
	clock    *fakeClock
	store    *memory.Store
	registry *jobs.MemoryRegistry
	launcher *InlineLauncher
	coord    *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:    clock,
		store:    memory.New(100, clock.Now),
		registry: jobs.NewMemoryRegistry(),
		launcher: &InlineLauncher{},
	}
	h.coord = New(h.store, h.registry, h.launcher, WithClock(clock.Now))
	t.Cleanup(h.launcher.Wait)
	return h
}

func job(key string, p *countingProducer) Job {
	return Job{Key: key, Produce: p.Produce}
}

func TestGet_ColdCallsProducerOnce(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	v, err := Fetch[[]string](ctx, h.coord, 20*time.Second, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, StateCold, v.State)
	assert.Zero(t, v.Age)
	assert.Equal(t, []string{"v", "1"}, v.Data)
	assert.Equal(t, int32(1), p.calls.Load())

	e, err := h.store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, e.Age(h.clock.Now()))
}

func TestGet_FreshDoesNoWork(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	_, err := h.coord.Get(ctx, 20*time.Second, job("k", p))
	require.NoError(t, err)

	h.clock.Advance(19 * time.Second)
	v, err := Fetch[[]string](ctx, h.coord, 20*time.Second, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, StateFresh, v.State)
	assert.True(t, v.WasFresh())
	assert.False(t, v.Refreshing)
	assert.Equal(t, []string{"v", "1"}, v.Data)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGet_StaleServesOldValueAndRefreshes(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	_, err := h.coord.Get(ctx, 20*time.Second, job("k", p))
	require.NoError(t, err)

	p.gate = make(chan struct{})
	h.clock.Advance(21 * time.Second)

	v, err := Fetch[[]string](ctx, h.coord, 20*time.Second, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, StateStale, v.State)
	assert.False(t, v.WasFresh())
	assert.True(t, v.Refreshing)
	assert.Equal(t, []string{"v", "1"}, v.Data, "stale value is returned unchanged while refreshing")

	close(p.gate)
	h.launcher.Wait()

	v, err = Fetch[[]string](ctx, h.coord, 20*time.Second, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, StateFresh, v.State)
	assert.Equal(t, []string{"v", "2"}, v.Data)
	assert.Equal(t, int32(2), p.calls.Load())

	running, _ := h.coord.Running("k")
	assert.False(t, running)
}

func TestGet_AtMostOneRefreshPerJob(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	_, err := h.coord.Get(ctx, time.Second, job("k", p))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	p.gate = make(chan struct{})

	const n = 25
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := h.coord.Get(ctx, time.Second, job("k", p))
			assert.NoError(t, err)
			assert.Equal(t, StateStale, r.State)
			assert.True(t, r.Refreshing)
		}()
	}
	wg.Wait()
	close(p.gate)
	h.launcher.Wait()

	// One cold call plus exactly one background refresh.
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestGet_ColdFailurePropagates(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{err: errs.Network("search", errors.New("dial tcp: timeout"))}

	_, err := h.coord.Get(context.Background(), time.Second, job("k", p))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNetwork)

	_, err = h.store.Read(context.Background(), "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestGet_BackgroundFailureKeepsStaleValue(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	_, err := h.coord.Get(ctx, time.Second, job("k", p))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	p.err = &errs.APIError{StatusCode: 400, ID: 502, Name: "throttle_violation"}
	r, err := h.coord.Get(ctx, time.Second, job("k", p))
	require.NoError(t, err)
	assert.True(t, r.Refreshing)
	h.launcher.Wait()

	v, err := Fetch[[]string](ctx, h.coord, time.Second, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, []string{"v", "1"}, v.Data)
	assert.Equal(t, StateStale, v.State)
	h.launcher.Wait()

	// The failed job released its claim, so the next stale read retried.
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestGet_DeadOwnerDoesNotWedgeJob(t *testing.T) {
	h := newHarness(t)
	h.registry.Alive = func(pid int) bool { return pid != 31337 }
	p := &countingProducer{}
	ctx := context.Background()

	_, err := h.coord.Get(ctx, time.Second, job("k", p))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	// A crashed worker left its marker behind.
	h.registry.Mark("k", 31337)

	r, err := h.coord.Get(ctx, time.Second, job("k", p))
	require.NoError(t, err)
	assert.True(t, r.Refreshing)
	h.launcher.Wait()
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestGet_JobNameSharedAcrossKeys(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	_, _ = h.coord.Get(ctx, time.Second, Job{Name: "shared", Key: "a", Produce: p.Produce})
	_, _ = h.coord.Get(ctx, time.Second, Job{Name: "shared", Key: "b", Produce: p.Produce})
	h.clock.Advance(time.Minute)
	p.gate = make(chan struct{})

	ra, _ := h.coord.Get(ctx, time.Second, Job{Name: "shared", Key: "a", Produce: p.Produce})
	rb, _ := h.coord.Get(ctx, time.Second, Job{Name: "shared", Key: "b", Produce: p.Produce})
	assert.True(t, ra.Refreshing)
	assert.True(t, rb.Refreshing)
	close(p.gate)
	h.launcher.Wait()

	assert.Equal(t, int32(3), p.calls.Load())
}

func TestLoad_CollapsesConcurrentColdCalls(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{gate: make(chan struct{})}
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.coord.Get(ctx, time.Second, job("k", p))
			assert.NoError(t, err)
		}()
	}
	// Let the goroutines pile up behind the first producer call.
	time.Sleep(50 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.LessOrEqual(t, p.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, p.calls.Load(), int32(1))
}

func TestSchedule(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	refreshing, err := h.coord.Schedule(ctx, time.Hour, job("k", p))
	require.NoError(t, err)
	assert.True(t, refreshing, "absent entry schedules a refresh")
	h.launcher.Wait()
	assert.Equal(t, int32(1), p.calls.Load())

	refreshing, err = h.coord.Schedule(ctx, time.Hour, job("k", p))
	require.NoError(t, err)
	assert.False(t, refreshing, "fresh entry needs no refresh")

	h.clock.Advance(2 * time.Hour)
	refreshing, err = h.coord.Schedule(ctx, time.Hour, job("k", p))
	require.NoError(t, err)
	assert.True(t, refreshing)
	h.launcher.Wait()
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestPeek(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Peek(ctx, "k", time.Second)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, h.store.Write(ctx, "k", []byte(`["a"]`)))
	h.clock.Advance(5 * time.Second)

	v, err := PeekValue[[]string](ctx, h.coord, "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v.Data)
	assert.Equal(t, StateStale, v.State)
	assert.Equal(t, 5*time.Second, v.Age)
}

func TestFetch_UndecodableEntryIsReloaded(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	require.NoError(t, h.store.Write(ctx, "k", []byte(`{not json`)))

	v, err := Fetch[[]string](ctx, h.coord, time.Hour, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, StateCold, v.State)
	assert.Equal(t, []string{"v", "1"}, v.Data)
}

func TestFetch_StaleUndecodableEntryRunsOneProducer(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	require.NoError(t, h.store.Write(ctx, "k", []byte(`{"not":"a list"}`)))
	h.clock.Advance(time.Minute)

	v, err := Fetch[[]string](ctx, h.coord, 20*time.Second, job("k", p))
	require.NoError(t, err)
	assert.Equal(t, StateCold, v.State)
	assert.False(t, v.Refreshing)
	assert.Equal(t, []string{"v", "1"}, v.Data)

	h.launcher.Wait()
	assert.Equal(t, int32(1), p.calls.Load(), "no background refresh alongside the reload")
	running, _ := h.coord.Running("k")
	assert.False(t, running)
}

func TestRunClaimedReleases(t *testing.T) {
	h := newHarness(t)
	h.registry.Alive = func(int) bool { return true }
	p := &countingProducer{err: errors.New("boom")}

	h.registry.Mark("k", 1)
	err := h.coord.RunClaimed(context.Background(), job("k", p))
	assert.Error(t, err)

	running, _ := h.registry.Running("k")
	assert.False(t, running)
}

func TestRun_AfterWriteSeesStoredValue(t *testing.T) {
	h := newHarness(t)
	p := &countingProducer{}
	ctx := context.Background()

	var seen []byte
	j := job("k", p)
	j.AfterWrite = func(ctx context.Context) error {
		e, err := h.store.Read(ctx, "k")
		if err != nil {
			return err
		}
		seen = e.Payload
		return errors.New("ignored")
	}

	require.NoError(t, h.coord.Run(ctx, j))
	assert.JSONEq(t, `["v","1"]`, string(seen))
}
