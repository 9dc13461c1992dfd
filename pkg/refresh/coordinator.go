// Package refresh decides, per cache key, whether to serve a cached value,
// serve a stale value while refreshing it in the background, or block on a
// synchronous fetch.
//
// The transitions for Get are:
//
//	absent -> call the producer synchronously, store and return its value
//	fresh  -> return the cached value, no I/O
//	stale  -> return the cached value and make sure exactly one background
//	          refresh for the job name is in flight
//
// Background refreshes are started through a Launcher and deduplicated
// through a jobs.Registry, so at most one refresh per job name runs at a
// time even when several processes share the cache.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/errs"
	"github.com/pario-ai/sxsearch/pkg/jobs"
)

// DefaultJobTimeout bounds a single background refresh.
const DefaultJobTimeout = 2 * time.Minute

// Producer fetches the value for a cache entry. The result is stored JSON
// encoded.
type Producer func(ctx context.Context) (any, error)

// Job describes how to repopulate one cache entry.
type Job struct {
	// Name identifies the refreshable resource for deduplication.
	// Defaults to Key.
	Name string
	// Key is the cache key written on success.
	Key string
	// Produce performs the fetch.
	Produce Producer
	// Spec is an opaque description of the job for launchers that run it
	// in another process.
	Spec []byte
	// AfterWrite, when set, runs once the produced value is stored.
	AfterWrite func(ctx context.Context) error
}

func (j Job) name() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Key
}

// State is the freshness of a value returned by the Coordinator.
type State int

const (
	// StateCold means the value was just produced because nothing was cached.
	StateCold State = iota
	// StateFresh means the cached value is within its max age.
	StateFresh
	// StateStale means the cached value is older than its max age.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome of Get.
type Result struct {
	Entry cache.Entry
	State State
	Age   time.Duration
	// Refreshing is set when a background refresh for the entry is in flight.
	Refreshing bool
}

// WasFresh reports whether the value did not need refreshing.
func (r Result) WasFresh() bool {
	return r.State != StateStale
}

// Coordinator ties a cache.Store, a jobs.Registry and a Launcher together.
type Coordinator struct {
	store      cache.Store
	registry   jobs.Registry
	launcher   Launcher
	now        func() time.Time
	logger     *slog.Logger
	jobTimeout time.Duration
	group      singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used to compute ages.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger used for background refresh outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithJobTimeout bounds each background refresh. Non-positive values keep
// the default.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.jobTimeout = d
		}
	}
}

// New creates a Coordinator.
func New(store cache.Store, registry jobs.Registry, launcher Launcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		registry:   registry,
		launcher:   launcher,
		now:        time.Now,
		logger:     slog.Default(),
		jobTimeout: DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying cache store.
func (c *Coordinator) Store() cache.Store {
	return c.store
}

// Get returns the value for job.Key, producing or refreshing it as needed.
// Producer errors are returned only when nothing is cached.
func (c *Coordinator) Get(ctx context.Context, maxAge time.Duration, job Job) (Result, error) {
	return c.get(ctx, maxAge, job, nil)
}

// get is Get with an optional payload check. An entry failing the check is
// treated as absent, so no background refresh is launched for it.
func (c *Coordinator) get(ctx context.Context, maxAge time.Duration, job Job, usable func([]byte) error) (Result, error) {
	e, err := c.store.Read(ctx, job.Key)
	if errors.Is(err, cache.ErrNotFound) {
		return c.Load(ctx, job)
	}
	if err != nil {
		return Result{}, errs.IO("cache read", err)
	}
	if usable != nil {
		if err := usable(e.Payload); err != nil {
			c.logger.Warn("discarding undecodable cache entry",
				slog.String("key", job.Key),
				slog.String("error", err.Error()))
			return c.Load(ctx, job)
		}
	}

	age := e.Age(c.now())
	if age <= maxAge {
		return Result{Entry: e, State: StateFresh, Age: age}, nil
	}

	return Result{Entry: e, State: StateStale, Age: age, Refreshing: c.launch(job)}, nil
}

// Peek returns the cached entry for key without producing anything. It
// returns cache.ErrNotFound when the key is absent.
func (c *Coordinator) Peek(ctx context.Context, key string, maxAge time.Duration) (Result, error) {
	e, err := c.store.Read(ctx, key)
	if err != nil {
		return Result{}, err
	}
	age := e.Age(c.now())
	state := StateFresh
	if age > maxAge {
		state = StateStale
	}
	return Result{Entry: e, State: state, Age: age}, nil
}

// Schedule starts a background refresh when job.Key is absent or older than
// maxAge. It never blocks on the producer and reports whether a refresh is
// in flight afterwards.
func (c *Coordinator) Schedule(ctx context.Context, maxAge time.Duration, job Job) (bool, error) {
	e, err := c.store.Read(ctx, job.Key)
	switch {
	case err == nil && e.FreshFor(maxAge, c.now()):
		return c.Running(job.name())
	case err != nil && !errors.Is(err, cache.ErrNotFound):
		return false, errs.IO("cache read", err)
	}
	return c.launch(job), nil
}

// Running reports whether a background refresh for name is in flight.
func (c *Coordinator) Running(name string) (bool, error) {
	return c.registry.Running(name)
}

// Load calls the producer synchronously and stores the result. Concurrent
// calls for the same key within this process share one producer call.
func (c *Coordinator) Load(ctx context.Context, job Job) (Result, error) {
	v, err, _ := c.group.Do(job.Key, func() (any, error) {
		payload, err := produce(ctx, job)
		if err != nil {
			return nil, err
		}
		if err := c.store.Write(ctx, job.Key, payload); err != nil {
			// The caller still gets the value; the next call fetches again.
			c.logger.Warn("cache write failed",
				slog.String("key", job.Key),
				slog.String("error", err.Error()))
			return payload, nil
		}
		c.afterWrite(ctx, job)
		return payload, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Entry: cache.Entry{Key: job.Key, Payload: v.([]byte), WrittenAt: c.now()},
		State: StateCold,
	}, nil
}

// Run produces and stores job's value. It is the body of every background
// refresh; it does not touch the registry.
func (c *Coordinator) Run(ctx context.Context, job Job) error {
	payload, err := produce(ctx, job)
	if err != nil {
		return err
	}
	if err := c.store.Write(ctx, job.Key, payload); err != nil {
		return errs.IO("cache write", err)
	}
	c.afterWrite(ctx, job)
	return nil
}

func (c *Coordinator) afterWrite(ctx context.Context, job Job) {
	if job.AfterWrite == nil {
		return
	}
	if err := job.AfterWrite(ctx); err != nil {
		c.logger.Warn("post-write step failed",
			slog.String("job", job.name()),
			slog.String("error", err.Error()))
	}
}

// RunClaimed runs a job that was claimed in the registry and releases the
// claim when done. Failures are logged and leave the cached value alone.
func (c *Coordinator) RunClaimed(ctx context.Context, job Job) error {
	name := job.name()
	log := c.logger.With(slog.String("job", name), slog.String("run_id", uuid.NewString()))
	defer func() {
		if err := c.registry.Release(name); err != nil {
			log.Error("release job failed", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	start := c.now()
	log.Debug("background refresh started")
	if err := c.Run(ctx, job); err != nil {
		log.Error("background refresh failed",
			slog.String("error", err.Error()),
			slog.String("kind", string(errs.KindOf(err))))
		return err
	}
	log.Info("background refresh done", slog.Duration("duration", c.now().Sub(start)))
	return nil
}

// launch makes sure a refresh for job is in flight. Errors are logged: the
// caller already has a value to show.
func (c *Coordinator) launch(job Job) bool {
	name := job.name()
	claimed, err := c.registry.Claim(name, func() (int, error) {
		return c.launcher.Launch(job, func(ctx context.Context) error {
			return c.RunClaimed(ctx, job)
		})
	})
	if err != nil {
		c.logger.Error("launch background refresh failed",
			slog.String("job", name),
			slog.String("error", err.Error()))
		return false
	}
	if claimed {
		c.logger.Debug("background refresh launched", slog.String("job", name))
	}
	return true
}

func produce(ctx context.Context, job Job) ([]byte, error) {
	if job.Produce == nil {
		return nil, fmt.Errorf("job %s has no producer", job.name())
	}
	v, err := job.Produce(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", job.Key, err)
	}
	return payload, nil
}
