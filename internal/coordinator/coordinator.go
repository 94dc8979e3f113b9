// Package coordinator turns resolved build requests into cached artifacts.
//
// Each build hash has at most one build in flight; concurrent callers for the
// same hash share its outcome. Successful artifacts are cached forever,
// failures are never cached. Builds run detached from the requesting
// client under their own deadline.
package coordinator

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/packd/internal/artifact"
	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/cache"
	"git.home.luguber.info/inful/packd/internal/events"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/ledger"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/metrics"
	"git.home.luguber.info/inful/packd/internal/worker"
)

// ErrBuildTimeout is returned to every waiter of a build that exceeded the
// build deadline.
var ErrBuildTimeout = errors.TimeoutError("build timed out").Build()

// DefaultTimeout bounds a build when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

// Ledger records finished build attempts.
type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Coordinator owns the artifact cache and the in-flight build table.
type Coordinator struct {
	cache    *cache.Cache
	executor worker.Executor
	flights  singleflight.Group
	timeout  time.Duration
	slots    *semaphore.Weighted

	recorder metrics.Recorder
	emitter  events.Emitter
	ledger   Ledger
	logger   *slog.Logger
}

type Option func(*Coordinator)

// WithTimeout sets the per-build deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxConcurrent bounds the number of builds running at once. Zero means
// unbounded. The build deadline starts once a build holds a slot.
func WithMaxConcurrent(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithEmitter(e events.Emitter) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.emitter = e
		}
	}
}

func WithLedger(l Ledger) Option {
	return func(c *Coordinator) { c.ledger = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a coordinator that builds cache misses with executor.
func New(c *cache.Cache, executor worker.Executor, opts ...Option) *Coordinator {
	co := &Coordinator{
		cache:    c,
		executor: executor,
		timeout:  DefaultTimeout,
		recorder: metrics.NoopRecorder{},
		emitter:  events.Discard{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Cache returns the artifact cache.
func (c *Coordinator) Cache() *cache.Cache { return c.cache }

// Obtain returns the artifact for req, building it if needed. Cancelling ctx
// stops waiting but never cancels the build itself.
func (c *Coordinator) Obtain(ctx context.Context, req build.Request) (*artifact.Artifact, error) {
	a, result := c.cache.Get(ctx, req.Hash)
	c.recorder.IncCacheLookup(result)
	if a != nil {
		return a, nil
	}

	leader := false
	ch := c.flights.DoChan(req.Hash, func() (any, error) {
		leader = true
		return c.run(req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if !leader {
			c.recorder.IncJoinedWaiters()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*artifact.Artifact), nil
	}
}

// run executes one build. It runs on the single-flight goroutine, detached
// from any request context.
func (c *Coordinator) run(req build.Request) (*artifact.Artifact, error) {
	// A flight for this hash may have completed between the caller's cache
	// lookup and this flight starting.
	if a, _ := c.cache.Get(context.Background(), req.Hash); a != nil {
		return a, nil
	}

	att := attempt{id: uuid.NewString(), req: req, started: time.Now()}
	log := c.logger.With(logfields.BuildID(att.id), logfields.BuildHash(req.Hash), logfields.Bundle(req.Name))

	// Time spent queued for a slot does not count against the build deadline.
	if c.slots != nil {
		if err := c.slots.Acquire(context.Background(), 1); err != nil {
			return nil, c.finish(log, att, nil, err)
		}
		defer c.slots.Release(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.recorder.AddBuildsInFlight(1)
	defer c.recorder.AddBuildsInFlight(-1)

	c.emit(ctx, log, att.event(events.KindStarted))

	info := func(line string) {
		e := att.event(events.KindProgress)
		e.Info = line
		c.emit(ctx, log, e)
	}
	out, err := c.executor.Execute(ctx, req, info)
	if err != nil {
		return nil, c.finish(log, att, nil, c.classify(err))
	}

	for stage, ms := range out.Stages {
		c.recorder.ObserveStageDuration(stage, time.Duration(ms)*time.Millisecond)
	}

	a, err := artifact.New(req.Name, req.Hash, out.Code)
	if err != nil {
		return nil, c.finish(log, att, nil, err)
	}
	a.Degraded = !out.Minified
	c.cache.Put(context.Background(), a)
	return a, c.finish(log, att, a, nil)
}

// classify maps deadline expiry to ErrBuildTimeout.
func (c *Coordinator) classify(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return ErrBuildTimeout.WithContext("timeout", c.timeout.String())
	}
	return err
}

// finish records the outcome of att and returns err unchanged.
func (c *Coordinator) finish(log *slog.Logger, att attempt, a *artifact.Artifact, err error) error {
	elapsed := time.Since(att.started)
	outcome := outcomeOf(a, err)

	c.recorder.IncBuildOutcome(outcome)
	c.recorder.ObserveBuildDuration(elapsed)

	e := att.event(events.KindFinished)
	e.Outcome = string(outcome)
	e.DurationMS = elapsed.Milliseconds()
	entry := ledger.Entry{
		ID:        att.id,
		Hash:      att.req.Hash,
		Name:      att.req.Name,
		Outcome:   string(outcome),
		StartedAt: att.started.UTC(),
		Duration:  elapsed,
	}
	if a != nil {
		c.recorder.ObserveArtifactSize(a.Size())
		e.Size = a.Size()
		entry.Size = a.Size()
	}
	if err != nil {
		e.Error = err.Error()
		entry.Error = err.Error()
	}

	// The build context may already be expired; bookkeeping gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.emit(ctx, log, e)
	if c.ledger != nil {
		if lerr := c.ledger.Record(ctx, entry); lerr != nil {
			log.Warn("Failed to record build in ledger", logfields.Error(lerr))
		}
	}
	return err
}

func (c *Coordinator) emit(ctx context.Context, log *slog.Logger, e events.Event) {
	if err := c.emitter.Emit(ctx, e); err != nil {
		log.Debug("Failed to emit build event", slog.String("kind", string(e.Kind)), logfields.Error(err))
	}
}

func outcomeOf(a *artifact.Artifact, err error) metrics.BuildOutcome {
	switch {
	case err == nil && a.Degraded:
		return metrics.OutcomeDegraded
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.HasCategory(err, errors.CategoryTimeout):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeFailed
	}
}

type attempt struct {
	id      string
	req     build.Request
	started time.Time
}

func (a attempt) event(k events.Kind) events.Event {
	return events.Event{ID: a.id, Kind: k, Hash: a.req.Hash, Name: a.req.Name, Time: time.Now().UTC()}
}
