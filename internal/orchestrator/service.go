package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"hackcbs/vectorgate/internal/startup"
)

// Instrumentation scope and instrument names for bootstrap telemetry.
const (
	InstrumentationName     = "hackcbs/vectorgate/orchestrator"
	MetricBootstrapRuns     = "vectorgate.bootstrap.runs"
	MetricBootstrapDuration = "vectorgate.bootstrap.duration"
)

// ErrBootstrapInProgress is returned when RunBootstrap is called while a
// bootstrap is already running.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// IndexProvisioner is satisfied by *clients.PineconeClient.
type IndexProvisioner interface {
	EnsureIndex(ctx context.Context) (*IndexResult, error)
	Probe(ctx context.Context) ProbeResult
}

// Locker is satisfied by *clients.RedisLocker.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
	Probe(ctx context.Context) ProbeResult
}

// Announcer is satisfied by *clients.NATSAnnouncer.
type Announcer interface {
	Announce(ctx context.Context, ev IndexEvent) error
	Probe(ctx context.Context) ProbeResult
}

// ServeFunc runs the HTTP server on port and blocks until ctx is cancelled
// or the server fails.
type ServeFunc func(ctx context.Context, port int) error

// Orchestrator runs the bootstrap phases, hands control to the server and
// answers health probes.
type Orchestrator struct {
	index   IndexProvisioner
	lock    Locker
	events  Announcer
	timeout time.Duration

	runs     metric.Int64Counter
	duration metric.Float64Histogram

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator. lock and events may be nil, in which case
// their phases are reported as skipped. A positive timeout bounds each
// bootstrap run.
func New(index IndexProvisioner, lock Locker, events Announcer, timeout time.Duration) *Orchestrator {
	meter := otel.Meter(InstrumentationName)
	// Instrument creation only fails on invalid names; the no-op fallbacks
	// returned alongside the error are safe to use.
	runs, _ := meter.Int64Counter(MetricBootstrapRuns,
		metric.WithDescription("Bootstrap runs by final status"))
	duration, _ := meter.Float64Histogram(MetricBootstrapDuration,
		metric.WithDescription("Bootstrap run duration"), metric.WithUnit("s"))

	return &Orchestrator{
		index:    index,
		lock:     lock,
		events:   events,
		timeout:  timeout,
		runs:     runs,
		duration: duration,
	}
}

// RunBootstrap acquires the bootstrap lock (if configured), ensures the
// vector index exists and announces it. Phases run in order; a failed lock
// or index phase stops the run and its error is returned tagged with a
// startup Kind. The announce phase is best-effort. Returns
// ErrBootstrapInProgress if a bootstrap is already running.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result := &BootstrapResult{
		RunID:  uuid.NewString(),
		Status: StatusInProgress,
		Phases: make(map[string]PhaseResult, 3),
	}

	ctx, span := otel.Tracer(InstrumentationName).Start(ctx, "vectorgate.bootstrap")
	defer span.End()
	span.SetAttributes(attribute.String("bootstrap.run_id", result.RunID))

	start := time.Now()
	slog.InfoContext(ctx, "bootstrap started", "run_id", result.RunID)

	err := o.runPhases(ctx, result)

	result.Status = StatusOK
	if err != nil {
		result.Status = StatusError
	}

	span.SetAttributes(attribute.String("bootstrap.status", result.Status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "bootstrap failed",
			"run_id", result.RunID, "kind", startup.KindOf(err).String(), "error", err)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed", "run_id", result.RunID, "status", result.Status)
	}

	statusAttr := metric.WithAttributes(attribute.String("status", result.Status))
	o.runs.Add(ctx, 1, statusAttr)
	o.duration.Record(ctx, time.Since(start).Seconds(), statusAttr)

	o.resultMu.Lock()
	o.lastResult = result
	o.resultMu.Unlock()

	return result, err
}

func (o *Orchestrator) runPhases(ctx context.Context, result *BootstrapResult) error {
	if o.lock == nil {
		result.Phases[PhaseLock] = skippedPhase(PhaseLock)
	} else {
		release, err := o.lock.Acquire(ctx)
		phase := errToPhase(PhaseLock, err)
		logPhase(ctx, phase)
		result.Phases[PhaseLock] = phase
		if err != nil {
			return startup.Wrap(startup.KindConnectivity, "acquiring bootstrap lock", err)
		}
		defer func() {
			// The bootstrap deadline may already have passed.
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(relCtx); err != nil {
				slog.WarnContext(ctx, "releasing bootstrap lock failed", "error", err)
			}
		}()
	}

	idx, err := o.index.EnsureIndex(ctx)
	phase := errToPhase(PhaseIndex, err)
	logPhase(ctx, phase)
	result.Phases[PhaseIndex] = phase
	if err != nil {
		return startup.Wrap(startup.KindResourceCreation, "ensuring index", err)
	}
	result.Index = idx

	if o.events == nil {
		result.Phases[PhaseAnnounce] = skippedPhase(PhaseAnnounce)
		return nil
	}

	err = o.events.Announce(ctx, IndexEvent{
		RunID:     result.RunID,
		Index:     idx.Name,
		Host:      idx.Host,
		Created:   idx.Created,
		Timestamp: time.Now().Unix(),
	})
	phase = errToPhase(PhaseAnnounce, err)
	logPhase(ctx, phase)
	result.Phases[PhaseAnnounce] = phase

	return nil
}

// Launch runs the bootstrap and, once the index is ready, hands control to
// serve. It returns only after serve returns. serve is never invoked when
// the bootstrap fails.
func (o *Orchestrator) Launch(ctx context.Context, port int, serve ServeFunc) error {
	result, err := o.RunBootstrap(ctx)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "connected to pinecone; index is ready", "index", result.Index.Name)
	slog.InfoContext(ctx, "server listening", "port", port)

	if err := serve(ctx, port); err != nil {
		return startup.Wrap(startup.KindServerStartup, "serving", err)
	}
	return nil
}

// RunDeepHealth probes every configured dependency concurrently and returns
// a map of dependency name to ProbeResult.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	probers := map[string]func(context.Context) ProbeResult{
		"pinecone": o.index.Probe,
	}
	if o.lock != nil {
		probers["redis"] = o.lock.Probe
	}
	if o.events != nil {
		probers["nats"] = o.events.Probe
	}

	results := make(map[string]ProbeResult, len(probers))
	var mu sync.Mutex
	var g errgroup.Group

	for name, probe := range probers {
		g.Go(func() error {
			res := probe(ctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

// LastResult returns the most recent bootstrap result, or nil.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}

// logPhase emits a trace-correlated log for a bootstrap phase result.
func logPhase(ctx context.Context, p PhaseResult) {
	if p.Status == StatusOK {
		slog.InfoContext(ctx, "bootstrap phase ok", "phase", p.Name)
		return
	}
	slog.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "error", p.Error)
}

func skippedPhase(name string) PhaseResult {
	return PhaseResult{Name: name, Status: StatusSkipped}
}

// errToPhase converts a phase error to a PhaseResult.
func errToPhase(name string, err error) PhaseResult {
	if err == nil {
		return PhaseResult{Name: name, Status: StatusOK}
	}
	return PhaseResult{Name: name, Status: StatusError, Error: err.Error()}
}
