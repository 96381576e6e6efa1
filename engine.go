// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/neb/internal/parallel"
)

const tracerName = "github.com/gogpu/neb"

// State is the lifecycle state of the engine's current render.
type State uint8

const (
	// StateIdle means no render has been started.
	StateIdle State = iota

	// StateRendering means negatives are being developed.
	StateRendering

	// StateFinished means every negative developed and the positive is final.
	StateFinished

	// StateAborted means a fault or Close ended the render early.
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// session is the state of one render. Fields other than nmu/ended and the
// immutable setup are guarded by Engine.mu.
type session struct {
	info      RenderInfo
	algorithm Algorithm
	negatives []*Negative
	tasks     []*Task
	positive  *Positive
	developed int
	state     State
	err       error

	// done is closed after the terminal notification.
	done chan struct{}

	// nmu serializes listener notifications; ended is set by the terminal one.
	nmu   sync.Mutex
	ended bool
}

// Engine distributes renders over a fixed pool of workers.
//
// An Engine owns its pool, queue and render state; create as many as needed.
// Render starts a render and returns immediately. Snapshot pauses every
// worker between increments, combines the current negatives into the positive
// and resumes. Stop and Start park and release the pool.
//
// Thread safety: Engine is safe for concurrent use. Snapshot, Stop, Start and
// Close are serialized; Render fails with ErrBusy while one of them is in flight.
type Engine struct {
	pool     *parallel.Pool[*Task]
	listener Listener
	log      *slog.Logger
	metrics  *metrics
	tracer   trace.Tracer
	registry *Registry

	// ctl serializes the barrier operations and Render.
	ctl sync.Mutex

	// mu guards the fields below, the current session and every task's iteration.
	// Combine runs with mu held.
	mu         sync.Mutex
	algorithm  Algorithm
	factory    string
	parameters *Parameters
	width      int
	height     int
	session    *session
	closed     bool
}

// New creates an engine and starts its workers.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.width <= 0 || o.height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidRaster, o.width, o.height)
	}

	e := &Engine{
		listener: o.listener,
		log:      o.logger,
		registry: o.registry,
		width:    o.width,
		height:   o.height,
	}
	if e.listener == nil {
		e.listener = NopListener{}
	}
	if e.log == nil {
		e.log = Logger()
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	e.tracer = tp.Tracer(tracerName)

	e.pool = parallel.NewPool(o.workers, e.runTask, e.taskFailed)

	m, err := newMetrics(o.registerer,
		func() float64 { return float64(e.pool.Len()) },
		func() float64 { return float64(e.pool.Parked()) },
	)
	if err != nil {
		e.pool.Close()
		return nil, err
	}
	e.metrics = m

	e.log.Info("neb: engine started", "workers", e.pool.Workers())
	return e, nil
}

// Workers returns the pool size.
func (e *Engine) Workers() int {
	return e.pool.Workers()
}

// =============================================================================
// Render
// =============================================================================

// Render partitions a render of alg at width x height into
// Workers() * alg.Multiplier(Workers()) negatives and queues one task per
// negative. It returns once the tasks are queued; use Wait, Snapshot or the
// listener to follow the render.
//
// Render fails with ErrRenderInProgress while a previous render is still
// running and with ErrBusy while a barrier operation is in flight.
func (e *Engine) Render(ctx context.Context, alg Algorithm, width, height int) error {
	_, span := e.tracer.Start(ctx, "neb.Render", trace.WithAttributes(
		attribute.Int("neb.width", width),
		attribute.Int("neb.height", height),
	))
	defer span.End()

	info, err := e.render(alg, width, height)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.String("neb.render_id", info.ID),
		attribute.String("neb.algorithm", info.Algorithm),
		attribute.Int("neb.negatives", info.Negatives),
	)
	return nil
}

// RenderCurrent renders the algorithm chosen with SetAlgorithm at the
// raster size chosen with SetRasterSize.
func (e *Engine) RenderCurrent(ctx context.Context) error {
	e.mu.Lock()
	alg, w, h := e.algorithm, e.width, e.height
	e.mu.Unlock()

	if alg == nil {
		return ErrNoAlgorithm
	}
	return e.Render(ctx, alg, w, h)
}

func (e *Engine) render(alg Algorithm, width, height int) (RenderInfo, error) {
	if alg == nil {
		return RenderInfo{}, ErrNoAlgorithm
	}
	if width <= 0 || height <= 0 {
		return RenderInfo{}, fmt.Errorf("%w: %dx%d", ErrInvalidRaster, width, height)
	}
	if !e.ctl.TryLock() {
		return RenderInfo{}, ErrBusy
	}
	defer e.ctl.Unlock()

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return RenderInfo{}, ErrClosed
	case e.session != nil && e.session.state == StateRendering:
		e.mu.Unlock()
		return RenderInfo{}, ErrRenderInProgress
	}
	prev := e.session
	e.mu.Unlock()

	// The previous render's terminal notification precedes RenderStarted.
	if prev != nil {
		<-prev.done
	}

	s, err := newSession(alg, width, height, e.pool.Workers())
	if err != nil {
		return RenderInfo{}, err
	}

	// The previous positive and negatives are dropped here.
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	info := s.info
	e.metrics.rendersStarted.Inc()
	e.log.Info("neb: render started",
		"id", info.ID,
		"algorithm", info.Algorithm,
		"width", width,
		"height", height,
		"negatives", info.Negatives,
		"goal", info.IterationGoal,
	)
	e.emit(s, false, func(l Listener) { l.RenderStarted(info) })
	e.emit(s, false, func(l Listener) {
		l.Log(fmt.Sprintf("Raster size: %dx%d\nNegatives: %d", width, height, info.Negatives))
	})

	for _, t := range s.tasks {
		e.pool.Submit(t)
	}
	return info, nil
}

// newSession asks alg for its partitioning and allocates every negative.
func newSession(alg Algorithm, width, height, workers int) (*session, error) {
	var multiplier, goal int
	err := safely(func() error {
		multiplier = alg.Multiplier(workers)
		goal = alg.TaskIterationGoal(workers)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("neb: %s: %w", alg.Name(), err)
	}
	if multiplier < 1 {
		return nil, &ParameterError{Name: "multiplier", Value: fmt.Sprint(multiplier), Err: fmt.Errorf("%s: must be at least 1", alg.Name())}
	}
	if goal < 1 {
		return nil, &ParameterError{Name: "iteration_goal", Value: fmt.Sprint(goal), Err: fmt.Errorf("%s: must be at least 1", alg.Name())}
	}

	n := workers * multiplier
	s := &session{
		info: RenderInfo{
			ID:            uuid.NewString(),
			Algorithm:     alg.Name(),
			Width:         width,
			Height:        height,
			Workers:       workers,
			Multiplier:    multiplier,
			IterationGoal: goal,
			Negatives:     n,
			StartedAt:     time.Now(),
		},
		algorithm: alg,
		negatives: make([]*Negative, n),
		tasks:     make([]*Task, n),
		positive:  NewPositive(width, height),
		state:     StateRendering,
		done:      make(chan struct{}),
	}

	for i := range n {
		var buf any
		if err := safely(func() error {
			buf = alg.NewNegativeBuffer(width, height)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("neb: %s: allocate negative %d: %w", alg.Name(), i, err)
		}

		neg := newNegative(buf, i)
		neg.Data[KeyIndex] = i
		neg.Data[KeyResidueClass] = i % multiplier
		neg.Data[KeyPartition] = i / multiplier
		neg.Data[KeyPartitions] = workers
		neg.Data[KeyWidth] = width
		neg.Data[KeyHeight] = height

		s.negatives[i] = neg
		s.tasks[i] = &Task{
			negative:  neg,
			algorithm: alg,
			session:   s,
			iteration: 1,
			goal:      goal,
		}
	}
	return s, nil
}

// =============================================================================
// Task completion
// =============================================================================

// runTask is the pool callback: one increment of one task.
func (e *Engine) runTask(t *Task) error {
	s := t.session

	e.mu.Lock()
	live := s.state == StateRendering
	iteration := t.iteration
	e.mu.Unlock()
	if !live {
		return nil // stale task of an aborted render
	}

	if err := safely(func() error { return t.algorithm.Step(t.negative) }); err != nil {
		return &StepError{Negative: t.negative.index, Iteration: iteration, Err: err}
	}
	e.metrics.increments.Inc()
	e.completeTask(t)
	return nil
}

// completeTask re-enqueues t or marks its negative developed. The worker that
// develops the last negative combines and ends the render. The decision and
// the combine run under e.mu, so concurrent completions are counted once and
// combine runs exactly once.
func (e *Engine) completeTask(t *Task) {
	s := t.session

	e.mu.Lock()
	if s.state != StateRendering {
		e.mu.Unlock()
		return
	}

	if t.iteration < t.goal {
		p := Progress{
			ID:        s.info.ID,
			Negative:  t.negative.index,
			Iteration: t.iteration,
			Goal:      t.goal,
			Developed: s.developed,
			Total:     len(s.negatives),
		}
		t.iteration++
		e.mu.Unlock()

		e.emit(s, false, func(l Listener) { l.Progress(p) })
		e.pool.Submit(t)
		return
	}

	t.negative.developed = true
	s.developed++
	if s.developed < len(s.negatives) {
		e.mu.Unlock()
		return
	}

	if err := e.combineLocked(s); err != nil {
		info := e.finishLocked(s, StateAborted, err)
		e.mu.Unlock()
		e.aborted(s, info, err)
		return
	}
	info := e.finishLocked(s, StateFinished, nil)
	e.mu.Unlock()

	e.metrics.rendersEnded.Inc()
	e.log.Info("neb: render ended", "id", info.ID, "elapsed", info.Elapsed)
	e.emit(s, true, func(l Listener) { l.RenderEnded(info) })
	close(s.done)
}

// combineLocked combines the negatives of s into a copy of its positive and
// publishes the copy on success. A published positive is never written again,
// and a failed combine leaves the last one in place. Must be called with e.mu
// held and no worker stepping s.
func (e *Engine) combineLocked(s *session) error {
	next := s.positive.Clone()
	if err := safely(func() error { return s.algorithm.Combine(s.negatives, next) }); err != nil {
		return fmt.Errorf("%w: %w", ErrCombineFailed, err)
	}
	s.positive = next
	return nil
}

// taskFailed is the pool error callback.
func (e *Engine) taskFailed(t *Task, err error) {
	e.abort(t.session, err)
}

// abort ends s with err unless it already ended.
func (e *Engine) abort(s *session, err error) {
	e.mu.Lock()
	if s.state != StateRendering {
		e.mu.Unlock()
		return
	}
	info := e.finishLocked(s, StateAborted, err)
	e.mu.Unlock()

	e.aborted(s, info, err)
}

// aborted discards the queued tasks of s and delivers the error notification.
// Called once per aborted session, after finishLocked.
func (e *Engine) aborted(s *session, info RenderInfo, err error) {
	discarded := e.pool.Drain(func(t *Task) bool { return t.session == s })

	e.metrics.rendersAborted.Inc()
	e.log.Warn("neb: render aborted", "id", info.ID, "err", err, "discarded", discarded)
	e.emit(s, true, func(l Listener) { l.ErrorOccurred(info, err) })
	close(s.done)
}

// finishLocked records the end state of s. Must be called with e.mu held.
func (e *Engine) finishLocked(s *session, state State, err error) RenderInfo {
	s.state = state
	s.err = err
	s.info.Elapsed = time.Since(s.info.StartedAt)
	return s.info
}

// emit delivers one notification for s unless its terminal notification has
// already been delivered.
func (e *Engine) emit(s *session, terminal bool, fn func(Listener)) {
	s.nmu.Lock()
	defer s.nmu.Unlock()

	if s.ended {
		return
	}
	if terminal {
		s.ended = true
	}
	fn(e.listener)
}

// =============================================================================
// Barrier operations
// =============================================================================

// Snapshot returns the positive of the current render.
//
// The returned positive is not modified by the engine afterwards; later
// snapshots publish a new one. Callers must treat it as read-only.
//
// While a render is in progress, Snapshot parks every worker at its next
// increment boundary, combines the negatives as they are, and releases the
// workers; queued tasks keep their progress. Otherwise it returns the current
// positive unchanged, or nil before the first render. Concurrent calls are
// served one after the other.
//
// If ctx ends before every worker has parked, the pause is withdrawn and the
// context error is returned.
func (e *Engine) Snapshot(ctx context.Context) (*Positive, error) {
	ctx, span := e.tracer.Start(ctx, "neb.Snapshot")
	defer span.End()

	pos, err := e.snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return pos, err
}

func (e *Engine) snapshot(ctx context.Context) (*Positive, error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return nil, nil
	}
	if s.state != StateRendering {
		pos := s.positive
		e.mu.Unlock()
		return pos, nil
	}
	e.mu.Unlock()

	start := time.Now()
	if err := e.pool.Pause(ctx); err != nil {
		return nil, fmt.Errorf("neb: snapshot: %w", err)
	}
	e.metrics.snapshotWait.Observe(time.Since(start).Seconds())
	e.log.Debug("neb: workers parked", "id", s.info.ID, "wait", time.Since(start))

	// No worker is inside runTask from here until Resume.
	e.mu.Lock()
	if s.state != StateRendering {
		// The render finished or aborted while the barrier was closing.
		pos := s.positive
		e.mu.Unlock()
		e.pool.Resume()
		return pos, nil
	}
	info := s.info
	err := e.combineLocked(s)
	if err != nil {
		info = e.finishLocked(s, StateAborted, err)
	}
	pos := s.positive
	e.mu.Unlock()

	if err != nil {
		e.aborted(s, info, err)
		e.pool.Resume()
		return nil, err
	}

	e.metrics.snapshots.Inc()
	e.emit(s, false, func(l Listener) { l.RenderPaused(info) })
	e.emit(s, false, func(l Listener) { l.RenderResumed(info) })
	e.pool.Resume()
	return pos, nil
}

// Stop parks every worker indefinitely and waits until they have parked.
// The current render keeps its progress and continues after Start.
// Stop is idempotent.
func (e *Engine) Stop(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "neb.Stop")
	defer span.End()

	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.isClosed() {
		return ErrClosed
	}
	if err := e.pool.Stop(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("neb: stop: %w", err)
	}
	e.log.Info("neb: workers stopped")
	return nil
}

// Start releases workers parked by Stop. Start is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "neb.Start")
	defer span.End()

	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.isClosed() {
		return ErrClosed
	}
	e.pool.Start()
	e.log.Info("neb: workers started")
	return nil
}

// Close aborts the current render with ErrClosed, waits for increments in
// flight and terminates the workers. Close is safe to call multiple times.
func (e *Engine) Close() error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	s := e.session
	e.mu.Unlock()

	e.pool.Close()
	if s != nil {
		e.abort(s, ErrClosed)
	}
	e.log.Info("neb: engine closed")
	return nil
}

// Wait blocks until the current render ends and returns its error, if any.
// It returns nil immediately when no render has been started.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}

	select {
	case <-s.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// =============================================================================
// Status
// =============================================================================

// TaskStatus is the progress of one negative.
type TaskStatus struct {
	Negative int

	// Iteration is the increment the task will run next (1-based), or Goal
	// once developed.
	Iteration int
	Goal      int
	Developed bool
}

// Status is a point-in-time view of the engine.
type Status struct {
	State     State
	Render    RenderInfo
	Developed int
	Negatives int
	Err       error
	Tasks     []TaskStatus

	// Queued is the number of tasks waiting in the queue.
	Queued int

	// Active is the number of workers running an increment.
	Active int

	// Parked is the number of parked workers.
	Parked int

	// Stopped reports whether Stop is in effect.
	Stopped bool
}

// Status returns the current render and pool state.
func (e *Engine) Status() Status {
	st := Status{
		Queued:  e.pool.Len(),
		Active:  e.pool.Active(),
		Parked:  e.pool.Parked(),
		Stopped: e.pool.Stopped(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		return st
	}
	st.State = s.state
	st.Render = s.info
	st.Developed = s.developed
	st.Negatives = len(s.negatives)
	st.Err = s.err
	st.Tasks = make([]TaskStatus, len(s.tasks))
	for i, t := range s.tasks {
		st.Tasks[i] = TaskStatus{
			Negative:  i,
			Iteration: t.iteration,
			Goal:      t.goal,
			Developed: t.negative.developed,
		}
	}
	return st
}

// =============================================================================
// Configuration
// =============================================================================

// SetAlgorithm selects the algorithm RenderCurrent uses, with its default
// parameters.
func (e *Engine) SetAlgorithm(name string) error {
	alg, defaults, err := e.registry.New(name, nil)
	if err != nil {
		return err
	}
	if err := e.configure(name, alg, defaults); err != nil {
		return err
	}
	e.listener.AlgorithmSet(name, defaults.Clone())
	return nil
}

// SetParameters rebuilds the selected algorithm from its defaults overridden
// by p.
func (e *Engine) SetParameters(p *Parameters) error {
	name := e.Algorithm()
	if name == "" {
		return ErrNoAlgorithm
	}
	alg, merged, err := e.registry.New(name, p)
	if err != nil {
		return err
	}
	if err := e.configure(name, alg, merged); err != nil {
		return err
	}
	e.listener.ParametersSet(merged.Clone())
	return nil
}

// ResetParameters rebuilds the selected algorithm from its defaults.
func (e *Engine) ResetParameters() error {
	name := e.Algorithm()
	if name == "" {
		return ErrNoAlgorithm
	}
	alg, defaults, err := e.registry.New(name, nil)
	if err != nil {
		return err
	}
	if err := e.configure(name, alg, defaults); err != nil {
		return err
	}
	e.listener.ParametersReset(defaults.Clone())
	return nil
}

func (e *Engine) configure(name string, alg Algorithm, p *Parameters) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.configurableLocked(); err != nil {
		return err
	}
	e.factory = name
	e.algorithm = alg
	e.parameters = p
	return nil
}

func (e *Engine) configurableLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.session != nil && e.session.state == StateRendering {
		return ErrRenderInProgress
	}
	return nil
}

// Algorithm returns the identifier of the selected algorithm, or "".
func (e *Engine) Algorithm() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factory
}

// Parameters returns a copy of the selected algorithm's parameters, or nil.
func (e *Engine) Parameters() *Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parameters == nil {
		return nil
	}
	return e.parameters.Clone()
}

// SetRasterSize sets the raster size RenderCurrent uses.
func (e *Engine) SetRasterSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidRaster, width, height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.configurableLocked(); err != nil {
		return err
	}
	e.width = width
	e.height = height
	return nil
}

// RasterSize returns the raster size RenderCurrent uses.
func (e *Engine) RasterSize() (width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// safely runs fn, converting a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
