// Package task runs named units of work on a bounded worker pool with
// progress reporting, cooperative cancellation and retention of finished
// tasks for polling.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/faults"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ProgressFunc reports work progress as (current, total). The latest values
// are stored on the task for polling.
type ProgressFunc func(current, total int)

// Fn is a unit of background work. It must observe ctx at safe checkpoints
// (between chunks, pages or batches); work that never checks runs to
// completion even after cancellation is requested.
type Fn func(ctx context.Context, progress ProgressFunc) (any, error)

// Task tracks one submitted unit of work. Mutated only by the executing
// worker and by cancellation requests.
type Task struct {
	id   string
	name string
	fn   Fn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	status     Status
	progress   int
	total      int
	result     any
	err        error
	finishedAt time.Time
}

// Snapshot is a point-in-time copy of a task's state for polling.
type Snapshot struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Progress int            `json:"progress"`
	Total    int            `json:"total"`
	Result   any            `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Fault    *faults.Report `json:"fault,omitempty"`
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Snapshot returns the current task state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:       t.id,
		Name:     t.name,
		Status:   t.status,
		Progress: t.progress,
		Total:    t.total,
		Result:   t.result,
	}
	if t.err != nil {
		s.Error = t.err.Error()
		report := faults.Classify(t.err)
		s.Fault = &report
	}
	return s
}

func (t *Task) setProgress(current, total int) {
	t.mu.Lock()
	t.progress, t.total = current, total
	t.mu.Unlock()
}

// Options configures a Manager.
type Options struct {
	// MaxWorkers bounds the pool; zero means GOMAXPROCS.
	MaxWorkers int
	// Retention is how long finished tasks stay queryable. Zero means
	// DefaultRetention.
	Retention time.Duration
	// SoftMemoryBytes logs a resource-pressure warning before running a task
	// when heap usage exceeds it. HardMemoryBytes fails the task instead.
	// Zero disables the respective check.
	SoftMemoryBytes uint64
	HardMemoryBytes uint64
	Logger          *slog.Logger
}

// DefaultRetention is how long finished tasks remain queryable.
const DefaultRetention = 10 * time.Minute

// Manager owns the worker pool and the task table.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task

	queue   chan *Task
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager starts a Manager with a running worker pool.
func NewManager(opts Options) *Manager {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	baseCtx, stop := context.WithCancel(context.Background())
	m := &Manager{
		opts:    opts,
		logger:  opts.Logger,
		tasks:   make(map[string]*Task),
		queue:   make(chan *Task, 256),
		baseCtx: baseCtx,
		stop:    stop,
	}

	for i := 0; i < opts.MaxWorkers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.wg.Add(1)
	go m.sweeper()

	return m
}

// Submit enqueues fn under the given name and returns its Task immediately.
func (m *Manager) Submit(name string, fn Fn) *Task {
	ctx, cancel := context.WithCancel(m.baseCtx)
	t := &Task{
		id:     uuid.New().String(),
		name:   name,
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusPending,
	}

	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()

	m.queue <- t
	return t
}

// Status returns the snapshot for id, if the task is still retained.
func (m *Manager) Status(id string) (Snapshot, bool) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Cancel requests cooperative cancellation of a task. Pending tasks are
// cancelled immediately; running tasks get their context cancelled and are
// expected to observe it at the next checkpoint. Returns false if the task is
// unknown or already finished.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	t.mu.Lock()
	switch t.status {
	case StatusPending:
		t.status = StatusCancelled
		t.finishedAt = time.Now()
		t.mu.Unlock()
		t.cancel()
		close(t.done)
		return true
	case StatusRunning:
		t.mu.Unlock()
		t.cancel()
		return true
	default:
		t.mu.Unlock()
		return false
	}
}

// Wait blocks until the task finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("unknown task %s", id)
	}
	select {
	case <-t.done:
		return t.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Close cancels all work and waits for the pool to drain.
func (m *Manager) Close() {
	m.stop()
	close(m.queue)
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for t := range m.queue {
		if m.baseCtx.Err() != nil {
			m.finish(t, nil, m.baseCtx.Err())
			continue
		}
		m.run(t)
	}
}

func (m *Manager) run(t *Task) {
	t.mu.Lock()
	if t.status != StatusPending {
		// Cancelled while queued.
		t.mu.Unlock()
		return
	}
	t.status = StatusRunning
	t.mu.Unlock()

	if err := m.checkPressure(t.name); err != nil {
		m.finish(t, nil, err)
		return
	}

	result, err := t.fn(t.ctx, t.setProgress)
	m.finish(t, result, err)
}

func (m *Manager) finish(t *Task, result any, err error) {
	t.mu.Lock()
	if t.status == StatusCancelled {
		t.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		t.status = StatusCompleted
		t.result = result
	case errors.Is(err, context.Canceled) && t.ctx.Err() != nil:
		t.status = StatusCancelled
	default:
		t.status = StatusFailed
		t.err = err
	}
	t.finishedAt = time.Now()
	t.mu.Unlock()

	if err != nil && t.Snapshot().Status == StatusFailed {
		report := faults.Classify(err)
		m.logger.Warn("task failed",
			"task_id", t.id, "name", t.name,
			"category", report.Category, "error", err)
	}
	close(t.done)
}

// checkPressure applies the soft and hard heap watermarks before a task runs.
func (m *Manager) checkPressure(name string) error {
	if m.opts.SoftMemoryBytes == 0 && m.opts.HardMemoryBytes == 0 {
		return nil
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	if m.opts.HardMemoryBytes > 0 && ms.HeapAlloc > m.opts.HardMemoryBytes {
		return fmt.Errorf("heap %d bytes exceeds hard cap %d: %w",
			ms.HeapAlloc, m.opts.HardMemoryBytes, faults.ErrResourceExhausted)
	}
	if m.opts.SoftMemoryBytes > 0 && ms.HeapAlloc > m.opts.SoftMemoryBytes {
		m.logger.Warn("memory pressure while starting task",
			"task", name, "heap_bytes", ms.HeapAlloc, "soft_cap", m.opts.SoftMemoryBytes)
	}
	return nil
}

// sweeper drops finished tasks after the retention window.
func (m *Manager) sweeper() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.Retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.opts.Retention)
			m.mu.Lock()
			for id, t := range m.tasks {
				t.mu.Lock()
				expired := t.status != StatusPending && t.status != StatusRunning &&
					!t.finishedAt.IsZero() && t.finishedAt.Before(cutoff)
				t.mu.Unlock()
				if expired {
					delete(m.tasks, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
