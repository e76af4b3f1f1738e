package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/metrics"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

var ErrShuttingDown = errors.New("render manager is shutting down")

const interruptedMessage = "interrupted by shutdown"

// Compiler turns a project window into an operation graph.
type Compiler interface {
	Compile(p *project.Project, w timeline.Window, opts timeline.Options) (*timeline.Result, error)
}

type Config struct {
	// OutputDir receives final-<id>.mp4 files.
	OutputDir string
	// URLPrefix is prepended to the output file name for DownloadURL.
	URLPrefix string
	// MaxConcurrent caps renders holding the engine; 0 means unbounded.
	MaxConcurrent int
	// Retention is how long terminal jobs are kept by Prune.
	Retention time.Duration
}

// Manager owns the job registry and the goroutines running renders.
type Manager struct {
	cfg      Config
	store    Store
	compiler Compiler
	engine   engine.Engine
	logger   *slog.Logger
	metrics  *metrics.Metrics

	sem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*Task
	paused bool
	gate   chan struct{}
	closed bool
}

func NewManager(cfg Config, store Store, compiler Compiler, eng engine.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/processed/"
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		store:    store,
		compiler: compiler,
		engine:   eng,
		logger:   logging.WithComponent(logger, "render"),
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*Task),
	}
	if cfg.MaxConcurrent > 0 {
		m.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return m
}

func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// Submit validates p, records a queued job and starts rendering it. The
// returned job is always in the queued state.
func (m *Manager) Submit(p *project.Project) (Job, error) {
	if err := project.Validate(p); err != nil {
		return Job{}, err
	}
	if p.Duration() <= 0 {
		return Job{}, fmt.Errorf("%w: project has no clips to render", timeline.ErrInvalidWindow)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Job{}, ErrShuttingDown
	}

	now := time.Now()
	job := Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Message:   MessageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(job); err != nil {
		return Job{}, err
	}

	task := newTask()
	m.tasks[job.ID] = task
	m.wg.Add(1)
	go m.run(job.ID, p, task)

	m.logger.Info("render job queued", "job_id", job.ID, "duration", p.Duration())
	return job, nil
}

func (m *Manager) Status(id string) (Job, error) {
	return m.store.Get(id)
}

func (m *Manager) List() []Job {
	return m.store.List()
}

// Task returns the live handle of a job submitted by this process.
func (m *Manager) Task(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Counts returns the number of jobs per status.
func (m *Manager) Counts() map[Status]int {
	counts := map[Status]int{
		StatusQueued:     0,
		StatusProcessing: 0,
		StatusComplete:   0,
		StatusError:      0,
	}
	for _, j := range m.store.List() {
		counts[j.Status]++
	}
	return counts
}

// Pause holds queued jobs at admission. Renders already running continue.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.paused = true
	m.gate = make(chan struct{})
	m.logger.Info("render admission paused")
}

func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		return
	}
	m.paused = false
	close(m.gate)
	m.logger.Info("render admission resumed")
}

func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Prune evicts terminal jobs older than the retention window.
func (m *Manager) Prune() int {
	if m.cfg.Retention <= 0 {
		return 0
	}
	n := m.store.Prune(time.Now().Add(-m.cfg.Retention))
	if n == 0 {
		return 0
	}

	m.mu.Lock()
	for id := range m.tasks {
		if _, err := m.store.Get(id); errors.Is(err, ErrJobNotFound) {
			delete(m.tasks, id)
		}
	}
	m.mu.Unlock()

	m.logger.Info("pruned render jobs", "count", n)
	return n
}

// Shutdown stops admitting jobs, interrupts running renders and waits for
// their goroutines to record a terminal state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("render manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) admit(ctx context.Context) error {
	for {
		m.mu.Lock()
		paused, gate := m.paused, m.gate
		m.mu.Unlock()

		if paused {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if m.sem != nil {
			select {
			case m.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// Paused while waiting for a slot.
		if m.IsPaused() {
			m.release()
			continue
		}
		return nil
	}
}

func (m *Manager) release() {
	if m.sem != nil {
		<-m.sem
	}
}

func (m *Manager) run(id string, p *project.Project, task *Task) {
	defer m.wg.Done()
	logger := logging.WithJobID(m.logger, id)

	if err := m.admit(m.ctx); err != nil {
		m.fail(id, task, errors.New(interruptedMessage), logger, time.Now())
		return
	}
	defer m.release()

	if m.metrics != nil {
		m.metrics.JobStarted()
		defer m.metrics.JobStopped()
	}

	started := time.Now()
	m.store.Update(id, func(j *Job) {
		j.Status = StatusProcessing
		j.Progress = 0
		j.Message = processingMessage(0)
	})
	logger.Info("render started")

	res, err := m.compiler.Compile(p, timeline.Window{Start: 0, Duration: p.Duration()}, timeline.Options{})
	if err != nil {
		m.fail(id, task, fmt.Errorf("compile: %w", err), logger, started)
		return
	}
	if len(res.Warnings) > 0 {
		warnings := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			warnings[i] = w.String()
		}
		m.store.Update(id, func(j *Job) { j.Warnings = warnings })
		if m.metrics != nil {
			m.metrics.AddCompileWarnings(len(warnings))
		}
	}

	name := "final-" + id + ".mp4"
	out := filepath.Join(m.cfg.OutputDir, name)
	_, err = m.engine.Execute(m.ctx, engine.Invocation{
		Graph:      res.Graph,
		OutputPath: out,
		Encoding:   engine.ExportEncoding,
		Duration:   res.Window.Duration,
		Progress:   func(pct float64) { m.progress(id, task, pct) },
	})
	if err != nil {
		if m.ctx.Err() != nil {
			err = errors.New(interruptedMessage)
		}
		m.fail(id, task, err, logger, started)
		return
	}

	job, _ := m.store.Update(id, func(j *Job) {
		j.Status = StatusComplete
		j.Progress = 100
		j.Message = MessageComplete
		j.OutputPath = out
		j.DownloadURL = m.cfg.URLPrefix + name
	})
	elapsed := time.Since(started)
	if m.metrics != nil {
		m.metrics.RecordJob(string(StatusComplete), elapsed.Seconds())
	}
	logger.Info("render complete", "duration_ms", elapsed.Milliseconds(), "output", logging.SanitizePath(out))

	task.publish(100)
	task.finish(Result{Job: job})
}

// progress records an engine report. Values never decrease and reports
// after the job left processing are dropped.
func (m *Manager) progress(id string, task *Task, percent float64) {
	var current float64
	var changed bool
	m.store.Update(id, func(j *Job) {
		if j.Status != StatusProcessing || percent <= j.Progress {
			current = j.Progress
			return
		}
		j.Progress = percent
		j.Message = processingMessage(percent)
		current, changed = percent, true
	})
	if changed {
		task.publish(current)
	}
}

func (m *Manager) fail(id string, task *Task, err error, logger *slog.Logger, started time.Time) {
	job, _ := m.store.Update(id, func(j *Job) {
		j.Status = StatusError
		j.Message = MessageFailed
		j.Error = err.Error()
	})
	if m.metrics != nil {
		m.metrics.RecordJob(string(StatusError), time.Since(started).Seconds())
	}
	logger.Warn("render failed", "error", err)
	task.finish(Result{Job: job, Err: err})
}
