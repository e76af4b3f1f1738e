package render

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/metrics"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

const oneClip = `{
  "settings": {"width": 640, "height": 360},
  "tracks": [
    {"id": "v1", "type": "video", "clips": [
      {"id": "c1", "type": "video", "src": "A.mp4", "timelineStart": 0, "duration": 4}
    ]}
  ]
}`

func decode(t *testing.T, doc string) *project.Project {
	t.Helper()
	p, err := project.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	return p
}

// fakeEngine reports its progress values, signals started, then blocks on
// release when it is set.
type fakeEngine struct {
	progress []float64
	release  chan struct{}
	started  chan string
	err      error

	mu    sync.Mutex
	calls []engine.Invocation
}

func (f *fakeEngine) Execute(ctx context.Context, inv engine.Invocation) (engine.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	for _, p := range f.progress {
		inv.Progress(p)
	}
	if f.started != nil {
		f.started <- inv.OutputPath
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return engine.RunResult{ExitCode: -1}, fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
	}
	if f.err != nil {
		return engine.RunResult{ExitCode: 1}, f.err
	}
	return engine.RunResult{OutputPath: inv.OutputPath}, nil
}

func (f *fakeEngine) invocations() []engine.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Invocation(nil), f.calls...)
}

func newTestManager(t *testing.T, cfg Config, eng engine.Engine) *Manager {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	compiler := timeline.NewCompiler(timeline.MapResolver{"A.mp4": "/media/A.mp4"}, nil, "", nil)
	m := NewManager(cfg, nil, compiler, eng, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func waitStarted(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not invoked")
		return ""
	}
}

func waitTask(t *testing.T, m *Manager, id string) Result {
	t.Helper()
	task, ok := m.Task(id)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestManager_JobLifecycle(t *testing.T) {
	eng := &fakeEngine{
		progress: []float64{10, 40, 30},
		release:  make(chan struct{}),
		started:  make(chan string, 1),
	}
	dir := t.TempDir()
	m := newTestManager(t, Config{OutputDir: dir}, eng)

	job, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, MessageQueued, job.Message)
	assert.NotEmpty(t, job.ID)

	waitStarted(t, eng.started)

	running, err := m.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, running.Status)
	assert.Equal(t, 40.0, running.Progress, "progress never goes backwards")
	assert.Equal(t, "Rendering... 40%", running.Message)

	close(eng.release)
	res := waitTask(t, m, job.ID)
	require.NoError(t, res.Err)

	done, err := m.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, done.Status)
	assert.Equal(t, 100.0, done.Progress)
	assert.Equal(t, MessageComplete, done.Message)
	assert.Equal(t, "/processed/final-"+job.ID+".mp4", done.DownloadURL)
	assert.Equal(t, filepath.Join(dir, "final-"+job.ID+".mp4"), done.OutputPath)

	calls := eng.invocations()
	require.Len(t, calls, 1)
	assert.Equal(t, engine.ExportEncoding.Name, calls[0].Encoding.Name)
	assert.Equal(t, 4.0, calls[0].Duration)
	assert.Equal(t, []string{"/media/A.mp4"}, calls[0].Graph.InputPaths())
}

func TestManager_EngineFailure(t *testing.T) {
	eng := &fakeEngine{err: &engine.RunError{ExitCode: 1, StderrTail: "Invalid data found"}}
	m := newTestManager(t, Config{}, eng)

	job, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)

	res := waitTask(t, m, job.ID)
	assert.ErrorIs(t, res.Err, engine.ErrEngineFailure)

	got, err := m.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, MessageFailed, got.Message)
	assert.Equal(t, "ffmpeg exited 1: Invalid data found", got.Error)
	assert.Empty(t, got.DownloadURL)
	assert.Len(t, eng.invocations(), 1, "failed jobs are not retried")
}

func TestManager_UnresolvedMediaIsAWarning(t *testing.T) {
	eng := &fakeEngine{}
	m := newTestManager(t, Config{}, eng)

	p := decode(t, `{
	  "settings": {"width": 640, "height": 360},
	  "tracks": [
	    {"id": "v1", "type": "video", "clips": [
	      {"id": "c1", "type": "video", "src": "A.mp4", "timelineStart": 0, "duration": 2},
	      {"id": "c2", "type": "video", "src": "missing.mp4", "timelineStart": 2, "duration": 2}
	    ]}
	  ]
	}`)
	job, err := m.Submit(p)
	require.NoError(t, err)

	res := waitTask(t, m, job.ID)
	require.NoError(t, res.Err)
	assert.Equal(t, StatusComplete, res.Job.Status)
	require.Len(t, res.Job.Warnings, 1)
	assert.Contains(t, res.Job.Warnings[0], "c2")
}

func TestManager_SubmitRejectsInvalidInput(t *testing.T) {
	m := newTestManager(t, Config{}, &fakeEngine{})

	_, err := m.Submit(nil)
	assert.ErrorIs(t, err, project.ErrInvalidProject)

	_, err = m.Submit(&project.Project{Settings: project.Settings{Width: 0, Height: 0}})
	assert.ErrorIs(t, err, project.ErrInvalidProject)

	_, err = m.Submit(&project.Project{Settings: project.Settings{Width: 640, Height: 360}})
	assert.ErrorIs(t, err, timeline.ErrInvalidWindow)

	assert.Empty(t, m.List(), "rejected submissions create no job")
}

func TestManager_StatusUnknown(t *testing.T) {
	m := newTestManager(t, Config{}, &fakeEngine{})
	_, err := m.Status("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_ConcurrencyCap(t *testing.T) {
	eng := &fakeEngine{release: make(chan struct{}), started: make(chan string, 2)}
	m := newTestManager(t, Config{MaxConcurrent: 1}, eng)

	first, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)
	second, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)

	waitStarted(t, eng.started)
	select {
	case <-eng.started:
		t.Fatal("second render admitted while the only slot is taken")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, map[Status]int{StatusQueued: 1, StatusProcessing: 1, StatusComplete: 0, StatusError: 0}, m.Counts())

	close(eng.release)
	assert.Equal(t, StatusComplete, waitTask(t, m, first.ID).Job.Status)
	assert.Equal(t, StatusComplete, waitTask(t, m, second.ID).Job.Status)
}

func TestManager_PauseHoldsAdmission(t *testing.T) {
	eng := &fakeEngine{started: make(chan string, 1)}
	m := newTestManager(t, Config{}, eng)

	m.Pause()
	assert.True(t, m.IsPaused())

	job, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)

	select {
	case <-eng.started:
		t.Fatal("render started while paused")
	case <-time.After(100 * time.Millisecond):
	}
	got, err := m.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)

	m.Resume()
	assert.False(t, m.IsPaused())
	waitStarted(t, eng.started)
	assert.Equal(t, StatusComplete, waitTask(t, m, job.ID).Job.Status)
}

func TestManager_ShutdownInterruptsRenders(t *testing.T) {
	eng := &fakeEngine{release: make(chan struct{}), started: make(chan string, 1)}
	m := newTestManager(t, Config{}, eng)

	job, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)
	waitStarted(t, eng.started)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := m.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "interrupted by shutdown", got.Error)

	_, err = m.Submit(decode(t, oneClip))
	assert.True(t, errors.Is(err, ErrShuttingDown))
}

func TestManager_Prune(t *testing.T) {
	m := newTestManager(t, Config{Retention: time.Millisecond}, &fakeEngine{})

	job, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)
	waitTask(t, m, job.ID)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, m.Prune())

	_, err = m.Status(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, ok := m.Task(job.ID)
	assert.False(t, ok)
}

func TestManager_Metrics(t *testing.T) {
	mt := metrics.New()
	m := newTestManager(t, Config{}, &fakeEngine{})
	m.SetMetrics(mt)

	job, err := m.Submit(decode(t, oneClip))
	require.NoError(t, err)
	waitTask(t, m, job.ID)

	families, err := mt.Registry().Gather()
	require.NoError(t, err)
	var completed float64
	for _, f := range families {
		if f.GetName() != "render_jobs_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			completed += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, completed)
}

func TestTask_ProgressIsLatestWins(t *testing.T) {
	task := newTask()
	task.publish(10)
	task.publish(20)
	task.publish(30)

	assert.Equal(t, 30.0, <-task.Progress())
	assert.Equal(t, Result{}, task.Result())

	task.finish(Result{Job: Job{ID: "j"}})
	task.finish(Result{Job: Job{ID: "ignored"}})
	<-task.Done()
	assert.Equal(t, "j", task.Result().Job.ID)
}
