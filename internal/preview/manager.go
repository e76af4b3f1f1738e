// Package preview renders short preview segments, scrub frames and
// thumbnails for editor sessions.
//
// Each session id carries a generation counter. A new request for a session
// supersedes whatever that session still has in flight: the older invocation
// runs to completion (or is cancelled when CancelSuperseded is set) but its
// result is discarded and its artifact removed. Only the newest generation is
// ever delivered.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/metrics"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

type Kind string

const (
	KindSegment   Kind = "segment"
	KindFrame     Kind = "frame"
	KindThumbnail Kind = "thumbnail"
	KindStrip     Kind = "strip"
)

type Outcome string

const (
	Delivered  Outcome = "delivered"
	Superseded Outcome = "superseded"
	Failed     Outcome = "failed"
)

var ErrShuttingDown = errors.New("preview manager is shutting down")

// Compiler turns a project window into an operation graph.
type Compiler interface {
	Compile(p *project.Project, w timeline.Window, opts timeline.Options) (*timeline.Result, error)
}

type Config struct {
	// CancelSuperseded cancels the engine invocation of a superseded request
	// instead of letting it finish.
	CancelSuperseded bool
	// Timeout bounds every preview invocation.
	Timeout         time.Duration
	SegmentDuration float64
	ThumbWidth      int
	ThumbHeight     int
	StripIntervals  int
	StripDuration   float64
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = 5
	}
	if c.ThumbWidth <= 0 || c.ThumbHeight <= 0 {
		c.ThumbWidth, c.ThumbHeight = 320, 180
	}
	if c.StripIntervals <= 0 {
		c.StripIntervals = 10
	}
	if c.StripDuration <= 0 {
		c.StripDuration = 2
	}
}

type Request struct {
	SessionID string
	Kind      Kind
	Project   *project.Project
	Timestamp float64
	// Duration of a segment, or of each strip item.
	Duration float64
	// Intervals is the number of strip items.
	Intervals int
}

type Result struct {
	Outcome   Outcome
	Artifact  Artifact
	Artifacts []Artifact // strip items
	Err       error
}

// Pending is the handle returned by Request. It resolves exactly once.
type Pending struct {
	SessionID  string
	Generation uint64

	done   chan struct{}
	result Result
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Result blocks until the request resolves.
func (p *Pending) Result() Result {
	<-p.done
	return p.result
}

// Wait is Result bounded by ctx.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type session struct {
	generation uint64
	inflight   int
	cancel     context.CancelFunc
}

// job is one fully compiled request, ready for the engine.
type job struct {
	kind     Kind
	encoding engine.Encoding
	items    []compiled
}

type compiled struct {
	res      *timeline.Result
	artifact Artifact
}

type Manager struct {
	cfg      Config
	compiler Compiler
	engine   engine.Engine
	store    *ArtifactStore
	logger   *slog.Logger
	metrics  *metrics.Metrics

	wg       sync.WaitGroup
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func NewManager(cfg Config, compiler Compiler, eng engine.Engine, store *ArtifactStore, logger *slog.Logger) *Manager {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		compiler: compiler,
		engine:   eng,
		store:    store,
		logger:   logging.WithComponent(logger, "preview"),
		sessions: make(map[string]*session),
	}
}

func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// Config returns the effective configuration, defaults applied.
func (m *Manager) Config() Config {
	return m.cfg
}

// Request validates and compiles req synchronously, then starts the engine
// in the background. Invalid input fails here; everything later resolves
// through the returned Pending. ctx bounds the engine invocation.
func (m *Manager) Request(ctx context.Context, req Request) (*Pending, error) {
	j, err := m.prepare(req)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "private-" + uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &session{}
		m.sessions[sessionID] = s
	}
	s.generation++
	if m.cfg.CancelSuperseded && s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	s.cancel = cancel
	s.inflight++
	pending := &Pending{SessionID: sessionID, Generation: s.generation, done: make(chan struct{})}
	active := len(m.sessions)
	m.wg.Add(1)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetPreviewSessions(active)
	}

	go m.run(runCtx, cancel, j, pending)
	return pending, nil
}

// Sessions returns the number of sessions with a request in flight.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown refuses new requests and waits for in-flight ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) prepare(req Request) (*job, error) {
	if err := project.Validate(req.Project); err != nil {
		return nil, err
	}
	if math.IsNaN(req.Timestamp) || math.IsInf(req.Timestamp, 0) || req.Timestamp < 0 {
		return nil, fmt.Errorf("%w: timestamp %v", timeline.ErrInvalidWindow, req.Timestamp)
	}
	if req.Kind == "" {
		req.Kind = KindSegment
	}

	thumb := timeline.Options{UseProxies: true, OutputWidth: m.cfg.ThumbWidth, OutputHeight: m.cfg.ThumbHeight}

	switch req.Kind {
	case KindSegment:
		d := req.Duration
		if d <= 0 {
			d = m.cfg.SegmentDuration
		}
		return m.compileAll(req, engine.PreviewEncoding, []timeline.Window{{Start: req.Timestamp, Duration: d}}, timeline.Options{UseProxies: true})

	case KindFrame:
		return m.compileAll(req, engine.FrameEncoding, []timeline.Window{frameWindow(req)}, timeline.Options{UseProxies: true})

	case KindThumbnail:
		return m.compileAll(req, engine.FrameEncoding, []timeline.Window{frameWindow(req)}, thumb)

	case KindStrip:
		n := req.Intervals
		if n <= 0 {
			n = m.cfg.StripIntervals
		}
		d := req.Duration
		if d <= 0 {
			d = m.cfg.StripDuration
		}
		total := req.Project.Duration()
		if total <= 0 {
			return nil, fmt.Errorf("%w: project is empty", timeline.ErrInvalidWindow)
		}
		windows := make([]timeline.Window, n)
		for i := range windows {
			windows[i] = timeline.Window{Start: total / float64(n) * float64(i), Duration: d}
		}
		return m.compileAll(req, engine.ThumbnailEncoding, windows, thumb)

	default:
		return nil, fmt.Errorf("%w: unknown preview kind %q", project.ErrInvalidProject, req.Kind)
	}
}

func (m *Manager) compileAll(req Request, enc engine.Encoding, windows []timeline.Window, opts timeline.Options) (*job, error) {
	j := &job{kind: req.Kind, encoding: enc}
	for _, w := range windows {
		res, err := m.compiler.Compile(req.Project, w, opts)
		if err != nil {
			return nil, err
		}
		a := m.store.Allocate(req.Kind)
		a.Timestamp = res.Window.Start
		a.Duration = res.Window.Duration
		j.items = append(j.items, compiled{res: res, artifact: a})
		if m.metrics != nil && len(res.Warnings) > 0 {
			m.metrics.AddCompileWarnings(len(res.Warnings))
		}
	}
	return j, nil
}

// frameWindow is one frame long at the project frame rate.
func frameWindow(req Request) timeline.Window {
	fps := req.Project.Settings.FrameRate
	if fps <= 0 {
		fps = timeline.DefaultFrameRate
	}
	return timeline.Window{Start: req.Timestamp, Duration: 1 / fps}
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, j *job, p *Pending) {
	defer m.wg.Done()
	defer cancel()

	logger := logging.WithSessionID(m.logger, p.SessionID)
	started := time.Now()

	var produced []Artifact
	var lastErr error
	for _, item := range j.items {
		_, err := m.engine.Execute(ctx, engine.Invocation{
			Graph:      item.res.Graph,
			OutputPath: item.artifact.Path,
			Encoding:   j.encoding,
			Duration:   item.res.Window.Duration,
		})
		if err != nil {
			lastErr = err
			m.store.Remove(item.artifact)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		produced = append(produced, item.artifact)
	}
	elapsed := time.Since(started)

	current, active := m.finish(p)

	var result Result
	switch {
	case !current:
		for _, a := range produced {
			m.store.Remove(a)
		}
		result = Result{Outcome: Superseded}
		logger.Info("preview superseded", "kind", j.kind, "generation", p.Generation)
	case len(produced) == 0:
		result = Result{Outcome: Failed, Err: lastErr}
		logger.Warn("preview failed", "kind", j.kind, "error", lastErr)
	default:
		result = Result{Outcome: Delivered, Artifact: produced[0]}
		if j.kind == KindStrip {
			result.Artifacts = produced
		}
		logger.Info("preview delivered", "kind", j.kind, "artifacts", len(produced), "duration_ms", elapsed.Milliseconds())
	}

	if m.metrics != nil {
		m.metrics.RecordPreview(string(j.kind), string(result.Outcome), elapsed.Seconds())
		m.metrics.SetPreviewSessions(active)
	}

	p.result = result
	close(p.done)
}

// finish releases the request's session slot and reports whether it is
// still the session's newest generation.
func (m *Manager) finish(p *Pending) (current bool, active int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[p.SessionID]
	current = s.generation == p.Generation
	s.inflight--
	if s.inflight == 0 {
		delete(m.sessions, p.SessionID)
	}
	return current, len(m.sessions)
}
