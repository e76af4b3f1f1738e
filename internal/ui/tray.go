// Package ui is the optional system-tray control for the render service.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-render/internal/render"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 2 * time.Second

// RenderControl is the part of the render manager the tray drives.
type RenderControl interface {
	Pause()
	Resume()
	IsPaused() bool
	Counts() map[render.Status]int
}

type Tray struct {
	renders RenderControl
	logger  *slog.Logger
	onQuit  func()

	statusItem *systray.MenuItem
	queueItem  *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}
}

type TrayConfig struct {
	Renders RenderControl
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		renders: cfg.Renders,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
		stop:    make(chan struct{}),
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex Render")
	systray.SetTooltip("Heimdex Render")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Render queue status")
	t.statusItem.Disable()

	t.queueItem = systray.AddMenuItem(queueLabel(nil), "Jobs by state")
	t.queueItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Stop admitting new renders")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Render")

	t.refresh()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.renders == nil {
		return
	}
	if t.renders.IsPaused() {
		t.renders.Resume()
		t.logger.Info("render admission resumed from tray")
	} else {
		t.renders.Pause()
		t.logger.Info("render admission paused from tray")
	}
	t.updateLocked()
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateLocked()
}

func (t *Tray) updateLocked() {
	if t.renders == nil {
		return
	}
	paused := t.renders.IsPaused()
	counts := t.renders.Counts()

	t.statusItem.SetTitle("Status: " + statusLabel(paused, counts))
	t.queueItem.SetTitle(queueLabel(counts))
	if paused {
		t.pauseItem.SetTitle("Resume")
	} else {
		t.pauseItem.SetTitle("Pause")
	}
}

// Quit stops the refresh loop and the platform event loop.
func (t *Tray) Quit() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	systray.Quit()
}

func statusLabel(paused bool, counts map[render.Status]int) string {
	if paused {
		return "Paused"
	}
	if n := counts[render.StatusProcessing]; n > 0 {
		return fmt.Sprintf("Rendering %d", n)
	}
	return "Idle"
}

func queueLabel(counts map[render.Status]int) string {
	return fmt.Sprintf("Queued: %d  Done: %d  Failed: %d",
		counts[render.StatusQueued], counts[render.StatusComplete], counts[render.StatusError])
}
