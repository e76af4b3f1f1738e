// Package render runs export jobs: each submitted project is compiled over its
// full duration and handed to the media engine, and the job record tracks the
// run from queued to a terminal state.
package render

import (
	"errors"
	"fmt"
	"time"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

const (
	MessageQueued   = "Render is in the queue."
	MessageComplete = "Render finished!"
	MessageFailed   = "Render failed."
)

func processingMessage(percent float64) string {
	return fmt.Sprintf("Rendering... %d%%", int(percent))
}

// Job is the externally visible record of one export.
type Job struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message"`
	OutputPath  string    `json:"-"`
	DownloadURL string    `json:"download_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (j Job) clone() Job {
	if j.Warnings != nil {
		j.Warnings = append([]string(nil), j.Warnings...)
	}
	return j
}
