// Package export writes project timelines as CMX3600 edit decision lists for
// hand-off to other editors.
package export

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/heimdex/heimdex-render/internal/project"
)

const (
	reelName       = "AX"
	maxTitleLength = 70
	defaultTitle   = "Untitled"
)

// FromProject lists one event per video and audio clip, ordered by record
// in-point, followed by the project's markers. frameRate falls back to the
// project setting and then to 30.
func FromProject(p *project.Project, frameRate float64) string {
	if frameRate <= 0 && p != nil {
		frameRate = p.Settings.FrameRate
	}
	if p == nil {
		return GenerateEDL(nil, nil, defaultTitle, frameRate)
	}

	var events []Event
	videoN, audioN := 0, 0
	for _, t := range p.Tracks {
		var label string
		switch t.Type {
		case project.TrackVideo:
			videoN++
			label = "V"
			if videoN > 1 {
				label = fmt.Sprintf("V%d", videoN)
			}
		case project.TrackAudio:
			audioN++
			label = "A"
			if audioN > 1 {
				label = fmt.Sprintf("A%d", audioN)
			}
		default:
			continue
		}
		for _, c := range t.Clips {
			if !c.HasMedia() || c.Duration <= 0 {
				continue
			}
			speed := c.PlaybackSpeed()
			events = append(events, Event{
				Track:     label,
				ClipName:  SanitizeName(path.Base(c.Src), maxTitleLength),
				MediaPath: c.Src,
				SourceIn:  c.Start,
				SourceOut: c.Start + speed*c.Duration,
				RecordIn:  c.TimelineStart,
				RecordOut: c.End(),
				Speed:     speed,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].RecordIn < events[j].RecordIn })

	markers := make([]Marker, 0, len(p.Markers))
	for _, m := range p.Markers {
		markers = append(markers, Marker{Time: m.Time, Name: m.Name})
	}
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].Time < markers[j].Time })

	title := SanitizeName(p.Name, maxTitleLength)
	if title == "" {
		title = defaultTitle
	}
	return GenerateEDL(events, markers, title, frameRate)
}

func GenerateEDL(events []Event, markers []Marker, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, e := range events {
		srcIn := secondsToTimecode(e.SourceIn, fps)
		lines = append(lines, fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s",
			i+1, reelName, e.Track,
			srcIn, secondsToTimecode(e.SourceOut, fps),
			secondsToTimecode(e.RecordIn, fps), secondsToTimecode(e.RecordOut, fps)))
		if e.Speed != 0 && e.Speed != 1 {
			lines = append(lines, fmt.Sprintf("M2   %-8s %05.1f    %s", reelName, float64(fps)*e.Speed, srcIn))
		}
		lines = append(lines,
			fmt.Sprintf("* FROM CLIP NAME:  %s", e.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", e.MediaPath),
		)
	}

	if len(markers) > 0 {
		lines = append(lines, "")
		for _, m := range markers {
			lines = append(lines, fmt.Sprintf("* LOC: %s %s", secondsToTimecode(m.Time, fps), SanitizeName(m.Name, maxTitleLength)))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(math.Max(0, sec) * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
