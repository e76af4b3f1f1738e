package engine

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// progressParser reads ffmpeg -progress blocks and reports percent of total.
// A block is a run of key=value lines ending with progress=continue|end.
type progressParser struct {
	total  float64
	report func(float64)

	outTime float64
	have    bool
}

func newProgressParser(total float64, report func(float64)) *progressParser {
	return &progressParser{total: total, report: report}
}

func (p *progressParser) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.line(sc.Text())
	}
}

func (p *progressParser) line(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.outTime = float64(us) / 1e6
			p.have = true
		}
	case "out_time":
		if secs, ok := parseClock(value); ok {
			p.outTime = secs
			p.have = true
		}
	case "progress":
		if value == "end" {
			p.emit(100)
		} else if p.have && p.total > 0 {
			p.emit(p.outTime / p.total * 100)
		}
		p.have = false
	}
}

func (p *progressParser) emit(percent float64) {
	if p.report == nil {
		return
	}
	p.report(clampPercent(percent))
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// parseClock parses HH:MM:SS.micro into seconds.
func parseClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}
