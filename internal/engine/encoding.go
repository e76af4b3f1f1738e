package engine

// Encoding holds the output options appended after the stream mapping.
type Encoding struct {
	Name  string
	Video []string
	// Audio options are used only when the graph has an audio output.
	Audio []string
	// Container options such as -movflags.
	Container []string
	// NoAudio drops the audio output even when the graph has one.
	NoAudio bool
}

var (
	ExportEncoding = Encoding{
		Name:      "export",
		Video:     []string{"-c:v", "libx264", "-preset", "medium", "-crf", "20", "-pix_fmt", "yuv420p"},
		Audio:     []string{"-c:a", "aac", "-b:a", "192k"},
		Container: []string{"-movflags", "+faststart"},
	}

	PreviewEncoding = Encoding{
		Name:      "preview",
		Video:     []string{"-c:v", "libx264", "-preset", "ultrafast", "-crf", "28", "-pix_fmt", "yuv420p"},
		Audio:     []string{"-c:a", "aac", "-b:a", "128k"},
		Container: []string{"-movflags", "+faststart"},
	}

	ThumbnailEncoding = Encoding{
		Name:      "thumbnail",
		Video:     []string{"-c:v", "libx264", "-preset", "ultrafast", "-crf", "32", "-pix_fmt", "yuv420p"},
		Container: []string{"-movflags", "+faststart"},
		NoAudio:   true,
	}

	// FrameEncoding writes a single JPEG.
	FrameEncoding = Encoding{
		Name:    "frame",
		Video:   []string{"-frames:v", "1", "-q:v", "3"},
		NoAudio: true,
	}
)
