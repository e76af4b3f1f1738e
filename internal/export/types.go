package export

// Event is one CMX3600 edit: a span of source media placed on the record
// timeline. Times are in seconds.
type Event struct {
	Track     string
	ClipName  string
	MediaPath string
	SourceIn  float64
	SourceOut float64
	RecordIn  float64
	RecordOut float64
	Speed     float64
}

// Marker is a named point on the record timeline.
type Marker struct {
	Time float64
	Name string
}
