package feed

// Update is the canonical, source-agnostic form of one feed item.
//
// Normalizers emit updates in source order (newest first). Timestamp is
// seconds since epoch and is the primary cursor key; ID breaks ties for
// items that share the boundary timestamp.
type Update struct {
	ID          uint64
	Timestamp   int64
	Author      string
	AuthorID    uint64
	Description string
	Pictures    []string
	Permalink   string
}

// LiveSignal is a live room's point-in-time state. No history beyond the
// last persisted boolean is modeled.
type LiveSignal struct {
	RoomID    uint64
	Live      bool
	Title     string
	StartTime string
	Cover     string
	Streamer  string
}

// Message is a composed, channel-agnostic notification. Photos carries a
// picture group (possibly empty); Photo carries the single cover image used
// for live notifications. Produced fresh per notification and consumed once.
type Message struct {
	Text   string
	Photos []string
	Photo  string
}

// HasPhotos reports whether the message carries any image at all.
func (m Message) HasPhotos() bool {
	return len(m.Photos) > 0 || m.Photo != ""
}
