package transport

import "context"

// MaxAlbumSize is the largest photo group a channel must accept in one
// SendAlbum call (Telegram's media group limit).
const MaxAlbumSize = 10

// Photo is one image for delivery. Exactly one of URL or Data is set:
// URL asks the channel to fetch the image itself, Data carries the bytes
// in-line. Name is a hint for byte payloads ("cover.jpg").
type Photo struct {
	URL  string
	Data []byte
	Name string
}

// ByURL reports whether the photo is a remote reference.
func (p Photo) ByURL() bool { return len(p.Data) == 0 }

// Channel is one configured messaging destination.
//
// Implementations are independent of each other; the delivery pipeline
// holds no shared state across channels. Text may contain a minimal HTML
// markup subset. All calls honor ctx cancellation.
type Channel interface {
	Name() string

	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, photo Photo, caption string) error
	// SendAlbum sends up to MaxAlbumSize photos with a shared caption.
	SendAlbum(ctx context.Context, photos []Photo, caption string) error
}
