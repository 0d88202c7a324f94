package notify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"

	"ailurus/internal/transport"
)

// Source CDNs serve covers and post images as jpeg, png, gif or webp.
// Channels that reject URL references usually also reject exotic formats,
// so tier-2 delivery re-encodes everything to jpeg.

const maxPhotoBytes = 10 << 20

type photoFetcher struct {
	http *http.Client
}

func newPhotoFetcher(timeout time.Duration) *photoFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &photoFetcher{http: &http.Client{Timeout: timeout}}
}

// fetchAll downloads every url and returns in-line photo payloads in the
// same order. Any failed download fails the whole batch; the caller falls
// through to the text tier.
func (f *photoFetcher) fetchAll(ctx context.Context, urls []string) ([]transport.Photo, error) {
	photos := make([]transport.Photo, 0, len(urls))
	for i, u := range urls {
		data, err := f.fetchOne(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", i, err)
		}
		photos = append(photos, transport.Photo{
			Data: data,
			Name: fmt.Sprintf("photo-%d.jpg", i),
		})
	}
	return photos, nil
}

func (f *photoFetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: http %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, err
	}
	return reencodeJPEG(raw), nil
}

// reencodeJPEG normalizes the image to jpeg. Undecodable payloads pass
// through untouched; the channel gets a chance to accept them as-is.
func reencodeJPEG(raw []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return raw
	}
	return buf.Bytes()
}
