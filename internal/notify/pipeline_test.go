package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ailurus/internal/feed"
	"ailurus/internal/transport"
	logx "ailurus/pkg/logx"
)

// fakeChannel lets tests choose which send paths succeed.
type fakeChannel struct {
	name        string
	rejectURL   bool
	rejectBytes bool
	rejectText  bool

	mu     sync.Mutex
	texts  []string
	photos [][]transport.Photo
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) SendText(_ context.Context, text string) error {
	if c.rejectText {
		return errors.New("text rejected")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) SendPhoto(ctx context.Context, p transport.Photo, _ string) error {
	return c.acceptPhotos(ctx, []transport.Photo{p})
}

func (c *fakeChannel) SendAlbum(ctx context.Context, ps []transport.Photo, _ string) error {
	return c.acceptPhotos(ctx, ps)
}

func (c *fakeChannel) acceptPhotos(_ context.Context, ps []transport.Photo) error {
	byURL := len(ps) > 0 && ps[0].ByURL()
	if byURL && c.rejectURL {
		return errors.New("url photos rejected")
	}
	if !byURL && c.rejectBytes {
		return errors.New("byte photos rejected")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photos = append(c.photos, ps)
	return nil
}

func photoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not-an-image"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func photoMessage(url string) feed.Message {
	return feed.Message{Text: "caption", Photos: []string{url}}
}

func TestPipelineURLTier(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{name: "ok"}
	p := NewPipeline([]ChannelRate{{Channel: ch, RatePerSec: 100}}, 0, logx.Nop())

	outcomes := p.Send(context.Background(), photoMessage("https://example.com/a.jpg"))
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[0].Tier != TierURL {
		t.Fatalf("outcome = %+v, want url tier success", outcomes[0])
	}
	if len(ch.photos) != 1 || !ch.photos[0][0].ByURL() {
		t.Fatalf("expected one url photo delivery, got %+v", ch.photos)
	}
}

func TestPipelineFallsBackToBytes(t *testing.T) {
	t.Parallel()
	srv := photoServer(t)

	ch := &fakeChannel{name: "bytes-only", rejectURL: true}
	p := NewPipeline([]ChannelRate{{Channel: ch, RatePerSec: 100}}, 0, logx.Nop())

	outcomes := p.Send(context.Background(), photoMessage(srv.URL+"/a.jpg"))
	if outcomes[0].Err != nil || outcomes[0].Tier != TierBytes {
		t.Fatalf("outcome = %+v, want bytes tier success", outcomes[0])
	}
	if len(ch.photos) != 1 || ch.photos[0][0].ByURL() {
		t.Fatalf("expected in-line photo delivery, got %+v", ch.photos)
	}
}

func TestPipelineFallsBackToText(t *testing.T) {
	t.Parallel()
	srv := photoServer(t)

	ch := &fakeChannel{name: "text-only", rejectURL: true, rejectBytes: true}
	p := NewPipeline([]ChannelRate{{Channel: ch, RatePerSec: 100}}, 0, logx.Nop())

	outcomes := p.Send(context.Background(), photoMessage(srv.URL+"/a.jpg"))
	if outcomes[0].Err != nil || outcomes[0].Tier != TierText {
		t.Fatalf("outcome = %+v, want text tier success", outcomes[0])
	}
	if len(ch.texts) != 1 || ch.texts[0] != "caption" {
		t.Fatalf("caption not delivered as text: %q", ch.texts)
	}
}

func TestPipelineAllTiersFail(t *testing.T) {
	t.Parallel()
	srv := photoServer(t)

	ch := &fakeChannel{name: "dead", rejectURL: true, rejectBytes: true, rejectText: true}
	p := NewPipeline([]ChannelRate{{Channel: ch, RatePerSec: 100}}, 0, logx.Nop())

	outcomes := p.Send(context.Background(), photoMessage(srv.URL+"/a.jpg"))
	if outcomes[0].Err == nil {
		t.Fatal("expected an error when every tier is rejected")
	}
	if outcomes[0].Tier != TierText {
		t.Fatalf("tier = %v, want text", outcomes[0].Tier)
	}
}

func TestPipelineChannelIsolation(t *testing.T) {
	t.Parallel()
	good := &fakeChannel{name: "good"}
	bad := &fakeChannel{name: "bad", rejectText: true}
	p := NewPipeline([]ChannelRate{
		{Channel: good, RatePerSec: 100},
		{Channel: bad, RatePerSec: 100},
	}, 0, logx.Nop())

	outcomes := p.Send(context.Background(), feed.Message{Text: "hi"})
	var goodErr, badErr error
	for _, o := range outcomes {
		switch o.Channel {
		case "good":
			goodErr = o.Err
		case "bad":
			badErr = o.Err
		}
	}
	if goodErr != nil {
		t.Fatalf("healthy channel failed: %v", goodErr)
	}
	if badErr == nil {
		t.Fatal("broken channel reported success")
	}
	if len(good.texts) != 1 {
		t.Fatalf("healthy channel got %d texts, want 1", len(good.texts))
	}
}

func TestPipelineCompanionTextForLargeAlbums(t *testing.T) {
	t.Parallel()
	urls := make([]string, 6)
	for i := range urls {
		urls[i] = "https://example.com/p.jpg"
	}
	ch := &fakeChannel{name: "album"}
	p := NewPipeline([]ChannelRate{{Channel: ch, RatePerSec: 100}}, 0, logx.Nop())

	p.Send(context.Background(), feed.Message{Text: "caption", Photos: urls})
	if len(ch.texts) != 1 {
		t.Fatalf("companion text sends = %d, want 1", len(ch.texts))
	}
}

func TestSetChannelsRedirectsDelivery(t *testing.T) {
	t.Parallel()
	old := &fakeChannel{name: "old"}
	p := NewPipeline([]ChannelRate{{Channel: old, RatePerSec: 100}}, 0, logx.Nop())

	replacement := &fakeChannel{name: "new"}
	p.SetChannels([]ChannelRate{{Channel: replacement, RatePerSec: 100}})

	p.Send(context.Background(), feed.Message{Text: "hi"})
	if len(old.texts) != 0 {
		t.Fatalf("replaced channel still received %d messages", len(old.texts))
	}
	if len(replacement.texts) != 1 {
		t.Fatalf("new channel got %d messages, want 1", len(replacement.texts))
	}
}

func TestReencodeJPEGPassesThroughUndecodable(t *testing.T) {
	t.Parallel()
	raw := []byte("definitely not an image")
	if got := reencodeJPEG(raw); string(got) != string(raw) {
		t.Fatal("undecodable payload must pass through untouched")
	}
}
