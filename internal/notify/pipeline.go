package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ailurus/internal/feed"
	"ailurus/internal/transport"
	logx "ailurus/pkg/logx"
)

// Tier labels how far delivery degraded for one channel.
type Tier int

const (
	TierNone  Tier = iota // no photo involved; plain text send
	TierURL               // photos delivered by remote URL reference
	TierBytes             // photos fetched, re-encoded and sent in-line
	TierText              // all photo tiers rejected; caption text alone
)

func (t Tier) String() string {
	switch t {
	case TierURL:
		return "url"
	case TierBytes:
		return "bytes"
	case TierText:
		return "text"
	default:
		return "none"
	}
}

// Outcome is one channel's delivery result. Err is nil when any tier
// succeeded; Tier records which one.
type Outcome struct {
	Channel string
	Tier    Tier
	Err     error
}

// Captions on large media groups are only guaranteed visible on the first
// item by some channels; past this size the text also goes out separately.
const captionVisibleLimit = 4

// ChannelRate pairs a channel with its delivery rate budget.
type ChannelRate struct {
	Channel    transport.Channel
	RatePerSec int
}

type boundChannel struct {
	ch  transport.Channel
	lim *rate.Limiter
}

// Pipeline fans composed messages out to every configured channel with
// tiered fallback. Channels are isolated: one failing channel never
// prevents delivery on its siblings.
type Pipeline struct {
	log   logx.Logger
	fetch *photoFetcher
	mu    sync.RWMutex
	bound []boundChannel
}

func NewPipeline(channels []ChannelRate, timeout time.Duration, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		log:   log,
		fetch: newPhotoFetcher(timeout),
	}
	p.SetChannels(channels)
	return p
}

// SetChannels swaps the channel set (used by config reload).
func (p *Pipeline) SetChannels(channels []ChannelRate) {
	bound := make([]boundChannel, 0, len(channels))
	for _, cr := range channels {
		rps := cr.RatePerSec
		if rps <= 0 {
			rps = 1
		}
		bound = append(bound, boundChannel{
			ch:  cr.Channel,
			lim: rate.NewLimiter(rate.Limit(rps), rps),
		})
	}
	p.mu.Lock()
	p.bound = bound
	p.mu.Unlock()
}

// Send delivers msg to every channel and reports per-channel outcomes.
// It returns after all channels finished, so successive Send calls keep
// chronological order per channel; channels run unordered relative to
// each other.
func (p *Pipeline) Send(ctx context.Context, msg feed.Message) []Outcome {
	p.mu.RLock()
	bound := p.bound
	p.mu.RUnlock()

	outcomes := make([]Outcome, len(bound))
	var wg sync.WaitGroup
	for i, bc := range bound {
		wg.Add(1)
		go func(i int, bc boundChannel) {
			defer wg.Done()
			outcomes[i] = p.deliver(ctx, bc, msg)
		}(i, bc)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			p.log.Error("delivery failed on all tiers",
				logx.String("channel", o.Channel), logx.Err(o.Err))
		} else if o.Tier > TierURL {
			p.log.Info("delivery degraded",
				logx.String("channel", o.Channel), logx.String("tier", o.Tier.String()))
		}
	}
	return outcomes
}

// deliver walks the tier progression for one channel:
// URL reference, then in-line bytes, then text-only.
func (p *Pipeline) deliver(ctx context.Context, bc boundChannel, msg feed.Message) Outcome {
	out := Outcome{Channel: bc.ch.Name()}

	if !msg.HasPhotos() {
		out.Tier = TierNone
		out.Err = p.sendText(ctx, bc, msg.Text)
		return out
	}
	urls := photoURLs(msg)

	// Tier 1: remote URL references with the text as caption.
	err := p.sendPhotos(ctx, bc, urlPhotos(urls), msg)
	if err == nil {
		out.Tier = TierURL
		return out
	}
	p.log.Warn("url photo delivery rejected, retrying with bytes",
		logx.String("channel", bc.ch.Name()), logx.Err(err))

	// Tier 2: fetch the bytes ourselves and re-send in-line.
	photos, ferr := p.fetch.fetchAll(ctx, urls)
	if ferr == nil {
		err = p.sendPhotos(ctx, bc, photos, msg)
		if err == nil {
			out.Tier = TierBytes
			return out
		}
	} else {
		err = ferr
	}
	p.log.Warn("byte photo delivery rejected, falling back to text",
		logx.String("channel", bc.ch.Name()), logx.Err(err))

	// Tier 3: never drop the notification silently.
	out.Tier = TierText
	out.Err = p.sendText(ctx, bc, msg.Text)
	return out
}

func (p *Pipeline) sendPhotos(ctx context.Context, bc boundChannel, photos []transport.Photo, msg feed.Message) error {
	if err := bc.lim.Wait(ctx); err != nil {
		return err
	}

	var err error
	if len(photos) == 1 {
		err = bc.ch.SendPhoto(ctx, photos[0], msg.Text)
	} else {
		err = bc.ch.SendAlbum(ctx, photos, msg.Text)
	}
	if err != nil {
		return err
	}

	if len(photos) > captionVisibleLimit {
		if terr := p.sendText(ctx, bc, msg.Text); terr != nil {
			// The photos made it; a lost duplicate text is not a failure.
			p.log.Warn("companion text send failed",
				logx.String("channel", bc.ch.Name()), logx.Err(terr))
		}
	}
	return nil
}

func (p *Pipeline) sendText(ctx context.Context, bc boundChannel, text string) error {
	if err := bc.lim.Wait(ctx); err != nil {
		return err
	}
	return bc.ch.SendText(ctx, text)
}

func photoURLs(msg feed.Message) []string {
	if len(msg.Photos) > 0 {
		return msg.Photos
	}
	if msg.Photo != "" {
		return []string{msg.Photo}
	}
	return nil
}

func urlPhotos(urls []string) []transport.Photo {
	out := make([]transport.Photo, 0, len(urls))
	for _, u := range urls {
		out = append(out, transport.Photo{URL: u})
	}
	return out
}
