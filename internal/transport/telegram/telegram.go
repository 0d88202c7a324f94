package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"ailurus/internal/transport"
	logx "ailurus/pkg/logx"
)

// Config configures one Telegram destination chat.
type Config struct {
	Token  string
	ChatID int64

	// PollTimeout is only used by telebot's client setup; this channel
	// never long-polls for updates.
	PollTimeout time.Duration
}

// Channel delivers composed notifications to a single Telegram chat.
type Channel struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{cfg: cfg, log: log, bot: b}, nil
}

func (c *Channel) Name() string {
	return fmt.Sprintf("telegram:%d", c.cfg.ChatID)
}

func (c *Channel) chat() *tele.Chat { return &tele.Chat{ID: c.cfg.ChatID} }

func (c *Channel) SendText(ctx context.Context, text string) error {
	chunks := splitText(text, textLimit)
	for _, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		_, err := c.bot.Send(c.chat(), chunk, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) SendPhoto(ctx context.Context, photo transport.Photo, caption string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	p := &tele.Photo{File: fileFor(photo), Caption: truncateCaption(caption)}
	_, err := c.bot.Send(c.chat(), p, &tele.SendOptions{ParseMode: tele.ModeHTML})
	return err
}

func (c *Channel) SendAlbum(ctx context.Context, photos []transport.Photo, caption string) error {
	if len(photos) == 0 {
		return errors.New("empty album")
	}
	if len(photos) > transport.MaxAlbumSize {
		photos = photos[:transport.MaxAlbumSize]
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	album := make(tele.Album, 0, len(photos))
	for i, ph := range photos {
		p := &tele.Photo{File: fileFor(ph)}
		// Telegram renders a media group caption from the first item only.
		if i == 0 {
			p.Caption = truncateCaption(caption)
		}
		album = append(album, p)
	}
	_, err := c.bot.SendAlbum(c.chat(), album, &tele.SendOptions{ParseMode: tele.ModeHTML})
	return err
}

func fileFor(p transport.Photo) tele.File {
	if p.ByURL() {
		return tele.FromURL(p.URL)
	}
	name := p.Name
	if name == "" {
		name = "photo.jpg"
	}
	f := tele.FromReader(bytes.NewReader(p.Data))
	f.FileName = name
	return f
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

const (
	textLimit = 4000
	// captionLimit is Telegram's media caption cap (1024), minus headroom
	// for the ellipsis.
	captionLimit = 1000
)

func truncateCaption(s string) string {
	rs := []rune(s)
	if len(rs) <= captionLimit {
		return s
	}
	return string(rs[:captionLimit]) + "..."
}

// splitText splits long messages into chunks that are safe to send to
// Telegram, preferring newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
