package notify

import (
	"fmt"
	"strings"
	"time"

	"ailurus/internal/feed"
)

// Kind tags which tracked source produced an update; it selects the
// notification template.
type Kind string

const (
	KindDynamic Kind = "dynamic"
	KindWeibo   Kind = "weibo"
)

const civilTimeLayout = "2006-01-02 15:04:05"

// The audience reads timestamps in China Standard Time.
var cst = time.FixedZone("CST", 8*60*60)

// Angle brackets would be parsed as markup by the channel; swap them for
// visually similar full-width brackets. This is not an HTML sanitizer.
var markupEscaper = strings.NewReplacer("<", "＜", ">", "＞")

func escapeMarkup(s string) string { return markupEscaper.Replace(s) }

// ComposeUpdate renders one canonical update into a channel-agnostic
// message. Pure function, no I/O.
func ComposeUpdate(kind Kind, u feed.Update) feed.Message {
	desc := u.Description
	if desc == "" {
		// Kept as a visible placeholder; existing consumers expect it.
		desc = "None"
	}

	verb := "有新动态"
	if kind == KindWeibo {
		verb = "有新微博"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> %s！\n\n", escapeMarkup(u.Author), verb)
	fmt.Fprintf(&b, "%s\n\n", escapeMarkup(desc))
	fmt.Fprintf(&b, "时间：%s\n", time.Unix(u.Timestamp, 0).In(cst).Format(civilTimeLayout))
	b.WriteString(u.Permalink)

	return feed.Message{
		Text:   b.String(),
		Photos: append([]string(nil), u.Pictures...),
	}
}

// ComposeLive renders a went-live transition. The cover image travels as
// the message's single photo.
func ComposeLive(sig feed.LiveSignal) feed.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> 开播了！\n\n", escapeMarkup(sig.Streamer))
	fmt.Fprintf(&b, "%s\n\n", escapeMarkup(sig.Title))
	if sig.StartTime != "" {
		fmt.Fprintf(&b, "开播时间：%s\n", escapeMarkup(sig.StartTime))
	}
	fmt.Fprintf(&b, "https://live.bilibili.com/%d", sig.RoomID)

	return feed.Message{
		Text:  b.String(),
		Photo: sig.Cover,
	}
}
