package notify

import (
	"strings"
	"testing"

	"ailurus/internal/feed"
)

func TestComposeUpdateTemplates(t *testing.T) {
	t.Parallel()
	u := feed.Update{
		ID:          1,
		Timestamp:   1700000000,
		Author:      "某人",
		Description: "hello",
		Pictures:    []string{"https://example.com/a.jpg"},
		Permalink:   "https://t.bilibili.com/1",
	}

	msg := ComposeUpdate(KindDynamic, u)
	if !strings.Contains(msg.Text, "<b>某人</b> 有新动态！") {
		t.Fatalf("dynamic header missing: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "hello") || !strings.HasSuffix(msg.Text, u.Permalink) {
		t.Fatalf("body malformed: %q", msg.Text)
	}
	if len(msg.Photos) != 1 {
		t.Fatalf("photos = %d, want 1", len(msg.Photos))
	}

	msg = ComposeUpdate(KindWeibo, u)
	if !strings.Contains(msg.Text, "有新微博！") {
		t.Fatalf("weibo verb missing: %q", msg.Text)
	}
}

func TestComposeUpdateEmptyDescription(t *testing.T) {
	t.Parallel()
	msg := ComposeUpdate(KindDynamic, feed.Update{Author: "a", Timestamp: 1})
	if !strings.Contains(msg.Text, "None") {
		t.Fatalf("empty description placeholder missing: %q", msg.Text)
	}
}

func TestComposeUpdateEscapesAngleBrackets(t *testing.T) {
	t.Parallel()
	msg := ComposeUpdate(KindDynamic, feed.Update{
		Author:      "<script>",
		Description: "a <b> c",
		Timestamp:   1,
	})
	if strings.Contains(msg.Text, "<script>") || strings.Contains(msg.Text, "a <b> c") {
		t.Fatalf("markup not escaped: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "＜script＞") {
		t.Fatalf("expected full-width brackets: %q", msg.Text)
	}
}

func TestComposeLive(t *testing.T) {
	t.Parallel()
	msg := ComposeLive(feed.LiveSignal{
		RoomID:    21669,
		Live:      true,
		Title:     "晚间杂谈",
		StartTime: "2026-09-01 20:00:00",
		Cover:     "https://example.com/cover.jpg",
		Streamer:  "主播",
	})
	if !strings.Contains(msg.Text, "<b>主播</b> 开播了！") {
		t.Fatalf("live header missing: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "开播时间：2026-09-01 20:00:00") {
		t.Fatalf("start time missing: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "https://live.bilibili.com/21669") {
		t.Fatalf("room link missing: %q", msg.Text)
	}
	if msg.Photo != "https://example.com/cover.jpg" {
		t.Fatalf("cover = %q", msg.Photo)
	}
}

func TestComposeLiveOmitsEmptyStartTime(t *testing.T) {
	t.Parallel()
	msg := ComposeLive(feed.LiveSignal{RoomID: 1, Streamer: "s", Title: "t"})
	if strings.Contains(msg.Text, "开播时间") {
		t.Fatalf("unexpected start time line: %q", msg.Text)
	}
}
