package weibo

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUIDFromProfileURL(t *testing.T) {
	t.Parallel()
	uid, err := UIDFromProfileURL("https://m.weibo.cn/profile/info?uid=6279793937&luicode=10000011")
	if err != nil {
		t.Fatalf("UIDFromProfileURL: %v", err)
	}
	if uid != "6279793937" {
		t.Fatalf("uid = %q", uid)
	}

	if _, err := UIDFromProfileURL("https://m.weibo.cn/profile/info"); err == nil {
		t.Fatal("expected error for url without uid")
	}
}

func TestNormalizeMblog(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 8, 31, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))
	m := &mblog{
		ID:        json.Number("4912345678901234"),
		CreatedAt: created.Format(time.RubyDate),
		Text:      `发了新图 <a href="/t/x">#话题#</a><br/>第二行`,
		Pics: []struct {
			URL string `json:"url"`
		}{{URL: "https://wx1/a.jpg"}, {URL: ""}},
	}

	u, err := normalizeMblog(m, 6279793937)
	if err != nil {
		t.Fatalf("normalizeMblog: %v", err)
	}
	if u.ID != 4912345678901234 {
		t.Fatalf("id = %d", u.ID)
	}
	if u.Timestamp != created.Unix() {
		t.Fatalf("timestamp = %d, want %d", u.Timestamp, created.Unix())
	}
	if u.Author != "6279793937" || u.AuthorID != 6279793937 {
		t.Fatalf("author fallback wrong: %q / %d", u.Author, u.AuthorID)
	}
	if len(u.Pictures) != 1 || u.Pictures[0] != "https://wx1/a.jpg" {
		t.Fatalf("pictures = %v", u.Pictures)
	}
	if u.Permalink != "https://m.weibo.cn/detail/4912345678901234" {
		t.Fatalf("permalink = %q", u.Permalink)
	}
}

func TestNormalizeMblogRejectsBadFields(t *testing.T) {
	t.Parallel()
	if _, err := normalizeMblog(&mblog{ID: json.Number("not-a-number"), CreatedAt: "Mon Aug 31 12:00:00 +0800 2026"}, 1); err == nil {
		t.Fatal("expected error for unparsable id")
	}
	if _, err := normalizeMblog(&mblog{ID: json.Number("1"), CreatedAt: "yesterday"}, 1); err == nil {
		t.Fatal("expected error for unparsable created_at")
	}
}

func TestStripTags(t *testing.T) {
	t.Parallel()
	got := stripTags(`  <span class="x">文字</span> 和 <img src="a"/> 更多  `)
	if got != "文字 和  更多" {
		t.Fatalf("stripTags = %q", got)
	}
}

func TestContainerIDRegexp(t *testing.T) {
	t.Parallel()
	cookie := "1076036279793937-_-WEIBO%3Ffid%3D1076036279793937%26uicode%3D10000011"
	m := containerIDRe.FindStringSubmatch(cookie)
	if m == nil || m[1] != "1076036279793937" {
		t.Fatalf("containerIDRe match = %v", m)
	}
}
