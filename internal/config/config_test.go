package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validJSON = `{
  "storage": { "driver": "file", "path": "./store" },
  "bilibili": { "dynamic_uid": 2, "live_room_id": 21669 },
  "channels": [ { "kind": "telegram", "token": "t", "chat_id": -100 } ]
}`

func TestLoadValidJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bilibili == nil || cfg.Bilibili.DynamicUID != 2 {
		t.Fatalf("bilibili = %+v", cfg.Bilibili)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	const yml = `
storage:
  driver: file
  path: ./store
weibo:
  account: a
  password: p
  profile_url: https://m.weibo.cn/profile/info?uid=7
channels:
  - kind: telegram
    token: t
    chat_id: -100
watch:
  min_interval: 30s
  max_interval: 90s
`
	m := NewManager(writeConfig(t, "config.yaml", yml))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Weibo == nil || cfg.Weibo.ProfileURL == "" {
		t.Fatalf("weibo = %+v", cfg.Weibo)
	}
	min, err := cfg.Watch.MinIntervalDuration()
	if err != nil || min != 30*time.Second {
		t.Fatalf("min_interval = %v, %v", min, err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"storage":{}, "bogus": 1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"storage":{}} {"again":true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing data to be rejected")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no sources", cfg: Config{
			Channels: []ChannelConfig{{Kind: "telegram", Token: "t", ChatID: 1}},
		}},
		{name: "no channels", cfg: Config{
			Bilibili: &BilibiliConfig{DynamicUID: 1},
		}},
		{name: "missing token", cfg: Config{
			Bilibili: &BilibiliConfig{DynamicUID: 1},
			Channels: []ChannelConfig{{Kind: "telegram", ChatID: 1}},
		}},
		{name: "unknown channel kind", cfg: Config{
			Bilibili: &BilibiliConfig{DynamicUID: 1},
			Channels: []ChannelConfig{{Kind: "discord", Token: "t", ChatID: 1}},
		}},
		{name: "inverted intervals", cfg: Config{
			Bilibili: &BilibiliConfig{DynamicUID: 1},
			Channels: []ChannelConfig{{Kind: "telegram", Token: "t", ChatID: 1}},
			Watch:    WatchConfig{MinInterval: "5m", MaxInterval: "1m"},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWatchConfigDefaults(t *testing.T) {
	t.Parallel()
	var w WatchConfig
	min, err := w.MinIntervalDuration()
	if err != nil || min != time.Minute {
		t.Fatalf("default min = %v, %v", min, err)
	}
	max, err := w.MaxIntervalDuration()
	if err != nil || max != 3*time.Minute {
		t.Fatalf("default max = %v, %v", max, err)
	}
	rt, err := w.RequestTimeoutDuration()
	if err != nil || rt != 30*time.Second {
		t.Fatalf("default request timeout = %v, %v", rt, err)
	}
}

func TestSubscribeDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-sub:
		if got != second {
			t.Fatal("expected the newest config after overflow")
		}
	default:
		t.Fatal("expected a pending config")
	}
}
