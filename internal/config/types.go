package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the whole daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Watch controls polling rounds.
	Watch WatchConfig `json:"watch"`

	// Sources. At least one must be configured.
	Bilibili *BilibiliConfig `json:"bilibili,omitempty"`
	Weibo    *WeiboConfig    `json:"weibo,omitempty"`

	// Channels are the messaging destinations notifications fan out to.
	Channels []ChannelConfig `json:"channels"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"` // default true
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// StorageConfig controls the cursor store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./ailurus_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// WatchConfig controls polling rounds.
//
// Rounds sleep a random duration in [min_interval, max_interval] to avoid
// synchronized load on the upstream APIs. If Cron is set, rounds are pinned
// to the cron spec instead and the interval fields are ignored.
//
// Defaults: min_interval "1m", max_interval "3m", request_timeout "30s".
type WatchConfig struct {
	MinInterval    string `json:"min_interval,omitempty"`
	MaxInterval    string `json:"max_interval,omitempty"`
	Cron           string `json:"cron,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type BilibiliConfig struct {
	// DynamicUID is the space uid whose dynamic feed is tracked.
	DynamicUID uint64 `json:"dynamic_uid,omitempty"`
	// LiveRoomID is the live room to track (short ids are resolved).
	LiveRoomID uint64 `json:"live_room_id,omitempty"`
}

type WeiboConfig struct {
	Account    string `json:"account"`
	Password   string `json:"password"`
	ProfileURL string `json:"profile_url"`
}

// ChannelConfig configures one messaging destination.
type ChannelConfig struct {
	Kind       string `json:"kind"` // "telegram"
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 1
}

// Validate checks cross-field constraints. It is also used by the reload
// watcher to reject bad edits before publishing.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	hasBili := c.Bilibili != nil && (c.Bilibili.DynamicUID != 0 || c.Bilibili.LiveRoomID != 0)
	hasWeibo := c.Weibo != nil && c.Weibo.ProfileURL != ""
	if !hasBili && !hasWeibo {
		return errors.New("no sources configured: set bilibili.dynamic_uid, bilibili.live_room_id or weibo.profile_url")
	}
	if len(c.Channels) == 0 {
		return errors.New("no channels configured")
	}
	for i, ch := range c.Channels {
		switch ch.Kind {
		case "telegram":
			if ch.Token == "" {
				return fmt.Errorf("channels[%d]: telegram token is required", i)
			}
			if ch.ChatID == 0 {
				return fmt.Errorf("channels[%d]: telegram chat_id is required", i)
			}
		default:
			return fmt.Errorf("channels[%d]: unknown kind %q", i, ch.Kind)
		}
	}
	min, err := c.Watch.MinIntervalDuration()
	if err != nil {
		return err
	}
	max, err := c.Watch.MaxIntervalDuration()
	if err != nil {
		return err
	}
	if max < min {
		return fmt.Errorf("watch: max_interval %s < min_interval %s", max, min)
	}
	if _, err := c.Watch.RequestTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

func (w WatchConfig) MinIntervalDuration() (time.Duration, error) {
	return ParseDurationOrDefault("watch.min_interval", w.MinInterval, time.Minute)
}

func (w WatchConfig) MaxIntervalDuration() (time.Duration, error) {
	return ParseDurationOrDefault("watch.max_interval", w.MaxInterval, 3*time.Minute)
}

func (w WatchConfig) RequestTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("watch.request_timeout", w.RequestTimeout, 30*time.Second)
}
