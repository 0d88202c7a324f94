// Package app assembles the daemon: configuration, storage, source
// clients, delivery channels and the watch service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ailurus/internal/config"
	"ailurus/internal/feed"
	"ailurus/internal/notify"
	"ailurus/internal/source/bilibili"
	"ailurus/internal/source/weibo"
	"ailurus/internal/storage"
	"ailurus/internal/transport/telegram"
	"ailurus/internal/watch"
	logx "ailurus/pkg/logx"
)

// App owns the wired components for one daemon process.
type App struct {
	log      logx.Logger
	logClose func() error

	mgr      *config.Manager
	store    storage.Store
	pipe     *notify.Pipeline
	svc      *watch.Service
	channels []notify.ChannelRate

	weibo *weibo.Client
	wbCfg *config.WeiboConfig
}

// New loads the config at path and wires every component. Channels are
// constructed eagerly so a bad token fails at startup, not at the first
// notification.
func New(path string) (*App, error) {
	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	log, logClose := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{log: log, logClose: logClose, mgr: mgr}
	if err := a.wire(cfg); err != nil {
		_ = logClose()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(cfg *config.Config) error {
	reqTimeout, err := cfg.Watch.RequestTimeoutDuration()
	if err != nil {
		return err
	}

	store, err := storage.Open(storageConfig(cfg.Storage), a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	channels, err := buildChannels(cfg.Channels, a.log)
	if err != nil {
		store.Close()
		return err
	}
	a.channels = channels
	a.pipe = notify.NewPipeline(channels, reqTimeout, a.log.With(logx.String("comp", "notify")))

	watchers, err := a.buildWatchers(cfg, reqTimeout)
	if err != nil {
		store.Close()
		return err
	}

	sched, err := scheduleFor(cfg.Watch)
	if err != nil {
		store.Close()
		return err
	}
	a.svc = watch.NewService(watchers, sched, a.log.With(logx.String("comp", "watch")))
	return nil
}

func (a *App) buildWatchers(cfg *config.Config, reqTimeout time.Duration) ([]watch.Watcher, error) {
	var watchers []watch.Watcher

	if b := cfg.Bilibili; b != nil && (b.DynamicUID != 0 || b.LiveRoomID != 0) {
		client := bilibili.NewClient(
			&http.Client{Timeout: reqTimeout},
			bilibili.NewShortIDCache(),
			a.log.With(logx.String("comp", "bilibili")),
		)
		if uid := b.DynamicUID; uid != 0 {
			watchers = append(watchers, watch.NewFeedWatcher(
				notify.KindDynamic,
				strconv.FormatUint(uid, 10),
				func(ctx context.Context) ([]feed.Update, error) { return client.DynamicFeed(ctx, uid) },
				a.store, a.pipe, a.log,
			))
		}
		if room := b.LiveRoomID; room != 0 {
			watchers = append(watchers, watch.NewLiveWatcher(
				room,
				func(ctx context.Context) (feed.LiveSignal, error) { return client.LiveStatus(ctx, room) },
				a.store, a.pipe, a.log,
			))
		}
	}

	if w := cfg.Weibo; w != nil && w.ProfileURL != "" {
		uid, err := weibo.UIDFromProfileURL(w.ProfileURL)
		if err != nil {
			return nil, err
		}
		client, err := weibo.NewClient(w.ProfileURL, reqTimeout, a.log.With(logx.String("comp", "weibo")))
		if err != nil {
			return nil, err
		}
		a.weibo, a.wbCfg = client, w
		watchers = append(watchers, watch.NewFeedWatcher(
			notify.KindWeibo, uid, client.Feed, a.store, a.pipe, a.log,
		))
	}

	if len(watchers) == 0 {
		return nil, errors.New("no sources configured")
	}
	return watchers, nil
}

// Run blocks until ctx is done, then releases everything.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if a.weibo != nil && a.wbCfg.Account != "" {
		// A failed login is not fatal: the session may still carry valid
		// cookies, and the watcher surfaces per-round errors anyway.
		if err := a.weibo.Login(ctx, a.wbCfg.Account, a.wbCfg.Password); err != nil {
			a.log.Error("weibo login failed", logx.Err(err))
		}
	}

	go func() {
		if err := a.mgr.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("config watcher stopped", logx.Err(err))
		}
	}()
	go a.applyReloads(ctx)
	go notifyWatchdog(ctx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready")
	}

	a.log.Info("watching")
	a.svc.Run(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

// applyReloads picks up config edits that are safe to apply in-process:
// polling schedule and channel rate budgets. Source, storage and channel
// set changes need a restart and are left alone.
func (a *App) applyReloads(ctx context.Context) {
	sub := a.mgr.Subscribe(1)
	defer a.mgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-sub:
			sched, err := scheduleFor(cfg.Watch)
			if err != nil {
				a.log.Error("reload: bad schedule", logx.Err(err))
				continue
			}
			a.svc.Apply(sched)

			if rebound, ok := rebindRates(a.channels, cfg.Channels); ok {
				a.channels = rebound
				a.pipe.SetChannels(rebound)
			} else {
				a.log.Warn("reload: channel set changed, restart to apply")
			}
			a.log.Info("config applied")
		}
	}
}

// rebindRates carries edited rate budgets onto the already-built channel
// objects, avoiding a re-handshake with the messaging backend. Any change
// to the channel set itself (count, kind or chat) is not reloadable.
func rebindRates(current []notify.ChannelRate, cfgs []config.ChannelConfig) ([]notify.ChannelRate, bool) {
	if len(cfgs) != len(current) {
		return nil, false
	}
	out := make([]notify.ChannelRate, len(current))
	for i, cc := range cfgs {
		if cc.Kind != "telegram" {
			return nil, false
		}
		if current[i].Channel.Name() != fmt.Sprintf("telegram:%d", cc.ChatID) {
			return nil, false
		}
		out[i] = notify.ChannelRate{Channel: current[i].Channel, RatePerSec: cc.RatePerSec}
	}
	return out, true
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("store close failed", logx.Err(err))
		}
	}
	if a.logClose != nil {
		_ = a.logClose()
	}
}

// notifyWatchdog pings the systemd watchdog at half its interval. A
// no-op outside systemd units with WatchdogSec set.
func notifyWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

func buildChannels(cfgs []config.ChannelConfig, log logx.Logger) ([]notify.ChannelRate, error) {
	out := make([]notify.ChannelRate, 0, len(cfgs))
	for i, cc := range cfgs {
		switch cc.Kind {
		case "telegram":
			ch, err := telegram.New(telegram.Config{
				Token:  cc.Token,
				ChatID: cc.ChatID,
			}, log.With(logx.String("comp", "telegram")))
			if err != nil {
				return nil, fmt.Errorf("channels[%d]: %w", i, err)
			}
			out = append(out, notify.ChannelRate{Channel: ch, RatePerSec: cc.RatePerSec})
		default:
			return nil, fmt.Errorf("channels[%d]: unknown kind %q", i, cc.Kind)
		}
	}
	return out, nil
}

func storageConfig(sc config.StorageConfig) storage.Config {
	out := storage.Config{Driver: sc.Driver, Path: sc.Path}
	if sc.BusyTimeout != "" {
		if d, err := time.ParseDuration(sc.BusyTimeout); err == nil {
			out.BusyTimeout = d
		}
	}
	return out
}

func scheduleFor(wc config.WatchConfig) (watch.Schedule, error) {
	min, err := wc.MinIntervalDuration()
	if err != nil {
		return watch.Schedule{}, err
	}
	max, err := wc.MaxIntervalDuration()
	if err != nil {
		return watch.Schedule{}, err
	}
	return watch.ParseSchedule(min, max, wc.Cron)
}
