package watch

import (
	"context"
	"errors"
	"fmt"

	"ailurus/internal/feed"
	"ailurus/internal/notify"
	"ailurus/internal/storage"
	logx "ailurus/pkg/logx"
)

// FetchLive pulls one room's current live state.
type FetchLive func(ctx context.Context) (feed.LiveSignal, error)

// LiveWatcher tracks a single live room boolean. Only the offline→online
// transition notifies; everything else just re-persists the state.
type LiveWatcher struct {
	roomID uint64
	fetch  FetchLive
	store  storage.Store
	pipe   *notify.Pipeline
	log    logx.Logger
}

func NewLiveWatcher(roomID uint64, fetch FetchLive, store storage.Store, pipe *notify.Pipeline, log logx.Logger) *LiveWatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LiveWatcher{
		roomID: roomID,
		fetch:  fetch,
		store:  store,
		pipe:   pipe,
		log:    log.With(logx.String("kind", "live"), logx.Uint64("room", roomID)),
	}
}

func (w *LiveWatcher) Name() string { return fmt.Sprintf("live-%d", w.roomID) }

// The key uses the configured (possibly short) id so it stays stable
// across short-id resolution.
func (w *LiveWatcher) statusKey() string { return fmt.Sprintf("live-%d-status", w.roomID) }

func (w *LiveWatcher) Check(ctx context.Context) error {
	sig, err := w.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", w.Name(), err)
	}

	prev, err := w.store.GetBool(ctx, w.statusKey())
	if errors.Is(err, storage.ErrNotFound) {
		// Unknown prior state: seed from the current boolean, no notification.
		if err := w.store.PutBool(ctx, w.statusKey(), sig.Live); err != nil {
			return fmt.Errorf("seed cursor %s: %w", w.statusKey(), err)
		}
		w.log.Info("live status seeded", logx.Bool("live", sig.Live))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cursor %s: %w", w.statusKey(), err)
	}

	if !prev && sig.Live {
		w.log.Info("went live", logx.String("title", sig.Title))
		w.pipe.Send(ctx, notify.ComposeLive(sig))
	}

	if err := w.store.PutBool(ctx, w.statusKey(), sig.Live); err != nil {
		return fmt.Errorf("persist cursor %s: %w", w.statusKey(), err)
	}
	return nil
}
