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

// FetchFeed pulls one source's current page of updates, newest first.
type FetchFeed func(ctx context.Context) ([]feed.Update, error)

// FeedWatcher tracks one feed identity against its persisted cursor.
//
// Cursor keys: "<kind>-<identity>" holds the last seen timestamp,
// "<kind>-<identity>-updated-id" the last dispatched item id. The id key
// guards against re-dispatching the boundary item when a poll lands
// exactly on the stored timestamp.
//
// The read-compare-write sequence here is not transactional; the watch
// service runs exactly one Check per source at a time (rounds complete
// before the next starts), which is what makes that safe.
type FeedWatcher struct {
	kind     notify.Kind
	identity string
	fetch    FetchFeed
	store    storage.Store
	pipe     *notify.Pipeline
	log      logx.Logger
}

func NewFeedWatcher(kind notify.Kind, identity string, fetch FetchFeed, store storage.Store, pipe *notify.Pipeline, log logx.Logger) *FeedWatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FeedWatcher{
		kind:     kind,
		identity: identity,
		fetch:    fetch,
		store:    store,
		pipe:     pipe,
		log:      log.With(logx.String("kind", string(kind)), logx.String("identity", identity)),
	}
}

func (w *FeedWatcher) Name() string { return string(w.kind) + "-" + w.identity }

func (w *FeedWatcher) tsKey() string { return string(w.kind) + "-" + w.identity }
func (w *FeedWatcher) idKey() string { return w.tsKey() + "-updated-id" }

// Check polls the source once, emits notifications for everything newer
// than the cursor (oldest first), then advances the cursor. On any error
// the cursor is left untouched and the poll is retried next round.
func (w *FeedWatcher) Check(ctx context.Context) error {
	updates, err := w.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", w.Name(), err)
	}
	if len(updates) == 0 {
		return nil
	}
	newest := updates[0]

	lastTS, err := w.store.GetUint64(ctx, w.tsKey())
	if errors.Is(err, storage.ErrNotFound) {
		// First poll ever: seed from the newest item, notify nothing.
		if err := w.store.PutUint64(ctx, w.tsKey(), uint64(newest.Timestamp)); err != nil {
			return fmt.Errorf("seed cursor %s: %w", w.tsKey(), err)
		}
		if err := w.store.PutUint64(ctx, w.idKey(), newest.ID); err != nil {
			return fmt.Errorf("seed cursor %s: %w", w.idKey(), err)
		}
		w.log.Info("cursor seeded", logx.Int64("timestamp", newest.Timestamp), logx.Uint64("id", newest.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cursor %s: %w", w.tsKey(), err)
	}

	lastID, err := w.store.GetUint64(ctx, w.idKey())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("read cursor %s: %w", w.idKey(), err)
	}

	candidates := selectNew(updates, lastTS, lastID)
	if len(candidates) == 0 {
		return nil
	}

	for _, u := range candidates {
		w.log.Info("new update", logx.Uint64("id", u.ID), logx.String("author", u.Author))
		w.pipe.Send(ctx, notify.ComposeUpdate(w.kind, u))
	}

	// Advance after delivery was attempted. Delivery failures do not hold
	// the cursor back (accepted gap: a failed send is not retried).
	if err := w.store.PutUint64(ctx, w.tsKey(), uint64(newest.Timestamp)); err != nil {
		return fmt.Errorf("advance cursor %s: %w", w.tsKey(), err)
	}
	if err := w.store.PutUint64(ctx, w.idKey(), newest.ID); err != nil {
		return fmt.Errorf("advance cursor %s: %w", w.idKey(), err)
	}
	return nil
}

// selectNew picks items strictly newer than the stored timestamp, skipping
// the already-dispatched boundary item, and returns them in chronological
// (oldest first) order for downstream consumers.
func selectNew(updates []feed.Update, lastTS uint64, lastID uint64) []feed.Update {
	out := make([]feed.Update, 0, len(updates))
	// updates arrive newest first; walk backwards for a correct timeline.
	for i := len(updates) - 1; i >= 0; i-- {
		u := updates[i]
		if uint64(u.Timestamp) <= lastTS {
			continue
		}
		if lastID != 0 && u.ID == lastID {
			continue
		}
		out = append(out, u)
	}
	return out
}
