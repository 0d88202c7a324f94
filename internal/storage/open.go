package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "ailurus/pkg/logx"
)

// ErrNotFound is returned when a cursor key has never been written.
var ErrNotFound = errors.New("cursor key not found")

// Config configures the cursor store.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + journal)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the cursor persistence API used by the update detector.
//
// Values are primitive scalars. Get* return ErrNotFound for keys that
// were never written.
type Store interface {
	GetUint64(ctx context.Context, key string) (uint64, error)
	PutUint64(ctx context.Context, key string, v uint64) error
	GetBool(ctx context.Context, key string) (bool, error)
	PutBool(ctx context.Context, key string, v bool) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
