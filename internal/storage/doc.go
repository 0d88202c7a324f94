package storage

// Package storage persists per-source cursors.
//
// Cursors are scalar values under namespaced string keys, e.g.
// "dynamic-<uid>" (last seen timestamp), "dynamic-<uid>-updated-id"
// (last dispatched item id) and "live-<room>-status" (live boolean).
// Keys are created on first use and never migrated.
