// Package state owns the canonical post collection for Rebbit.
//
// # Overview
//
// Manager sits between the terminal UI and a board.Store. Every operation
// validates its input, calls the store, and only then changes the in-memory
// collection. Nothing is applied optimistically: on failure the collection
// stays in its last known-good state and the outcome is reported through a
// notify.Notifier, keyed to the announcement made when the request started
// ("Publishing...", "Saving...", "Deleting...").
//
// # Lifecycle
//
//	mgr := state.Open(ctx, store, state.WithNotifier(center))
//	cancel := mgr.Subscribe(func(s state.Snapshot) { ... })
//	defer cancel()
//
// Open runs Initialize exactly once. Ready reports whether the load has
// finished, so callers can tell "empty" apart from "not yet loaded". A failed
// load still marks the manager ready with whatever the store could recover.
//
// # Concurrency
//
// The collection is guarded by a sync.RWMutex that is never held across store
// I/O. Responses for the same post can arrive out of order when the store is
// remote, so update and vote take a per-post ticket before calling the store
// and a response is only applied when its ticket is newer than the one already
// shown. Responses for posts deleted in the meantime are dropped.
//
// Subscribers are called one publish at a time, outside the collection lock.
// Once a subscription's cancel function returns, its callback is never called
// again, which makes late responses a no-op for torn-down views.
package state
