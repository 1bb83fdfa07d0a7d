// Package ui provides the Bubble Tea terminal front end for Rebbit.
//
// # Views
//
//   - Feed: the post list after search and sort (feed.Project). The sort
//     order is cycled with s and saved to preferences.
//   - Post: one post with its comments, in a scrollable viewport.
//   - Compose: the form for new posts, edits and comments. It stays open with
//     the offending field highlighted when the manager rejects the input.
//
// # Data Flow
//
// The model never mutates posts itself. Key presses turn into commands that
// call state.Manager operations on a goroutine; the manager publishes a new
// snapshot to its subscribers, and the bridge forwards that as a message:
//
//	key press ──► tea.Cmd ──► state.Manager ──► Subscribe callback
//	                                               │
//	Update(changedMsg) ◄── bridge.events ◄─────────┘
//
// A periodic tick re-reads the snapshot and the latest notification from the
// notify.Center, so a coalesced or dropped change signal is never lost.
//
// Search input is debounced; each pause in typing schedules one store search
// and results for an older query are ignored. Quitting closes the bridge,
// which cancels the subscription and any pending search.
package ui
