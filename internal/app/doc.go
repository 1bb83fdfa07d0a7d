// Package app is the composition root for Rebbit.
//
// Run loads configuration and preferences, opens the log file, picks the
// backing store, and hands a state.Manager to the terminal UI:
//
//	config.Load ──► NewStore ──► state.Open ──► ui.Run
//	                 │
//	                 ├─ local:  localstore over FileSlots in data_dir
//	                 └─ remote: remote.Client against api_url
//
// Logging goes to <data_dir>/rebbit.log because the UI owns the terminal.
// The manager, the notification center and the stores all share that logger.
package app
