// Package config loads Rebbit's client settings.
//
// # Resolution
//
// Load applies, in order:
//
//  1. Built-in defaults
//  2. The TOML file at the given path, or ~/.config/rebbit/config.toml
//  3. A .env file next to the config file or in the working directory
//  4. REBBIT_BACKEND, REBBIT_API_URL and REBBIT_DATA_DIR from the environment
//
// A missing config file is not an error. Blank or zero fields keep their
// defaults. Invalid TOML or an unknown backend name fails the load.
//
// # Defaults
//
//   - backend: local
//   - api_url: http://localhost:8080/api
//   - data_dir: ~/.local/share/rebbit
//   - search_delay_ms: 300
//   - request_timeout_s: 5
//
// # TOML Format
//
//	backend = "remote"
//	api_url = "https://board.example/api"
//	data_dir = "~/.local/share/rebbit"
//	search_delay_ms = 300
//	request_timeout_s = 5
//
// Paths starting with ~ are expanded to the user's home directory. The data
// directory holds the post slot (rebbit-posts.json), uploaded images under
// uploads/, and the client log rebbit.log.
package config
