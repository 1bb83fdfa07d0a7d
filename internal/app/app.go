package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/config"
	"github.com/five82/rebbit/internal/localstore"
	"github.com/five82/rebbit/internal/notify"
	"github.com/five82/rebbit/internal/prefs"
	"github.com/five82/rebbit/internal/remote"
	"github.com/five82/rebbit/internal/state"
	"github.com/five82/rebbit/internal/ui"
)

// Options configure the Rebbit application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/rebbit/prefs.toml
	Backend    string // overrides the configured backend when set
	Debug      bool
}

// Run boots the Rebbit TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Backend != "" {
		backend, err := config.ParseBackend(opts.Backend)
		if err != nil {
			return err
		}
		cfg.Backend = backend
	}

	logger, closeLog, err := OpenLogger(cfg.LogPath(), opts.Debug)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closeLog()

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	store, err := NewStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("init %s store: %w", cfg.Backend, err)
	}
	logger.Info("starting", slog.String("backend", string(cfg.Backend)), slog.String("data_dir", cfg.DataDir))

	center := notify.NewCenter(0, logger)
	manager := state.Open(ctx, store, state.WithNotifier(center), state.WithLogger(logger))

	return ui.Run(ui.Options{
		Context:     ctx,
		Manager:     manager,
		Toasts:      center,
		SearchDelay: cfg.SearchDelay,
		ThemeName:   userPrefs.Theme,
		Sort:        userPrefs.Sort,
		PrefsPath:   opts.PrefsPath,
	})
}

// NewStore builds the backing store selected by cfg.
func NewStore(cfg config.Config, logger *slog.Logger) (board.Store, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		client, err := remote.NewClient(cfg.APIURL, cfg.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BackendLocal, "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		slots := localstore.FileSlots{Dir: cfg.DataDir}
		return localstore.New(slots,
			localstore.WithAssetDir(cfg.AssetDir()),
			localstore.WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// OpenLogger returns a text logger writing to path. The terminal belongs to
// the UI, so nothing is logged to stderr.
func OpenLogger(path string, debug bool) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := newLogger(file, level)
	return logger, func() { _ = file.Close() }, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
