package app

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"swap_go/internal/infra"
	"swap_go/internal/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.EventJournal

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, journal).
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping SwapGo...")

	// 1. Load Config (Dynamic Path Resolution). A missing file is not an
	// error: the simulator runs fine on defaults.
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = infra.DefaultConfig()
		slog.Info("No config file found, using defaults")
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Event journal (optional audit log)
	if cfg.Journal.Enabled {
		workDir := infra.GetWorkspaceDir()
		dataDir := filepath.Join(workDir, "data")
		if err := infra.EnsureDir(dataDir); err != nil {
			return err
		}

		// Single-writer SQLite: block a second process from sharing the
		// same journal file.
		unlock, err := infra.CreateLockFile(workDir)
		if err != nil {
			return err
		}
		b.unlock = unlock

		path := cfg.Journal.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}

		journal, err := storage.NewEventJournal(path)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("✅ Event journal initialized (WAL-mode)", "path", path)
	}

	return nil
}

// Close releases resources acquired during Initialize.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("Journal close failed", slog.Any("error", err))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
