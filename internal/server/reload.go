package server

import (
	"time"

	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/logger"
)

// reloadDebounce coalesces the bursts of write events editors produce.
const reloadDebounce = 250 * time.Millisecond

func (s *Server) watchConfig() {
	config.Watch(func(cfg *config.Config) {
		s.postFunc(func() { s.scheduleReload(cfg) })
	}, func(err error) {
		logger.Warnf("Ignoring config change: %v", err)
	})
}

// scheduleReload restarts the debounce timer. It runs on the loop.
func (s *Server) scheduleReload(cfg *config.Config) {
	if s.reloadTimer != nil {
		s.reloadTimer.Stop()
	}
	s.reloadTimer = s.loop.AfterFunc(reloadDebounce, func() {
		s.reloadTimer = nil
		s.applyConfig(cfg)
	})
}

// applyConfig re-applies the settings that can change at runtime: log
// level, key repeat, keymap and pointer acceleration. Socket and output
// settings need a restart.
func (s *Server) applyConfig(cfg *config.Config) {
	if cfg.Logging.LogLevel != "" && !logger.SetLevel(cfg.Logging.LogLevel) {
		logger.Warnf("Unknown log level %q", cfg.Logging.LogLevel)
	}

	rc, err := routerConfig(cfg)
	if err != nil {
		logger.Warnf("Keeping input settings: %v", err)
		return
	}
	if cfg.Keyboard.Layout == s.keyboard.Layout && cfg.Keyboard.KeymapFile == s.keyboard.KeymapFile {
		rc.Keymap = nil
	}
	s.keyboard = cfg.Keyboard

	s.comp.Configure(input.RouterConfig{
		RepeatRate:  rc.RepeatRate,
		RepeatDelay: rc.RepeatDelay,
		Accel:       rc.Accel,
		Keymap:      rc.Keymap,
	})
	logger.Info("Configuration reloaded",
		"repeat_rate", cfg.Keyboard.RepeatRate,
		"repeat_delay", cfg.Keyboard.RepeatDelay,
		"accel", rc.Accel.Profile(),
		"layout", cfg.Keyboard.Layout)
}
