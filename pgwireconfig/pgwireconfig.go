// Package pgwireconfig loads pgwire.Config values from YAML files, with
// ${VAR} environment substitution and an optional fsnotify-driven
// hot-reload watcher.
package pgwireconfig

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pgwire/pgwire"
)

// File is the on-disk shape of a pgwire connection config. TLSMode is a
// string here ("disable", "prefer", "require") rather than pgwire's
// integer enum, since that's what's legible in YAML.
type File struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLSMode  string `yaml:"tls_mode"`
	Debug    bool   `yaml:"debug"`
}

func (f File) toConfig() (pgwire.Config, error) {
	mode, err := parseTLSMode(f.TLSMode)
	if err != nil {
		return pgwire.Config{}, err
	}
	return pgwire.Config{
		Host:     f.Host,
		Port:     f.Port,
		Database: f.Database,
		User:     f.User,
		Password: f.Password,
		TLSMode:  mode,
		Debug:    f.Debug,
	}, nil
}

func parseTLSMode(s string) (pgwire.TLSMode, error) {
	switch s {
	case "", "prefer":
		return pgwire.TLSPrefer, nil
	case "disable":
		return pgwire.TLSDisable, nil
	case "require":
		return pgwire.TLSRequire, nil
	default:
		return 0, fmt.Errorf("pgwireconfig: unknown tls_mode %q", s)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads path, substitutes ${VAR} references from the environment,
// and returns the resulting pgwire.Config.
func Load(path string) (pgwire.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pgwire.Config{}, fmt.Errorf("pgwireconfig: reading %s: %w", path, err)
	}
	data = substituteEnvVars(data)

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return pgwire.Config{}, fmt.Errorf("pgwireconfig: parsing %s: %w", path, err)
	}
	return f.toConfig()
}

// Watcher reloads a config file on write and hands the new Config to a
// callback, debounced so a burst of filesystem events from one editor
// save produces one reload.
type Watcher struct {
	path     string
	callback func(pgwire.Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher starts watching path for writes. callback runs on every
// successful reload; a failed reload is logged and the previous Config
// is left in place.
func NewWatcher(path string, logger *slog.Logger, callback func(pgwire.Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pgwireconfig: creating watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("pgwireconfig: watching %s: %w", path, err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		logger:   logger,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("pgwireconfig: watcher error", "error", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		cw.logger.Warn("pgwireconfig: hot-reload failed", "error", err)
		return
	}
	cw.logger.Info("pgwireconfig: reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the watcher and releases its file descriptor.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
