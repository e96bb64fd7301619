// config_reload.go implements debounced configuration hot reload.
// It detects material changes and republishes the config when it changes.
package watcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/util"
	"github.com/router-for-me/KiteMCP/internal/watcher/diff"
	"gopkg.in/yaml.v3"

	log "github.com/sirupsen/logrus"
)

func (w *Watcher) scheduleConfigReload() {
	w.configReloadMu.Lock()
	defer w.configReloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = time.AfterFunc(reloadDebounce, func() {
		w.configReloadMu.Lock()
		w.configReloadTimer = nil
		w.configReloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func (w *Watcher) reloadConfigIfChanged() {
	newHash, errHash := fileHash(w.configPath)
	if errHash != nil {
		log.Errorf("failed to read config file for hash check: %v", errHash)
		return
	}
	if newHash == "" {
		log.Debugf("ignoring empty config file write event")
		return
	}

	w.mu.RLock()
	currentHash := w.lastConfigHash
	w.mu.RUnlock()

	if currentHash != "" && currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.mu.Lock()
		w.lastConfigHash = newHash
		w.mu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.mu.Lock()
	var oldConfig *config.Config
	_ = yaml.Unmarshal(w.oldConfigYaml, &oldConfig)
	w.oldConfigYaml, _ = yaml.Marshal(newConfig)
	w.config = newConfig
	oldTokenPath := w.tokenPath
	w.tokenPath = newConfig.Kite.TokenFile
	w.mu.Unlock()

	util.SetLogLevel(newConfig)
	if oldConfig != nil && oldConfig.Debug != newConfig.Debug {
		log.Debugf("log level updated - debug mode changed from %t to %t", oldConfig.Debug, newConfig.Debug)
	}

	if oldConfig != nil {
		details := diff.BuildConfigChangeDetails(oldConfig, newConfig)
		if len(details) > 0 {
			log.Debugf("config changes detected:")
			for _, d := range details {
				log.Debugf("  %s", d)
			}
		} else {
			log.Debugf("no material config field changes detected")
		}
	}

	if oldTokenPath != newConfig.Kite.TokenFile {
		w.rebindTokenWatch(oldTokenPath, newConfig.Kite.TokenFile)
	}

	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	return true
}

// rebindTokenWatch moves the directory watch when the configured token path
// changes, then forces a token reload against the new location.
func (w *Watcher) rebindTokenWatch(oldPath, newPath string) {
	oldDir := filepath.Dir(oldPath)
	newDir := filepath.Dir(newPath)
	if normalizePath(oldDir) != normalizePath(newDir) {
		if errRemove := w.watcher.Remove(oldDir); errRemove != nil {
			log.Debugf("failed to unwatch old token directory %s: %v", oldDir, errRemove)
		}
		if errMkdir := os.MkdirAll(newDir, 0o700); errMkdir != nil {
			log.Errorf("failed to create token directory %s: %v", newDir, errMkdir)
		}
		if errAdd := w.watcher.Add(newDir); errAdd != nil {
			log.Errorf("failed to watch token directory %s: %v", newDir, errAdd)
		} else {
			log.Debugf("watching token directory: %s", newDir)
		}
	}
	log.Infof("token record path changed: %s -> %s", oldPath, newPath)
	w.scheduleTokenReload()
}
