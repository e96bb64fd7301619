// events.go implements fsnotify event handling for config and token record
// changes. It normalizes paths, debounces noisy events, and schedules reloads.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) start(ctx context.Context) error {
	if errAddConfig := w.watcher.Add(w.configPath); errAddConfig != nil {
		// Running on defaults plus environment variables is supported, so a
		// missing config file downgrades to token-only watching.
		log.Warnf("failed to watch config file %s: %v", w.configPath, errAddConfig)
	} else {
		log.Debugf("watching config file: %s", w.configPath)
	}

	// The token record is replaced atomically on every save, so the watch has
	// to sit on the directory rather than the file's inode.
	tokenDir := filepath.Dir(w.tokenPathSnapshot())
	if errMkdir := os.MkdirAll(tokenDir, 0o700); errMkdir != nil {
		log.Errorf("failed to create token directory %s: %v", tokenDir, errMkdir)
		return errMkdir
	}
	if errAddTokenDir := w.watcher.Add(tokenDir); errAddTokenDir != nil {
		log.Errorf("failed to watch token directory %s: %v", tokenDir, errAddTokenDir)
		return errAddTokenDir
	}
	log.Debugf("watching token directory: %s", tokenDir)

	w.primeHashes()
	go w.processEvents(ctx)
	return nil
}

// primeHashes records the current on-disk state so startup does not replay a
// reload for files this process just finished reading.
func (w *Watcher) primeHashes() {
	configHash, _ := fileHash(w.configPath)
	tokenHash, _ := fileHash(w.tokenPathSnapshot())
	w.mu.Lock()
	w.lastConfigHash = configHash
	w.lastTokenHash = tokenHash
	w.mu.Unlock()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	configOps := fsnotify.Write | fsnotify.Create | fsnotify.Rename
	tokenOps := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	normalizedName := normalizePath(event.Name)
	isConfigEvent := normalizedName == normalizePath(w.configPath) && event.Op&configOps != 0
	isTokenEvent := normalizedName == normalizePath(w.tokenPathSnapshot()) && event.Op&tokenOps != 0
	if !isConfigEvent && !isTokenEvent {
		// Ignore unrelated files in the token directory (e.g. the temp files
		// atomic saves go through) and other noise.
		return
	}

	log.Debugf("file system event detected: %s %s", event.Op.String(), event.Name)
	if isConfigEvent {
		w.scheduleConfigReload()
		return
	}
	w.scheduleTokenReload()
}

func fileHash(path string) (string, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return "", errRead
	}
	if len(data) == 0 {
		return "", nil
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if runtime.GOOS == "windows" {
		cleaned = strings.TrimPrefix(cleaned, `\\?\`)
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}
