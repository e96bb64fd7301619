// token_reload.go reacts to token record changes on disk so credentials
// refreshed by another process (or a manual file drop) are picked up without
// restarting the server.
package watcher

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

func (w *Watcher) scheduleTokenReload() {
	w.tokenReloadMu.Lock()
	defer w.tokenReloadMu.Unlock()
	if w.tokenReloadTimer != nil {
		w.tokenReloadTimer.Stop()
	}
	w.tokenReloadTimer = time.AfterFunc(reloadDebounce, func() {
		w.tokenReloadMu.Lock()
		w.tokenReloadTimer = nil
		w.tokenReloadMu.Unlock()
		w.reloadTokenIfChanged()
	})
}

func (w *Watcher) reloadTokenIfChanged() {
	path := w.tokenPathSnapshot()
	newHash, errHash := fileHash(path)
	if errHash != nil && os.IsNotExist(errHash) {
		// Atomic replace may surface as a transient missing file. Wait briefly
		// and look again before treating it as a deletion.
		time.Sleep(replaceCheckDelay)
		newHash, errHash = fileHash(path)
	}
	if errHash != nil && !os.IsNotExist(errHash) {
		log.Errorf("failed to read token record for hash check: %v", errHash)
		return
	}

	w.mu.Lock()
	changed := newHash != w.lastTokenHash
	w.lastTokenHash = newHash
	callback := w.tokenCallback
	w.mu.Unlock()

	if !changed {
		log.Debugf("token record unchanged (hash match), skipping reload")
		return
	}
	if newHash == "" {
		log.Infof("token record removed from disk: %s", path)
	} else {
		log.Infof("token record changed on disk, reloading: %s", path)
	}
	if callback != nil {
		callback()
	}
}
