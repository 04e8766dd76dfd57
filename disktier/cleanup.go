package disktier

import "time"

// runCleanupWorker is the background worker that performs a full
// wipe-and-rebuild cycle every cfg.CleanupInterval: a time.Ticker driving a
// dedicated goroutine that selects between the ticker and a stop channel,
// so the worker never blocks process shutdown and exits the instant Close
// signals it to.
func (t *Tier[K, V]) runCleanupWorker() {
	defer close(t.cleanupDone)

	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.CleanupNow(); err != nil {
				t.cfg.Logger.Error("disktier: scheduled cleanup failed", "err", err)
			}
		case <-t.cleanupStop:
			return
		}
	}
}
