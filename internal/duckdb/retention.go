package duckdb

import (
	"log"
	"sync"
	"time"
)

// RetentionCleaner periodically deletes documents older than a fixed age,
// standing in for a data stream lifecycle policy.
type RetentionCleaner struct {
	store    *Store
	maxAge   time.Duration
	every    time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner starts a cleaner that runs once immediately and then
// every maxAge/10 (at least a minute). It returns nil when maxAge is not positive.
func NewRetentionCleaner(store *Store, maxAge time.Duration) *RetentionCleaner {
	if maxAge <= 0 {
		return nil
	}
	every := maxAge / 10
	if every < time.Minute {
		every = time.Minute
	}
	rc := &RetentionCleaner{
		store:  store,
		maxAge: maxAge,
		every:  every,
		done:   make(chan struct{}),
	}

	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()
	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	rows, err := rc.store.DeleteBefore(time.Now().Add(-rc.maxAge))
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return
	}
	if rows > 0 {
		log.Printf("duckdb: retention cleanup deleted %d documents older than %s", rows, rc.maxAge)
	}
}

// Stop signals the cleaner to stop and waits for it. Safe on a nil cleaner.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
