package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron"
)

// Start builds the first snapshot, retrying with exponential backoff until a
// build succeeds or ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	// Start at 500ms, double each retry, cap at 30s.
	backoff := 500 * time.Millisecond
	maxBackoff := 30 * time.Second

	for {
		if _, err := r.Refresh(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// Schedule rebuilds the dataset every interval until ctx is cancelled.
func (r *Refresher) Schedule(ctx context.Context, interval time.Duration) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(interval).WaitForSchedule().Do(func() {
		r.logger.Debug("scheduled dataset refresh")
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Warn("scheduled refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	r.logger.Info("refresh scheduler started", "interval", interval)
	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	r.logger.Info("refresh scheduler stopped")
	return nil
}

// Watch rebuilds the dataset when CSV files in dir are written, created,
// renamed or removed. Bursts of events within debounce trigger one rebuild.
func (r *Refresher) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	r.logger.Info("watching data directory", "dir", dir, "debounce", debounce)

	timer := r.clock.NewTimer(debounce)
	timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDataEvent(event) {
				continue
			}
			timer.Reset(debounce)
			pending = timer.Chan()

		case <-pending:
			pending = nil
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Warn("refresh after data change failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("data directory watcher error", "error", err)
		}
	}
}

func isDataEvent(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (r *Refresher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := r.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
