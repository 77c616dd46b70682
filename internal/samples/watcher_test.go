package samples

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *eventRecorder) has(want string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == want {
			return true
		}
	}
	return false
}

func TestWatcherReportsNewSample(t *testing.T) {
	dir, f := testCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &eventRecorder{}
	go Watch(ctx, f, quietLogger(), rec.record)

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)

	writeSample(t, dir, "fresh.txt", "New sample text.\n")

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("updated:fresh.txt")
	}, "no updated event for fresh.txt")
}

func TestWatcherReportsInvalidSample(t *testing.T) {
	dir, f := testCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &eventRecorder{}
	go Watch(ctx, f, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	writeSample(t, dir, "broken.txt", "")

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("invalid:broken.txt")
	}, "no invalid event for empty sample")
}

func TestWatcherReportsRemoval(t *testing.T) {
	dir, f := testCorpus(t)
	writeSample(t, dir, "gone.txt", "Here for a moment.\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &eventRecorder{}
	go Watch(ctx, f, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(filepath.Join(dir, "gone.txt")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("removed:gone.txt")
	}, "no removed event for gone.txt")
}
