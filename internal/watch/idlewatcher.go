// Package watch triggers sleep consolidation when the machine goes idle,
// so heavy reorganization never competes with active capture.
package watch

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ckoons/katra-sub002/internal/logging"
)

// IdleWatcher polls system CPU and fires a callback after the machine has
// stayed below the idle threshold long enough.
type IdleWatcher struct {
	mu sync.Mutex

	pollInterval  time.Duration // how often to sample CPU (default 5s)
	idleThreshold float64       // CPU % below which the machine is idle (default 10%)
	idleDuration  time.Duration // idle time required before firing (default 2m)

	onIdle func()

	cpuHistory []float64
	idleSince  time.Time
	firedOnce  bool
	stopChan   chan struct{}
	running    bool
}

// NewIdleWatcher creates a watcher with default thresholds. onIdle runs in
// its own goroutine and fires once per idle period.
func NewIdleWatcher(onIdle func()) *IdleWatcher {
	return &IdleWatcher{
		pollInterval:  5 * time.Second,
		idleThreshold: 10.0,
		idleDuration:  2 * time.Minute,
		onIdle:        onIdle,
		stopChan:      make(chan struct{}),
	}
}

// SetThresholds configures detection.
func (w *IdleWatcher) SetThresholds(idleThreshold float64, poll, idleDur time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.idleThreshold = idleThreshold
	w.pollInterval = poll
	w.idleDuration = idleDur
}

// Start begins watching. No-op if already running.
func (w *IdleWatcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop()
	logging.Info("watch", "started (poll=%v, idle<%.0f%%, idle_dur=%v)",
		w.pollInterval, w.idleThreshold, w.idleDuration)
}

// Stop stops watching.
func (w *IdleWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopChan)
		w.running = false
	}
}

func (w *IdleWatcher) watchLoop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *IdleWatcher) poll() {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Keep the last 5 readings and decide on the average.
	w.cpuHistory = append(w.cpuHistory, percents[0])
	if len(w.cpuHistory) > 5 {
		w.cpuHistory = w.cpuHistory[1:]
	}
	if len(w.cpuHistory) < 3 {
		return
	}
	var sum float64
	for _, v := range w.cpuHistory {
		sum += v
	}
	avg := sum / float64(len(w.cpuHistory))

	now := time.Now()
	if avg > w.idleThreshold {
		w.idleSince = time.Time{}
		w.firedOnce = false
		return
	}

	if w.idleSince.IsZero() {
		w.idleSince = now
		return
	}
	if !w.firedOnce && now.Sub(w.idleSince) >= w.idleDuration {
		w.firedOnce = true
		logging.Info("watch", "machine idle %v (avg CPU %.1f%%), triggering consolidation",
			now.Sub(w.idleSince).Round(time.Second), avg)
		if w.onIdle != nil {
			go w.onIdle()
		}
	}
}
