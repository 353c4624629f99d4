// Package watchdog keeps a hardware watchdog fed for as long as every
// registered task shows signs of life.
package watchdog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/cwbeacon/pkg/hardware"
	"github.com/dougsko/cwbeacon/pkg/logging"
)

// FeedsPerTimeout is how many feeds fit in one device timeout
const FeedsPerTimeout = 5

// Feeder feeds the watchdog on a fixed cadence, but only while all tasks
// are alive. A task is alive when its last beat is no older than its
// maximum gap plus any suspension it announced with Expect.
type Feeder struct {
	dog      hardware.Watchdog
	interval time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	tasks map[string]*Task

	feeds    atomic.Uint64
	withheld atomic.Uint64
}

// NewFeeder creates a feeder for a device with the given timeout
func NewFeeder(dog hardware.Watchdog, timeout time.Duration) *Feeder {
	interval := timeout / FeedsPerTimeout
	if interval <= 0 {
		interval = time.Second
	}
	return &Feeder{
		dog:      dog,
		interval: interval,
		now:      time.Now,
		tasks:    make(map[string]*Task),
	}
}

// Interval returns the feeding cadence
func (f *Feeder) Interval() time.Duration {
	return f.interval
}

// Register adds a task that must beat at least every maxGap. Registering
// the same name again returns the existing task.
func (f *Feeder) Register(name string, maxGap time.Duration) *Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.tasks[name]; ok {
		return t
	}
	t := &Task{name: name, maxGap: maxGap, now: f.now, last: f.now()}
	f.tasks[name] = t
	return t
}

// Unregister removes a task that has finished on purpose
func (f *Feeder) Unregister(name string) {
	f.mu.Lock()
	delete(f.tasks, name)
	f.mu.Unlock()
}

// Stalled returns the names of tasks that missed their window
func (f *Feeder) Stalled() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := f.now()
	var stalled []string
	for name, t := range f.tasks {
		if !t.alive(now) {
			stalled = append(stalled, name)
		}
	}
	sort.Strings(stalled)
	return stalled
}

// Feeds returns the number of successful feeds
func (f *Feeder) Feeds() uint64 {
	return f.feeds.Load()
}

// Withheld returns the number of feeds skipped because a task stalled
func (f *Feeder) Withheld() uint64 {
	return f.withheld.Load()
}

// Run feeds until ctx is cancelled. It never closes the device: a stopped
// feeder leaves the hardware to reset the host unless the caller disarms it.
func (f *Feeder) Run(ctx context.Context) error {
	logging.Infof("watchdog", "Feeding every %v", f.interval)
	f.tick()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.tick()
		}
	}
}

func (f *Feeder) tick() {
	if stalled := f.Stalled(); len(stalled) > 0 {
		if f.withheld.Add(1) == 1 {
			logging.Errorf("watchdog", "Task stalled, withholding feed: %s", strings.Join(stalled, ", "))
		}
		return
	}
	if f.withheld.Load() > 0 {
		logging.Warnf("watchdog", "Tasks recovered after %d withheld feeds", f.withheld.Load())
		f.withheld.Store(0)
	}

	if err := f.dog.Feed(); err != nil {
		logging.Errorf("watchdog", "Feed failed: %v", err)
		return
	}
	f.feeds.Add(1)
}

// Task is the liveness handle of one goroutine. It satisfies
// beacon.Heartbeat.
type Task struct {
	name   string
	maxGap time.Duration
	now    func() time.Time

	mu     sync.Mutex
	last   time.Time
	expect time.Duration
}

// Name returns the task name
func (t *Task) Name() string {
	return t.name
}

// Beat marks the task as running
func (t *Task) Beat() {
	t.mu.Lock()
	t.last = t.now()
	t.expect = 0
	t.mu.Unlock()
}

// Expect announces that the task is about to block for d
func (t *Task) Expect(d time.Duration) {
	t.mu.Lock()
	t.last = t.now()
	t.expect = d
	t.mu.Unlock()
}

func (t *Task) alive(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.last) <= t.maxGap+t.expect
}
