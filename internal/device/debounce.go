package device

import (
	"sync/atomic"
	"time"
)

// window is one pending delayed decision for a player.
type window struct {
	cancelled atomic.Bool
	timer     *time.Timer
}

// Debouncer runs delayed per-player decisions that a direct dispatch can
// cancel before they fire.
type Debouncer struct {
	windows *shardedMap[[]*window]
}

func NewDebouncer() *Debouncer {
	return &Debouncer{windows: newShardedMap[[]*window]()}
}

// Open schedules fire to run after delay unless Cancel is called for the
// player first. It never blocks.
func (d *Debouncer) Open(playerID int, delay time.Duration, fire func()) {
	w := &window{}
	d.windows.Compute(playerID, func(open []*window, _ bool) ([]*window, bool) {
		w.timer = time.AfterFunc(delay, func() { d.expire(playerID, w, fire) })
		return append(open, w), true
	})
}

func (d *Debouncer) expire(playerID int, w *window, fire func()) {
	run := false
	d.windows.Compute(playerID, func(open []*window, loaded bool) ([]*window, bool) {
		run = !w.cancelled.Load()
		open = without(open, w)
		return open, len(open) > 0
	})
	if run {
		fire()
	}
}

// Cancel drops every open window of the player. It reports whether any was open.
func (d *Debouncer) Cancel(playerID int) bool {
	n := 0
	d.windows.Compute(playerID, func(open []*window, _ bool) ([]*window, bool) {
		for _, w := range open {
			w.cancelled.Store(true)
			w.timer.Stop()
		}
		n = len(open)
		return nil, false
	})
	return n > 0
}

// Open windows for the player.
func (d *Debouncer) Pending(playerID int) int {
	open, _ := d.windows.Load(playerID)
	return len(open)
}

// Stop cancels every window of every player.
func (d *Debouncer) Stop() {
	for _, id := range d.windows.Keys() {
		d.Cancel(id)
	}
}

func without(ws []*window, w *window) []*window {
	out := ws[:0:0]
	for _, x := range ws {
		if x != w {
			out = append(out, x)
		}
	}
	return out
}
