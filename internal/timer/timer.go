package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// Handle is a cancellable one-shot or periodic timer.
type Handle struct {
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	timer *time.Timer
	state atomic.Int32
}

// After runs fn once after d unless cancelled first.
func After(d time.Duration, fn func()) *Handle {
	h := &Handle{stop: make(chan struct{})}
	h.timer = time.AfterFunc(d, func() {
		if h.state.CompareAndSwap(statePending, stateFired) {
			fn()
		}
	})
	return h
}

// Every runs fn on each tick of a d period until cancelled. fn runs on the
// ticker goroutine, so a slow fn delays the next tick instead of stacking.
func Every(d time.Duration, fn func(time.Time)) *Handle {
	h := &Handle{stop: make(chan struct{})}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case t := <-ticker.C:
				fn(t)
			}
		}
	}()
	return h
}

// Cancel stops the timer and waits for the tick loop to exit. It reports
// whether a pending one-shot was prevented from firing. Cancel is safe to
// call more than once but must not be called from inside fn.
func (h *Handle) Cancel() bool {
	prevented := false
	h.once.Do(func() {
		close(h.stop)
		if h.timer != nil {
			prevented = h.state.CompareAndSwap(statePending, stateCancelled)
			h.timer.Stop()
		} else {
			prevented = true
		}
	})
	h.wg.Wait()
	return prevented
}

// Debouncer runs only the last of a burst of calls, delay after the burst ends.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	pending *Handle
	dropped func()
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call schedules fn and supersedes any call still waiting. The superseded
// call's dropped callback runs instead of its fn. The returned sequence
// number identifies this call; fn receives the same number.
func (d *Debouncer) Call(fn func(seq uint64), dropped func()) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelPendingLocked()
	d.seq++
	seq := d.seq
	d.dropped = dropped
	d.pending = After(d.delay, func() {
		d.mu.Lock()
		if d.seq == seq {
			d.pending = nil
			d.dropped = nil
		}
		d.mu.Unlock()
		fn(seq)
	})
	return seq
}

// Cancel drops the waiting call, if any, and invalidates calls already running.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelPendingLocked()
	d.seq++
}

// Latest reports whether seq is still the most recent call.
func (d *Debouncer) Latest(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq == seq
}

func (d *Debouncer) cancelPendingLocked() {
	if d.pending == nil {
		return
	}
	if d.pending.Cancel() && d.dropped != nil {
		d.dropped()
	}
	d.pending = nil
	d.dropped = nil
}
