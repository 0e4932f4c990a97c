// Package timerwheel implements the hashed wheel of per-second buckets
// used for idle-connection reaping. A task added with delay d lives in
// the bucket d+1 slots ahead of the hand, so it fires between d and d+1
// seconds later however much of the current second has already passed;
// refresh re-inserts a second reference the same distance ahead of the
// hand without disturbing the first, so the task only
// fires once its *last* scheduled bucket clears — "defer expiry by
// another delay" without an explicit cancel-and-reinsert.
package timerwheel

import "github.com/lins-zhou/gorev/internal/netpoll"

const defaultCapacity = 60

// LoopHandle is the slice of EventLoop a Wheel needs: a way to run a
// closure confined to the owning loop's thread, and a way to be notified
// when an fd (the timerfd) becomes readable. reactor.EventLoop implements
// this; the interface exists so this package doesn't import reactor.
type LoopHandle interface {
	RunInLoop(f func())
	WatchReadable(fd int, onReadable func())
}

type task struct {
	id       uint64
	delay    int
	canceled bool
	refs     int
	cb       func()
}

// Wheel is confined to its owning loop's thread for all of its bucket and
// index state; Add/Refresh/Cancel hop onto that thread via RunInLoop
// before touching it.
type Wheel struct {
	loop     LoopHandle
	fd       *netpoll.TimerFD
	tick     int
	capacity int
	buckets  [][]*task
	index    map[uint64]*task
}

// New creates a Wheel with the default capacity (60s max delay), arms a
// 1Hz timerfd, and registers it for readability with loop.
func New(loop LoopHandle) (*Wheel, error) {
	return NewSize(loop, defaultCapacity)
}

// NewSize creates a Wheel whose longest supported delay is capacity
// seconds. It keeps capacity+1 buckets so that a task with that delay
// still gets a bucket of its own, one full turn away from the hand.
func NewSize(loop LoopHandle, capacity int) (*Wheel, error) {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	fd, err := netpoll.NewTimerFD()
	if err != nil {
		return nil, err
	}
	w := &Wheel{
		loop:     loop,
		fd:       fd,
		capacity: capacity + 1,
		buckets:  make([][]*task, capacity+1),
		index:    make(map[uint64]*task),
	}
	loop.WatchReadable(fd.Fd(), w.onTimerReadable)
	return w, nil
}

func (w *Wheel) onTimerReadable() {
	ticks, err := w.fd.ReadTicks()
	if err != nil {
		return
	}
	for i := uint64(0); i < ticks; i++ {
		w.advanceOnce()
	}
}

// advanceOnce moves the hand forward one bucket and clears it, firing (or
// skipping, if canceled) every task whose last reference lived there.
func (w *Wheel) advanceOnce() {
	w.tick = (w.tick + 1) % w.capacity
	expired := w.buckets[w.tick]
	w.buckets[w.tick] = nil
	for _, t := range expired {
		t.refs--
		if t.refs == 0 {
			delete(w.index, t.id)
			if !t.canceled {
				t.cb()
			}
		}
	}
}

// Add schedules cb to run after delay seconds, keyed by id. Hops onto the
// owning loop.
func (w *Wheel) Add(id uint64, delaySec int, cb func()) {
	w.loop.RunInLoop(func() { w.addInLoop(id, delaySec, cb) })
}

func (w *Wheel) addInLoop(id uint64, delaySec int, cb func()) {
	t := &task{id: id, delay: delaySec, refs: 1, cb: cb}
	pos := (w.tick + delaySec + 1) % w.capacity
	w.buckets[pos] = append(w.buckets[pos], t)
	w.index[id] = t
}

// Refresh re-inserts a second reference to id's task at its original
// delay from now, deferring its expiry without disturbing the slot it's
// already in. A no-op if id is unknown (already expired, or never
// added) — the weak lookup simply fails, same as the source.
func (w *Wheel) Refresh(id uint64) {
	w.loop.RunInLoop(func() { w.refreshInLoop(id) })
}

func (w *Wheel) refreshInLoop(id uint64) {
	t, ok := w.index[id]
	if !ok {
		return
	}
	t.refs++
	pos := (w.tick + t.delay + 1) % w.capacity
	w.buckets[pos] = append(w.buckets[pos], t)
}

// Cancel marks id's task so it will not run its callback when its last
// bucket clears. The task still occupies its slots; cancel does not
// unlink it early.
func (w *Wheel) Cancel(id uint64) {
	w.loop.RunInLoop(func() { w.cancelInLoop(id) })
}

func (w *Wheel) cancelInLoop(id uint64) {
	if t, ok := w.index[id]; ok {
		t.canceled = true
	}
}

// Has reports whether id currently has a live (non-expired) task. Must be
// called from the owning loop's thread — unlike Add/Refresh/Cancel it
// does not hop, since callers use it to decide whether to Add or Refresh
// from code that is already running in-loop.
func (w *Wheel) Has(id uint64) bool {
	_, ok := w.index[id]
	return ok
}

// Close releases the timerfd.
func (w *Wheel) Close() error {
	return w.fd.Close()
}
