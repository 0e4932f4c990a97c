package reactor

import (
	"runtime"
	"sync"

	"github.com/lins-zhou/gorev/internal/netpoll"
	"github.com/lins-zhou/gorev/timerwheel"
)

// EventLoop is a per-thread run loop: poll yields active Channels, each
// dispatches, then the pending-task queue drains. It is pinned to exactly
// one OS thread for its entire lifetime via runtime.LockOSThread, which
// is what makes "the calling thread" in RunInLoop's affinity check
// meaningful.
type EventLoop struct {
	tid int // set once Start's goroutine has locked its OS thread

	poller *poller

	wakeupFD *netpoll.EventFD
	wakeupCh *Channel

	mu    sync.Mutex
	tasks []func()

	wheel *timerwheel.Wheel

	quit chan struct{}
}

// NewEventLoop constructs an EventLoop. It does not start running until
// Start is called (from the thread that should own it).
func NewEventLoop() (*EventLoop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	efd, err := netpoll.NewEventFD()
	if err != nil {
		p.Close()
		return nil, err
	}
	loop := &EventLoop{
		poller:   p,
		wakeupFD: efd,
		quit:     make(chan struct{}),
	}
	loop.wakeupCh = NewChannel(loop, efd.Fd())
	loop.wakeupCh.SetReadCallback(loop.drainWakeup)
	loop.wakeupCh.EnableRead()

	wheel, err := timerwheel.New(loop)
	if err != nil {
		loop.wakeupFD.Close()
		p.Close()
		return nil, err
	}
	loop.wheel = wheel
	return loop, nil
}

func (l *EventLoop) drainWakeup() {
	if _, err := l.wakeupFD.ReadEvent(); err != nil {
		log.Warn().Err(err).Msg("eventloop: drain wakeup failed")
	}
}

// Start blocks the calling thread forever (until Stop is called),
// alternating poll -> dispatch -> run queued tasks.
func (l *EventLoop) Start() {
	runtime.LockOSThread()
	l.tid = currentThreadID()

	active := make([]*Channel, 0, 128)
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		var err error
		active, err = l.poller.Poll(active)
		if err != nil {
			log.Warn().Err(err).Msg("eventloop: poll error")
			continue
		}
		for _, ch := range active {
			ch.HandleEvent()
		}
		l.runAllTasks()
	}
}

// Stop asks the loop to return from Start after finishing its current
// iteration. Safe to call from any thread.
func (l *EventLoop) Stop() {
	l.RunInLoop(func() {
		select {
		case <-l.quit:
		default:
			close(l.quit)
		}
	})
}

func (l *EventLoop) runAllTasks() {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, f := range tasks {
		f()
	}
}

// IsInLoop reports whether the calling goroutine is running on this
// loop's own thread.
func (l *EventLoop) IsInLoop() bool {
	return currentThreadID() == l.tid
}

// AssertInLoop panics if the calling goroutine is not on this loop's
// thread. Used at the boundary of operations (Upgrade) that spec
// requires be same-loop-only: calling them off-loop is a programmer
// error, not a recoverable condition.
func (l *EventLoop) AssertInLoop() {
	if !l.IsInLoop() {
		panic("reactor: operation requires the owning loop's thread")
	}
}

// RunInLoop runs f inline if called from the owning thread, else queues
// it and wakes the loop.
func (l *EventLoop) RunInLoop(f func()) {
	if l.IsInLoop() {
		f()
		return
	}
	l.QueueInLoop(f)
}

// QueueInLoop pushes f onto the task queue and wakes the loop's Poll via
// the wakeup eventfd. Tasks queued from one producer are observed by the
// loop in FIFO order; there is no ordering guarantee across producers.
func (l *EventLoop) QueueInLoop(f func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, f)
	l.mu.Unlock()

	if err := l.wakeupFD.WriteEvent(1); err != nil {
		log.Warn().Err(err).Msg("eventloop: wakeup write failed")
	}
}

// WatchReadable registers fd for read-readiness with this loop's poller,
// invoking onReadable (on the loop's thread) whenever it fires. It is the
// LoopHandle hook timerwheel.Wheel uses to bind its timerfd without this
// package importing timerwheel's internals, or timerwheel importing
// reactor.
func (l *EventLoop) WatchReadable(fd int, onReadable func()) {
	ch := NewChannel(l, fd)
	ch.SetReadCallback(onReadable)
	ch.EnableRead()
}

// TimerAdd, TimerRefresh, TimerCancel and HasTimer forward to the loop's
// own TimerWheel, mirroring the source's EventLoop facade over its
// TimerWheel member.
func (l *EventLoop) TimerAdd(id uint64, delaySec int, cb func()) { l.wheel.Add(id, delaySec, cb) }
func (l *EventLoop) TimerRefresh(id uint64)                      { l.wheel.Refresh(id) }
func (l *EventLoop) TimerCancel(id uint64)                       { l.wheel.Cancel(id) }
func (l *EventLoop) HasTimer(id uint64) bool                     { return l.wheel.Has(id) }

// Close releases the loop's poller, wakeup eventfd, and timer wheel.
// Call only after Start has returned.
func (l *EventLoop) Close() {
	l.wheel.Close()
	l.wakeupFD.Close()
	l.poller.Close()
}
