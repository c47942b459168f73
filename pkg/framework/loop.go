package framework

import (
	"context"
	"log"
	"time"

	"github.com/golang/glog"
)

// Loop runs controllers one after another, in priority order, on a single
// goroutine. Runnables added to the loop run in the background and may only
// interact with controllers through wake-up channels.
type Loop struct {
	// Interval is the pause between two iterations. Zero disables the ticker
	// and iterations only happen on wake-ups.
	Interval time.Duration
	// Clock provides Millis for iterations.
	Clock Clock

	controllers [PriorityLevels][]Controller
	runners     []Runnable
	wakeSources []<-chan struct{}

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	loop          *Loop
	ctx           context.Context
	time          time.Time
	millis        uint64
	priorityLevel int
	wakeAfter     time.Duration
	wakeSet       bool
}

type loopCtxKeyType struct{}

var loopCtxKey loopCtxKeyType

// DefaultInterval is the pause between iterations if not specified.
const DefaultInterval = 100 * time.Millisecond

// LoopCtlFrom gets LoopControl from context.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey).(LoopControl)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, Clock: NewMonotonicClock()}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// WakeOn registers a channel which triggers an iteration whenever it fires.
func (l *Loop) WakeOn(ch <-chan struct{}) *Loop {
	l.wakeSources = append(l.wakeSources, ch)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.init()

	runner := NewRunner(context.WithValue(ctx, loopCtxKey, l))
	runner.Go(l.runners...)
	defer runner.Wait()

	for _, src := range l.wakeSources {
		go l.forwardWakeUps(ctx, src)
	}

	var tick <-chan time.Time
	if l.Interval > 0 {
		ticker := time.NewTicker(l.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case <-timer.C:
		case <-l.wakeUpCh:
		}
		iter := l.runIteration(ctx)
		if iter.wakeSet && tick == nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(iter.wakeAfter)
		}
	}
}

// RunOnce executes a single iteration synchronously.
func (l *Loop) RunOnce(ctx context.Context) {
	l.init()
	l.runIteration(ctx)
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// TriggerAfter implements LoopControl. Outside an iteration it degrades
// to TriggerNext.
func (l *Loop) TriggerAfter(d time.Duration) {
	l.TriggerNext()
}

func (l *Loop) init() {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	if l.Clock == nil {
		l.Clock = NewMonotonicClock()
	}
}

func (l *Loop) forwardWakeUps(ctx context.Context, src <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-src:
			if !ok {
				return
			}
			l.TriggerNext()
		}
	}
}

func (l *Loop) runIteration(ctx context.Context) *loopIteration {
	iter := &loopIteration{loop: l, time: time.Now(), millis: l.Clock.Millis()}
	iter.ctx = context.WithValue(ctx, loopCtxKey, iter)
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		for _, ctl := range l.controllers[i] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
	return iter
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) Millis() uint64 {
	return t.millis
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) TriggerNext() {
	t.loop.TriggerNext()
}

func (t *loopIteration) TriggerAfter(d time.Duration) {
	if d <= 0 {
		t.loop.TriggerNext()
		return
	}
	if !t.wakeSet || d < t.wakeAfter {
		t.wakeAfter, t.wakeSet = d, true
	}
}

// MonotonicClock counts milliseconds since it was created.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Millis implements Clock.
func (c *MonotonicClock) Millis() uint64 {
	return uint64(time.Since(c.start) / time.Millisecond)
}
