package framework

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Runner.Wait after a second stop signal.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun attaches a name used in logs.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// RunFunc adapts a func to Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner starts Runnables on their own goroutines under a shared context
// and gathers what they return.
type Runner struct {
	Context context.Context

	started int
	results chan error
	forced  chan struct{}
}

// NewRunner creates a Runner bound to ctx.
func NewRunner(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		results: make(chan error, 1),
		forced:  make(chan struct{}),
	}
}

// HandleSignals cancels the context on SIGINT or SIGTERM. A second signal
// makes Wait return ErrForcedExit without waiting further.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	r.Context = ctx
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stopping", sig)
		cancel()
		sig = <-sigCh
		glog.Errorf("%v: giving up on graceful stop", sig)
		close(r.forced)
	}()
	return r
}

// Go starts each Runnable with the Runner's context.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := strconv.Itoa(r.started)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		r.started++
		glog.V(4).Infof("%s: starting", name)
		go r.run(name, runnable)
	}
	return r
}

func (r *Runner) run(name string, runnable Runnable) {
	err := runnable.Run(r.Context)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		glog.V(4).Infof("%s: done", name)
	default:
		glog.Warningf("%s: %v", name, err)
	}
	r.results <- err
}

// Wait blocks until every started Runnable returned. Cancellation is not
// reported as a failure.
func (r *Runner) Wait() error {
	var errs MultiError
	for i := 0; i < r.started; i++ {
		select {
		case <-r.forced:
			return ErrForcedExit
		case err := <-r.results:
			if !errors.Is(err, context.Canceled) {
				errs.Append(err)
			}
		}
	}
	return errs.Err()
}

// RunWithContextCancel runs fn, which can't watch a context itself. When
// ctx ends first, onCancel is expected to make fn return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-done
	return ctx.Err()
}
