// Package telemetry fans device responses out to external systems.
package telemetry

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/framework"
	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// Sink accepts device responses.
type Sink interface {
	Publish(ctx context.Context, resp msgs.Response) error
}

// SinkFunc is the func form of Sink.
type SinkFunc func(ctx context.Context, resp msgs.Response) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, resp msgs.Response) error {
	return f(ctx, resp)
}

// Mux publishes to all sinks.
type Mux struct {
	lock  sync.RWMutex
	sinks []Sink
}

// Add adds sinks.
func (m *Mux) Add(sinks ...Sink) *Mux {
	m.lock.Lock()
	m.sinks = append(m.sinks, sinks...)
	m.lock.Unlock()
	return m
}

// Len returns the number of sinks.
func (m *Mux) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.sinks)
}

// Publish implements Sink. Every sink is tried, failures are aggregated.
func (m *Mux) Publish(ctx context.Context, resp msgs.Response) error {
	m.lock.RLock()
	sinks := m.sinks
	m.lock.RUnlock()
	var errs framework.MultiError
	for _, sink := range sinks {
		errs.Append(sink.Publish(ctx, resp))
	}
	return errs.Err()
}

// Forwarder drains events into a sink.
type Forwarder struct {
	Events <-chan msgs.Response
	Sink   Sink
}

// Run implements framework.Runnable.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-f.Events:
			if !ok {
				return nil
			}
			if err := f.Sink.Publish(ctx, resp); err != nil {
				glog.Warningf("publish %s: %v", resp.Kind(), err)
			}
		}
	}
}
