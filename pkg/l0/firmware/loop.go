package firmware

import (
	"time"

	"github.com/robotalks/motorsense/pkg/framework"
)

// AddToLoop implements framework.LoopAdder. It installs the input and
// broadcast controllers, runs the serial receiver in the background and
// makes the loop use the board clock.
func (d *Device) AddToLoop(l *framework.Loop) {
	if d.board.Clock != nil {
		l.Clock = d.board.Clock
	}
	l.AddController(framework.PrLvSense, framework.ControlFunc(d.pollInput))
	l.AddController(framework.PrLvControl, framework.ControlFunc(d.broadcast))
	l.AddRunnable(d.link)
	if d.EventDriven {
		l.WakeOn(d.link.Ready())
		l.TriggerNext()
	}
}

// pollInput consumes received bytes without blocking. At most one line is
// dispatched per iteration.
func (d *Device) pollInput(cc framework.ControlContext) error {
	for n := d.bytesPerIteration(); n > 0; n-- {
		b, ok := d.link.TakeByte()
		if !ok {
			return nil
		}
		res := d.parser.Parse(b)
		if res.Dropped {
			d.count(func(s *Stats) { s.DroppedBytes++ })
		}
		if res.HasLine() {
			d.count(func(s *Stats) { s.Lines++ })
			d.respond(d.Dispatch(res.Line))
			break
		}
	}
	if d.EventDriven && d.link.Available() {
		cc.TriggerNext()
	}
	return nil
}

// broadcast sends sensor_data once the interval elapsed since the last one.
func (d *Device) broadcast(cc framework.ControlContext) error {
	interval := d.broadcastInterval()
	var elapsed uint64
	if now := cc.Millis(); now > d.lastBroadcast {
		elapsed = now - d.lastBroadcast
	}
	if elapsed < interval {
		cc.TriggerAfter(time.Duration(interval-elapsed) * time.Millisecond)
		return nil
	}
	d.refresh()
	d.respond(d.sensorData())
	d.count(func(s *Stats) { s.Broadcasts++ })
	d.lastBroadcast = d.board.Clock.Millis()
	cc.TriggerAfter(time.Duration(interval) * time.Millisecond)
	return nil
}
