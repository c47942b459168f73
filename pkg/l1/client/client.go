// Package client talks to the device from the host: it sends commands,
// matches their responses and delivers unsolicited broadcasts as events.
package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/l0/comm"
	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// LineCapacity is the host side line buffer size.
const LineCapacity = 1024

// DefaultEventBuffer is the number of events kept when nobody reads them.
const DefaultEventBuffer = 16

var (
	// ErrClosed indicates the link ended before a response arrived.
	ErrClosed = errors.New("link closed")
)

// DeviceError is an error response from the device.
type DeviceError struct {
	Message string
}

// Error implements error.
func (e *DeviceError) Error() string {
	return "device error: " + e.Message
}

// Handler receives responses no pending command claimed.
type Handler interface {
	HandleResponse(msgs.Response)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(msgs.Response)

// HandleResponse implements Handler.
func (f HandlerFunc) HandleResponse(resp msgs.Response) {
	f(resp)
}

type result struct {
	resp msgs.Response
	err  error
}

// pending is a command waiting for its response.
type pending struct {
	expect   msgs.Kind
	resultCh chan result
	next     *pending
}

// Client sends commands over a link and dispatches what comes back.
type Client struct {
	// Handler is optional, called from Run for every event.
	Handler Handler

	rw      io.ReadWriter
	parser  *comm.Parser
	eventCh chan msgs.Response
	dropped uint64

	cmdsLock sync.Mutex
	cmdsHead *pending
	cmdsTail *pending
	closed   bool
}

// New creates a Client on rw. Run must be running for calls to complete.
func New(rw io.ReadWriter) *Client {
	return &Client{
		rw:      rw,
		parser:  comm.NewParser(LineCapacity),
		eventCh: make(chan msgs.Response, DefaultEventBuffer),
	}
}

// Events delivers broadcasts and other unclaimed responses. When the buffer
// is full the oldest event is discarded.
func (c *Client) Events() <-chan msgs.Response {
	return c.eventCh
}

// DroppedEvents returns the number of events discarded.
func (c *Client) DroppedEvents() uint64 {
	return atomic.LoadUint64(&c.dropped)
}

// expectedKind is the kind of response a command is answered with.
func expectedKind(cmd *msgs.Command) msgs.Kind {
	switch cmd.Name {
	case msgs.CmdGetSensorData:
		return msgs.KindSensorData
	case msgs.CmdGetStatus:
		return msgs.KindStatus
	case msgs.CmdSetLED, msgs.CmdSetMotor, msgs.CmdStopMotor:
		return msgs.KindReply
	}
	return msgs.KindError
}

// Do sends cmd and waits for its response. An error response from the
// device is returned as *DeviceError.
func (c *Client) Do(ctx context.Context, cmd *msgs.Command) (msgs.Response, error) {
	data, err := cmd.MarshalJSON()
	if err != nil {
		return nil, err
	}
	p := &pending{expect: expectedKind(cmd), resultCh: make(chan result, 1)}

	c.cmdsLock.Lock()
	if c.closed {
		c.cmdsLock.Unlock()
		return nil, ErrClosed
	}
	if _, err := c.rw.Write(append(data, comm.Terminator)); err != nil {
		c.cmdsLock.Unlock()
		return nil, err
	}
	if c.cmdsHead == nil {
		c.cmdsHead = p
	} else {
		c.cmdsTail.next = p
	}
	c.cmdsTail = p
	c.cmdsLock.Unlock()

	select {
	case r := <-p.resultCh:
		if r.err != nil {
			return nil, r.err
		}
		if e, ok := r.resp.(msgs.Error); ok {
			return nil, &DeviceError{Message: e.Message}
		}
		return r.resp, nil
	case <-ctx.Done():
		c.remove(p)
		return nil, ctx.Err()
	}
}

func (c *Client) remove(p *pending) {
	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	var prev *pending
	for curr := c.cmdsHead; curr != nil; prev, curr = curr, curr.next {
		if curr != p {
			continue
		}
		if prev == nil {
			c.cmdsHead = curr.next
		} else {
			prev.next = curr.next
		}
		if c.cmdsTail == curr {
			c.cmdsTail = prev
		}
		return
	}
}

// claim finds the first pending command resp answers. An error response
// always answers the oldest command.
func (c *Client) claim(resp msgs.Response) *pending {
	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	var prev *pending
	for curr := c.cmdsHead; curr != nil; prev, curr = curr, curr.next {
		if curr.expect != resp.Kind() && resp.Kind() != msgs.KindError {
			continue
		}
		if prev == nil {
			c.cmdsHead = curr.next
		} else {
			prev.next = curr.next
		}
		if c.cmdsTail == curr {
			c.cmdsTail = prev
		}
		curr.next = nil
		return curr
	}
	return nil
}

// HandleLine processes one line received from the device.
func (c *Client) HandleLine(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	if msgs.IsBanner(line) {
		glog.Infof("device: %s", line)
		return
	}
	resp, err := msgs.Decode(line)
	if err != nil {
		glog.Warningf("ignore line %q: %v", line, err)
		return
	}
	if p := c.claim(resp); p != nil {
		p.resultCh <- result{resp: resp}
		return
	}
	c.emit(resp)
}

func (c *Client) emit(resp msgs.Response) {
	if c.Handler != nil {
		c.Handler.HandleResponse(resp)
	}
	for {
		select {
		case c.eventCh <- resp:
			return
		default:
		}
		select {
		case <-c.eventCh:
			atomic.AddUint64(&c.dropped, 1)
		default:
		}
	}
}

// Run reads from the link until it fails or ctx is canceled. Pending and
// later commands fail with ErrClosed afterwards.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.readLoop()
	}()
	var err error
	select {
	case <-ctx.Done():
		if closer, ok := c.rw.(io.Closer); ok {
			closer.Close()
		}
		err = ctx.Err()
	case err = <-errCh:
	}
	c.shutdown()
	if err == io.EOF {
		return nil
	}
	return err
}

func (c *Client) readLoop() error {
	buf := make([]byte, 256)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			lines, dropped := c.parser.Feed(buf[:n])
			if dropped > 0 {
				glog.Warningf("line too long, %d bytes dropped", dropped)
			}
			for _, line := range lines {
				c.HandleLine(line)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) shutdown() {
	c.cmdsLock.Lock()
	head := c.cmdsHead
	c.cmdsHead, c.cmdsTail, c.closed = nil, nil, true
	c.cmdsLock.Unlock()
	for ; head != nil; head = head.next {
		head.resultCh <- result{err: ErrClosed}
	}
}
