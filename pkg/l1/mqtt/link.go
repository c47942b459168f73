package mqtt

import (
	"io"
	"sync"
)

// Link carries the device byte stream over a pair of topics, so a device
// can be reached through a broker instead of a serial cable.
type Link struct {
	Queue    *Queue
	SubTopic string
	PubTopic string
	// OnClose is called once by Close.
	OnClose func()

	dataCh    chan []byte
	pending   []byte
	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewLink creates a Link and subscribes SubTopic.
func NewLink(q *Queue, sub, pub string) *Link {
	l := &Link{
		Queue:    q,
		SubTopic: sub,
		PubTopic: pub,
		dataCh:   make(chan []byte, 64),
		closedCh: make(chan struct{}),
	}
	q.Sub(sub, l.handleMsg)
	return l
}

// HostLink is the host end: it reads <id>/tx and writes <id>/rx.
func HostLink(q *Queue, id string) *Link {
	return NewLink(q, id+"/tx", id+"/rx")
}

// DeviceLink is the device end: it reads <id>/rx and writes <id>/tx.
func DeviceLink(q *Queue, id string) *Link {
	return NewLink(q, id+"/rx", id+"/tx")
}

func (l *Link) handleMsg(_ string, payload []byte) {
	select {
	case l.dataCh <- payload:
	case <-l.closedCh:
	}
}

// Read implements io.Reader.
func (l *Link) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		select {
		case data := <-l.dataCh:
			l.pending = data
		case <-l.closedCh:
			return 0, io.EOF
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write implements io.Writer. Each call is published as one message.
func (l *Link) Write(p []byte) (int, error) {
	select {
	case <-l.closedCh:
		return 0, io.ErrClosedPipe
	default:
	}
	payload := append([]byte(nil), p...)
	token := l.Queue.Pub(l.PubTopic, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.closedCh)
		if l.OnClose != nil {
			l.OnClose()
		}
	})
	return nil
}
