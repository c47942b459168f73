package comm

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// DefaultRxBufferSize mirrors the receive buffer of a small UART driver.
const DefaultRxBufferSize = 64

const readChunkSize = 256

// FIFO exposes a byte stream as a polled serial port: a background reader
// fills a bounded receive buffer, and the single consumer checks it without
// blocking. Bytes arriving while the receive buffer is full are lost, the
// same way a UART overruns when the firmware polls too slowly.
type FIFO struct {
	ReadWriter io.ReadWriter

	rxCh     chan byte
	readyCh  chan struct{}
	overruns uint64

	writeLock sync.Mutex
	initOnce  sync.Once
	rxSize    int
}

// NewFIFO creates a FIFO with the default receive buffer.
func NewFIFO(rw io.ReadWriter) *FIFO {
	return NewFIFOWithBuffer(rw, DefaultRxBufferSize)
}

// NewFIFOWithBuffer creates a FIFO with a receive buffer of size bytes.
func NewFIFOWithBuffer(rw io.ReadWriter, size int) *FIFO {
	if size < 1 {
		size = 1
	}
	return &FIFO{ReadWriter: rw, rxSize: size}
}

func (f *FIFO) init() {
	f.initOnce.Do(func() {
		if f.rxSize < 1 {
			f.rxSize = DefaultRxBufferSize
		}
		f.rxCh = make(chan byte, f.rxSize)
		f.readyCh = make(chan struct{}, 1)
	})
}

// Available indicates at least one received byte is waiting.
func (f *FIFO) Available() bool {
	f.init()
	return len(f.rxCh) > 0
}

// Buffered returns the number of received bytes waiting.
func (f *FIFO) Buffered() int {
	f.init()
	return len(f.rxCh)
}

// TakeByte takes one received byte if any, without blocking.
func (f *FIFO) TakeByte() (byte, bool) {
	f.init()
	select {
	case b := <-f.rxCh:
		return b, true
	default:
		return 0, false
	}
}

// Ready fires when bytes arrive. It's coalesced: one signal may stand for
// many bytes.
func (f *FIFO) Ready() <-chan struct{} {
	f.init()
	return f.readyCh
}

// Overruns returns the number of bytes lost because the receive buffer
// was full.
func (f *FIFO) Overruns() uint64 {
	return atomic.LoadUint64(&f.overruns)
}

// Write implements io.Writer.
func (f *FIFO) Write(p []byte) (int, error) {
	f.writeLock.Lock()
	defer f.writeLock.Unlock()
	return f.ReadWriter.Write(p)
}

// WriteLine writes p followed by the terminator with a single Write.
func (f *FIFO) WriteLine(p []byte) error {
	buf := make([]byte, len(p)+1)
	copy(buf, p)
	buf[len(p)] = Terminator
	_, err := f.Write(buf)
	return err
}

// WriteString writes a plain text line.
func (f *FIFO) WriteString(s string) error {
	return f.WriteLine([]byte(s))
}

// Run receives bytes in the background until the context is canceled or the
// underlying reader fails. The reader is closed on cancellation if it
// implements io.Closer, so a blocked Read is released.
func (f *FIFO) Run(ctx context.Context) error {
	f.init()
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.readLoop(ctx)
	}()
	select {
	case <-ctx.Done():
		if closer, ok := f.ReadWriter.(io.Closer); ok {
			closer.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (f *FIFO) readLoop(ctx context.Context) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := f.ReadWriter.Read(buf)
		if n > 0 {
			f.receive(buf[:n])
		}
		if err != nil {
			if ctx.Err() == nil {
				glog.V(2).Infof("fifo read stopped: %v", err)
			}
			return err
		}
	}
}

func (f *FIFO) receive(data []byte) {
	for _, b := range data {
		select {
		case f.rxCh <- b:
		default:
			atomic.AddUint64(&f.overruns, 1)
		}
	}
	select {
	case f.readyCh <- struct{}{}:
	default:
	}
}
