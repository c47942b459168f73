// Package transport opens byte streams to the device.
//
// Links are addressed by URL:
//
//	serial:///dev/ttyUSB0?baud=115200
//	/dev/ttyUSB0                       (bare path, serial)
//	tcp://host:port                    (ser2net, socat)
//	ws://host/path                     (binary frames)
//	mqtt://broker:1883/prefix/?id=dev  (through a broker)
//
// The device side additionally accepts stdio: and tcp-listen://:port.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"go.bug.st/serial"
	"golang.org/x/net/websocket"

	"github.com/robotalks/motorsense/pkg/l0/driver"
)

var (
	// ErrUnsupportedScheme indicates no dialer handles the URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// Dialer opens a link for a parsed URL.
type Dialer func(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error)

var (
	dialersLock sync.RWMutex
	dialers     = map[string]Dialer{
		"serial": dialSerial,
		"tcp":    dialTCP,
		"ws":     dialWebsocket,
		"wss":    dialWebsocket,
		"mqtt":   dialMQTT,
	}
)

// Register adds or replaces the dialer of scheme.
func Register(scheme string, dialer Dialer) {
	dialersLock.Lock()
	dialers[scheme] = dialer
	dialersLock.Unlock()
}

func dialerOf(scheme string) Dialer {
	dialersLock.RLock()
	defer dialersLock.RUnlock()
	return dialers[scheme]
}

// Options controls retries when opening a link.
type Options struct {
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	// MaxElapsedTime stops retrying, zero retries until the context ends.
	MaxElapsedTime time.Duration
	// MaxRetries limits the attempts after the first, zero is unlimited.
	MaxRetries uint64
}

// DefaultOptions are used by Open.
var DefaultOptions = Options{
	InitialInterval: 500 * time.Millisecond,
	MaxElapsedTime:  30 * time.Second,
}

// ParseURL parses a link URL, treating a bare path as a serial device.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" {
		u = &url.URL{Scheme: "serial", Path: rawURL}
	}
	return u, nil
}

// Open opens a link with DefaultOptions.
func Open(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	return DefaultOptions.Open(ctx, rawURL)
}

// Open opens a link, retrying with exponential backoff.
func (o Options) Open(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	dial := dialerOf(u.Scheme)
	if dial == nil {
		return nil, fmt.Errorf("open %s: %w", rawURL, ErrUnsupportedScheme)
	}

	bo := backoff.NewExponentialBackOff()
	if o.InitialInterval > 0 {
		bo.InitialInterval = o.InitialInterval
	}
	bo.MaxElapsedTime = o.MaxElapsedTime
	var policy backoff.BackOff = bo
	if o.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, o.MaxRetries)
	}

	var conn io.ReadWriteCloser
	err = backoff.RetryNotify(func() error {
		c, err := dial(ctx, u)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		glog.Warningf("open %s failed, retry in %s: %v", rawURL, next, err)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rawURL, err)
	}
	glog.Infof("link %s opened", rawURL)
	return conn, nil
}

func serialPort(u *url.URL) (string, *serial.Mode, error) {
	port := u.Host + u.Path
	if port == "" {
		port = u.Opaque
	}
	mode := &serial.Mode{
		BaudRate: driver.DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if val := u.Query().Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return "", nil, fmt.Errorf("invalid baud rate %q", val)
		}
		mode.BaudRate = baud
	}
	if port == "" {
		return "", nil, errors.New("serial port not specified")
	}
	return port, mode, nil
}

func dialSerial(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	port, mode, err := serialPort(u)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return serial.Open(port, mode)
}

func dialTCP(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", u.Host)
}

func dialWebsocket(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	origin := "http://localhost/"
	if u.Scheme == "wss" {
		origin = "https://localhost/"
	}
	conf, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	conn, err := conf.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}
