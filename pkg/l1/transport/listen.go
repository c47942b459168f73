package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/motorsense/pkg/l1/mqtt"
)

// Listen opens the device end of a link. Besides serial ports it accepts
// stdio:, tcp-listen://addr, which waits for exactly one peer, and the
// device end of an mqtt link.
func Listen(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "stdio":
		return stdio{}, nil
	case "serial":
		port, mode, err := serialPort(u)
		if err != nil {
			return nil, err
		}
		return serial.Open(port, mode)
	case "tcp-listen":
		ln, err := net.Listen("tcp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", u.Host, err)
		}
		return AcceptOne(ctx, ln)
	case "mqtt":
		return mqttLink(ctx, u, mqtt.DeviceLink)
	}
	return nil, fmt.Errorf("listen %s: %w", rawURL, ErrUnsupportedScheme)
}

// AcceptOne waits for a single connection and closes ln.
func AcceptOne(ctx context.Context, ln net.Listener) (io.ReadWriteCloser, error) {
	defer ln.Close()
	glog.Infof("waiting for peer on %s", ln.Addr())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	glog.Infof("peer %s connected", conn.RemoteAddr())
	return conn, nil
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return os.Stdin.Close() }
