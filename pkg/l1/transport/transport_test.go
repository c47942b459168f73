package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func TestParseURL(t *testing.T) {
	testCases := []struct {
		raw    string
		scheme string
		port   string
		baud   int
	}{
		{"/dev/ttyUSB0", "serial", "/dev/ttyUSB0", 115200},
		{"COM3", "serial", "COM3", 115200},
		{"serial:///dev/ttyACM0?baud=9600", "serial", "/dev/ttyACM0", 9600},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			u, err := ParseURL(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.scheme, u.Scheme)
			port, mode, err := serialPort(u)
			require.NoError(t, err)
			require.Equal(t, tc.port, port)
			require.Equal(t, tc.baud, mode.BaudRate)
		})
	}

	u, err := ParseURL("serial:///dev/ttyS0?baud=fast")
	require.NoError(t, err)
	_, _, err = serialPort(u)
	require.Error(t, err)
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "gopher://device")
	require.True(t, errors.Is(err, ErrUnsupportedScheme))
	_, err = Listen(context.Background(), "ws://device")
	require.True(t, errors.Is(err, ErrUnsupportedScheme))
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted := make(chan io.ReadWriteCloser, 1)
	go func() {
		conn, err := AcceptOne(ctx, ln)
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := Open(ctx, "tcp://"+ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	peer := <-accepted
	defer peer.Close()

	_, err = conn.Write([]byte("{\"command\":\"get_status\"}\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "{\"command\":\"get_status\"}\n", line)
}

func TestAcceptOneCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AcceptOne(ctx, ln)
	require.Equal(t, context.Canceled, err)
}

func TestOpenWebsocket(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		io.Copy(ws, ws)
	}))
	defer srv.Close()

	conn, err := Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/link")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ping\n", line)
}

type nopLink struct{}

func (nopLink) Read([]byte) (int, error)    { return 0, io.EOF }
func (nopLink) Write(p []byte) (int, error) { return len(p), nil }
func (nopLink) Close() error                { return nil }

func TestOpenRetries(t *testing.T) {
	var attempts int32
	Register("flaky", func(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("busy")
		}
		return nopLink{}, nil
	})
	opts := Options{InitialInterval: time.Millisecond, MaxElapsedTime: 5 * time.Second}
	conn, err := opts.Open(context.Background(), "flaky://device")
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestOpenGivesUp(t *testing.T) {
	var attempts int32
	Register("down", func(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("down")
	})
	opts := Options{InitialInterval: time.Millisecond, MaxRetries: 2}
	_, err := opts.Open(context.Background(), "down://device")
	require.Error(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Options{InitialInterval: time.Millisecond}.Open(ctx, "down://device")
	require.Error(t, err)
}

func TestMQTTLinkNeedsID(t *testing.T) {
	opts := Options{InitialInterval: time.Millisecond, MaxRetries: 5}
	start := time.Now()
	_, err := opts.Open(context.Background(), "mqtt://localhost:1/motorsense/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "id is required")
	require.Less(t, time.Since(start), time.Second)

	_, err = Listen(context.Background(), "mqtt://localhost:1/motorsense/")
	require.Error(t, err)
}
