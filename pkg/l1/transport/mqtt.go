package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/cenkalti/backoff/v4"

	"github.com/robotalks/motorsense/pkg/l1/mqtt"
)

// mqttLink connects to the broker of u and opens one end of the link of
// the device named by the id parameter, e.g.
// mqtt://broker:1883/motorsense/?id=greenhouse-1
func mqttLink(ctx context.Context, u *url.URL, open func(*mqtt.Queue, string) *mqtt.Link) (io.ReadWriteCloser, error) {
	id := u.Query().Get("id")
	if id == "" {
		return nil, backoff.Permanent(fmt.Errorf("%s: id is required", u.Redacted()))
	}
	q, err := mqtt.NewQueueFromURL(u.String())
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	token := q.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	link := open(q, id)
	link.OnClose = func() { q.Close() }
	return link, nil
}

func dialMQTT(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	return mqttLink(ctx, u, mqtt.HostLink)
}
