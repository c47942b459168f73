package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
	"github.com/robotalks/motorsense/pkg/l1/client"
	"github.com/robotalks/motorsense/pkg/l1/mqtt"
)

// Doer executes a command on the device.
type Doer interface {
	Do(ctx context.Context, cmd *msgs.Command) (msgs.Response, error)
}

// CommandRelay executes commands received on <prefix><device-id>/command
// and publishes the response on <prefix><device-id>/reply, as JSON.
type CommandRelay struct {
	Queue    *mqtt.Queue
	DeviceID string
	Device   Doer
	Timeout  time.Duration
}

// CommandTopic is the topic commands are received on.
func (r *CommandRelay) CommandTopic() string {
	return r.DeviceID + "/command"
}

// ReplyTopic is the topic responses are published on.
func (r *CommandRelay) ReplyTopic() string {
	return r.DeviceID + "/reply"
}

// Run implements framework.Runnable.
func (r *CommandRelay) Run(ctx context.Context) error {
	reqCh := make(chan []byte, 8)
	r.Queue.Sub(r.CommandTopic(), func(topic string, payload []byte) {
		select {
		case reqCh <- payload:
		default:
			glog.Warningf("relay busy, command dropped")
		}
	})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-reqCh:
			r.Handle(ctx, payload)
		}
	}
}

// Handle executes one command payload and publishes the outcome.
func (r *CommandRelay) Handle(ctx context.Context, payload []byte) {
	reply := r.execute(ctx, payload)
	data, err := msgs.Encode(reply)
	if err != nil {
		glog.Errorf("encode reply: %v", err)
		return
	}
	if err := waitToken(ctx, r.Queue.Pub(r.ReplyTopic(), data)); err != nil {
		glog.Warningf("publish reply: %v", err)
	}
}

func (r *CommandRelay) execute(ctx context.Context, payload []byte) msgs.Response {
	cmd, err := msgs.ParseCommand(payload)
	if err != nil {
		return msgs.Error{Message: msgs.MsgParseFailed}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := r.Device.Do(ctx, cmd)
	var devErr *client.DeviceError
	switch {
	case errors.As(err, &devErr):
		return msgs.Error{Message: devErr.Message}
	case err != nil:
		return msgs.Error{Message: err.Error()}
	}
	return resp
}
