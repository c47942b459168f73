package telemetry

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
	"github.com/robotalks/motorsense/pkg/l1/mqtt"
)

// DefaultPublishTimeout bounds waiting for the broker.
const DefaultPublishTimeout = 5 * time.Second

// MQTTSink publishes responses to <prefix><device-id>/<kind>.
type MQTTSink struct {
	Queue    *mqtt.Queue
	DeviceID string
	Format   Format
	// Retain status messages so late subscribers see the last one.
	RetainStatus bool
}

// NewMQTTSink creates a MQTTSink.
func NewMQTTSink(queue *mqtt.Queue, deviceID string, format Format) *MQTTSink {
	return &MQTTSink{Queue: queue, DeviceID: deviceID, Format: format}
}

// Topic returns the topic of a response kind, relative to the prefix.
func (s *MQTTSink) Topic(kind msgs.Kind) string {
	return s.DeviceID + "/" + string(kind)
}

// Publish implements Sink.
func (s *MQTTSink) Publish(ctx context.Context, resp msgs.Response) error {
	payload, err := s.Format.Encode(resp)
	if err != nil {
		return err
	}
	retain := s.RetainStatus && resp.Kind() == msgs.KindStatus
	return waitToken(ctx, s.Queue.PubWith(s.Topic(resp.Kind()), payload, 0, retain))
}

func waitToken(ctx context.Context, token paho.Token) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPublishTimeout)
		defer cancel()
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
