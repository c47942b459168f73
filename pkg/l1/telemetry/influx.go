package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// InfluxConfig locates the bucket.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// InfluxSink writes sensor_data and status as points. Other responses are
// ignored.
type InfluxSink struct {
	WriteAPI api.WriteAPIBlocking
	DeviceID string
	// Now stamps points, the device clock being relative to boot.
	Now func() time.Time

	client influxdb2.Client
}

// NewInfluxSink connects a sink to InfluxDB.
func NewInfluxSink(conf InfluxConfig, deviceID string) *InfluxSink {
	client := influxdb2.NewClient(conf.URL, conf.Token)
	return &InfluxSink{
		WriteAPI: client.WriteAPIBlocking(conf.Org, conf.Bucket),
		DeviceID: deviceID,
		Now:      time.Now,
		client:   client,
	}
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Point converts resp to a point, nil if resp isn't a measurement.
func (s *InfluxSink) Point(resp msgs.Response, at time.Time) *write.Point {
	tags := map[string]string{"device": s.DeviceID}
	fields := make(map[string]interface{})
	switch m := resp.(type) {
	case msgs.SensorData:
		if m.Temperature.Valid {
			fields["temperature"] = m.Temperature.Value
		}
		if m.Humidity.Valid {
			fields["humidity"] = m.Humidity.Value
		}
		fields["motor_speed"] = m.MotorSpeed
		fields["motor_running"] = m.MotorRunning
		fields["device_millis"] = int64(m.Timestamp)
	case msgs.Status:
		fields["uptime"] = int64(m.Uptime)
		fields["free_memory"] = m.FreeMemory
		fields["dht22_connected"] = m.DHT22Connected
		fields["motor_speed"] = m.MotorSpeed
		fields["motor_running"] = m.MotorRunning
	default:
		return nil
	}
	return influxdb2.NewPoint(string(resp.Kind()), tags, fields, at)
}

// Publish implements Sink.
func (s *InfluxSink) Publish(ctx context.Context, resp msgs.Response) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	point := s.Point(resp, now())
	if point == nil {
		return nil
	}
	return s.WriteAPI.WritePoint(ctx, point)
}
