package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// Format is the payload encoding of published messages.
type Format string

// Payload formats.
const (
	// FormatJSON publishes the line exactly as the device sent it.
	FormatJSON Format = "json"
	// FormatProto publishes a serialized google.protobuf.Struct.
	FormatProto Format = "proto"
)

// ParseFormat validates a format name, empty meaning JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatProto:
		return FormatProto, nil
	}
	return "", fmt.Errorf("unknown payload format %q", s)
}

// Encode serializes resp in format f.
func (f Format) Encode(resp msgs.Response) ([]byte, error) {
	if f == FormatProto {
		return proto.Marshal(Struct(resp))
	}
	return msgs.Encode(resp)
}

// Decode parses a payload produced by Encode.
func (f Format) Decode(payload []byte) (msgs.Response, error) {
	if f != FormatProto {
		return msgs.Decode(payload)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	fields := s.AsMap()
	for key, val := range fields {
		if val == nil {
			fields[key] = msgs.Sentinel
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return msgs.Decode(data)
}

func number(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

func boolean(v bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: v}}
}

func str(v string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v}}
}

// reading is null when the sensor read failed.
func reading(r msgs.Reading) *structpb.Value {
	if !r.Valid {
		return &structpb.Value{Kind: &structpb.Value_NullValue{}}
	}
	return number(r.Value)
}

// Struct converts resp to a protobuf Struct with the same keys as the wire
// JSON. Failed readings become null instead of the sentinel.
func Struct(resp msgs.Response) *structpb.Struct {
	fields := map[string]*structpb.Value{}
	switch m := resp.(type) {
	case msgs.SensorData:
		fields["type"] = str(string(msgs.KindSensorData))
		fields["temperature"] = reading(m.Temperature)
		fields["humidity"] = reading(m.Humidity)
		fields["motor_speed"] = number(float64(m.MotorSpeed))
		fields["motor_running"] = boolean(m.MotorRunning)
		fields["timestamp"] = number(float64(m.Timestamp))
	case msgs.Status:
		fields["type"] = str(string(msgs.KindStatus))
		fields["uptime"] = number(float64(m.Uptime))
		fields["free_memory"] = number(float64(m.FreeMemory))
		fields["arduino_ready"] = boolean(m.ArduinoReady)
		fields["dht22_connected"] = boolean(m.DHT22Connected)
		fields["motor_speed"] = number(float64(m.MotorSpeed))
		fields["motor_running"] = boolean(m.MotorRunning)
	case msgs.Reply:
		fields["response"] = str(m.Message)
	case msgs.Error:
		fields["error"] = str(m.Message)
	}
	return &structpb.Struct{Fields: fields}
}
