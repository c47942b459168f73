package msgs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Sentinel is the wire value of a failed sensor reading.
const Sentinel = -999

// Reply and error messages.
const (
	MsgParseFailed    = "JSON parsing failed"
	MsgUnknownCommand = "Unknown command"
	MsgLEDChanged     = "LED state changed"
	MsgMotorChanged   = "Motor state changed"
	MsgMotorStopped   = "Motor stopped"
)

// Startup banner lines, plain text, sent once at boot.
var Banner = []string{
	"Arduino Ready for Raspberry Pi Communication",
	"DHT22 Sensor and DC Motor Control Available",
}

// IsBanner tells whether line is one of the startup banner lines.
func IsBanner(line []byte) bool {
	line = bytes.TrimSpace(line)
	for _, b := range Banner {
		if string(line) == b {
			return true
		}
	}
	return false
}

// Kind discriminates responses.
type Kind string

// Response kinds.
const (
	KindSensorData Kind = "sensor_data"
	KindStatus     Kind = "status"
	KindReply      Kind = "response"
	KindError      Kind = "error"
)

// Response is a message sent by the device.
type Response interface {
	Kind() Kind
}

var (
	// ErrUnknownResponse indicates a JSON object of none of the known shapes.
	ErrUnknownResponse = errors.New("unknown response")
)

// Reading is a sensor value which may have failed.
type Reading struct {
	Value float64
	Valid bool
}

// ReadingOf converts a driver value, NaN meaning failure.
func ReadingOf(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// Wire returns the value as sent, Sentinel if failed.
func (r Reading) Wire() float64 {
	if !r.Valid {
		return Sentinel
	}
	return r.Value
}

// String implements fmt.Stringer.
func (r Reading) String() string {
	if !r.Valid {
		return "error"
	}
	return fmt.Sprintf("%.1f", r.Value)
}

// MarshalJSON implements json.Marshaler.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == Sentinel {
		*r = Reading{}
	} else {
		*r = Reading{Value: v, Valid: true}
	}
	return nil
}

// SensorData is a snapshot of the sensor readings and motor state.
type SensorData struct {
	Temperature  Reading `json:"temperature"`
	Humidity     Reading `json:"humidity"`
	MotorSpeed   int     `json:"motor_speed"`
	MotorRunning bool    `json:"motor_running"`
	Timestamp    uint64  `json:"timestamp"`
}

// Kind implements Response.
func (SensorData) Kind() Kind { return KindSensorData }

// MarshalJSON implements json.Marshaler.
func (m SensorData) MarshalJSON() ([]byte, error) {
	type plain SensorData
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindSensorData, plain(m)})
}

// Status reports device health.
type Status struct {
	Uptime         uint64 `json:"uptime"`
	FreeMemory     int    `json:"free_memory"`
	ArduinoReady   bool   `json:"arduino_ready"`
	DHT22Connected bool   `json:"dht22_connected"`
	MotorSpeed     int    `json:"motor_speed"`
	MotorRunning   bool   `json:"motor_running"`
}

// Kind implements Response.
func (Status) Kind() Kind { return KindStatus }

// MarshalJSON implements json.Marshaler.
func (m Status) MarshalJSON() ([]byte, error) {
	type plain Status
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindStatus, plain(m)})
}

// Reply acknowledges an actuator command.
type Reply struct {
	Message string `json:"response"`
}

// Kind implements Response.
func (Reply) Kind() Kind { return KindReply }

// Error reports a command which could not be executed.
type Error struct {
	Message string `json:"error"`
}

// Kind implements Response.
func (Error) Kind() Kind { return KindError }

// Error implements error.
func (e Error) Error() string { return e.Message }

// Encode serializes a response without the terminator.
func Encode(resp Response) ([]byte, error) {
	switch resp.(type) {
	case SensorData, *SensorData, Status, *Status, Reply, *Reply, Error, *Error:
		return json.Marshal(resp)
	}
	return nil, fmt.Errorf("encode %T: %w", resp, ErrUnknownResponse)
}

// Decode parses a line sent by the device.
func Decode(line []byte) (Response, error) {
	var probe struct {
		Type     *string `json:"type"`
		Response *string `json:"response"`
		Error    *string `json:"error"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	switch {
	case probe.Type != nil && Kind(*probe.Type) == KindSensorData:
		var m SensorData
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, err
		}
		return m, nil
	case probe.Type != nil && Kind(*probe.Type) == KindStatus:
		var m Status
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, err
		}
		return m, nil
	case probe.Response != nil:
		return Reply{Message: *probe.Response}, nil
	case probe.Error != nil:
		return Error{Message: *probe.Error}, nil
	}
	return nil, ErrUnknownResponse
}
