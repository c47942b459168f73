package msgs

import (
	"encoding/json"
	"errors"
	"math"
)

// Command tags.
const (
	CmdGetSensorData = "get_sensor_data"
	CmdSetLED        = "set_led"
	CmdSetMotor      = "set_motor"
	CmdStopMotor     = "stop_motor"
	CmdGetStatus     = "get_status"
)

// Direction of the motor in set_motor.
const (
	DirectionReverse = -1
	DirectionStop    = 0
	DirectionForward = 1
)

var (
	// ErrSyntax indicates the line is not valid JSON.
	ErrSyntax = errors.New("malformed JSON")
)

// Command is a parsed host command. Optional fields are nil when absent or
// not numeric.
type Command struct {
	Name      string
	State     *int
	Speed     *int
	Direction *int
}

type commandWire struct {
	Command   string `json:"command"`
	State     *int   `json:"state,omitempty"`
	Speed     *int   `json:"speed,omitempty"`
	Direction *int   `json:"direction,omitempty"`
}

// NewGetSensorData creates a get_sensor_data command.
func NewGetSensorData() *Command { return &Command{Name: CmdGetSensorData} }

// NewSetLED creates a set_led command.
func NewSetLED(state int) *Command { return &Command{Name: CmdSetLED, State: &state} }

// NewSetMotor creates a set_motor command.
func NewSetMotor(speed, direction int) *Command {
	return &Command{Name: CmdSetMotor, Speed: &speed, Direction: &direction}
}

// NewStopMotor creates a stop_motor command.
func NewStopMotor() *Command { return &Command{Name: CmdStopMotor} }

// NewGetStatus creates a get_status command.
func NewGetStatus() *Command { return &Command{Name: CmdGetStatus} }

// MarshalJSON implements json.Marshaler.
func (c *Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(&commandWire{
		Command:   c.Name,
		State:     c.State,
		Speed:     c.Speed,
		Direction: c.Direction,
	})
}

// ParseCommand parses one line. It fails only when the line isn't valid
// JSON. Anything else that is not a usable command (not an object, no
// "command" string, non-numeric fields) is reported through an empty Name
// or nil fields, leaving the decision to the dispatcher.
func ParseCommand(line []byte) (*Command, error) {
	if !json.Valid(line) {
		return nil, ErrSyntax
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return &Command{}, nil
	}
	cmd := &Command{}
	if raw, ok := fields["command"]; ok {
		var name string
		if json.Unmarshal(raw, &name) == nil {
			cmd.Name = name
		}
	}
	cmd.State = intField(fields, "state")
	cmd.Speed = intField(fields, "speed")
	cmd.Direction = intField(fields, "direction")
	return cmd, nil
}

// intField reads a numeric field, truncating fractions toward zero and
// saturating at the int32 range.
func intField(fields map[string]json.RawMessage, key string) *int {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	var n int
	switch {
	case math.IsNaN(f):
		return nil
	case f > math.MaxInt32:
		n = math.MaxInt32
	case f < math.MinInt32:
		n = math.MinInt32
	default:
		n = int(f)
	}
	return &n
}
