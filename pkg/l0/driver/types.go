// Package driver defines the hardware facing contracts of the firmware.
// Implementations talk to the actual peripherals; the firmware only sees
// these narrow interfaces.
package driver

// Pin is a digital or PWM capable pin number.
type Pin uint8

// Level is a digital output level.
type Level bool

// Digital levels.
const (
	Low  Level = false
	High Level = true
)

// LevelOf converts the integer convention (0 low, anything else high).
func LevelOf(v int) Level {
	return v != 0
}

// Pin assignment of the board.
const (
	PinDHT         Pin = 2
	PinMotorIn1    Pin = 5
	PinMotorIn2    Pin = 6
	PinMotorEnable Pin = 9
	PinLED         Pin = 13
)

// DefaultBaudRate of the serial link.
const DefaultBaudRate = 115200

// Sensor reads the temperature/humidity sensor. Failed reads return NaN.
type Sensor interface {
	// ReadTemperature returns degrees Celsius.
	ReadTemperature() float64
	// ReadHumidity returns relative humidity in percent.
	ReadHumidity() float64
}

// Pins drives output pins.
type Pins interface {
	DigitalWrite(pin Pin, level Level)
	// AnalogWrite sets the PWM duty cycle, 0-255.
	AnalogWrite(pin Pin, value uint8)
}

// MemoryProbe reports free memory in bytes.
type MemoryProbe interface {
	FreeMemory() int
}

// Clock is a monotonic millisecond counter starting at boot.
type Clock interface {
	Millis() uint64
}

// Board bundles all drivers the firmware needs.
type Board struct {
	Sensor Sensor
	Pins   Pins
	Memory MemoryProbe
	Clock  Clock
}
