// Package sim provides simulated drivers so the firmware can run on a
// regular host, and be tested.
package sim

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/robotalks/motorsense/pkg/l0/driver"
)

// DHT22 simulates a DHT22: slow random walk around a base value with
// 0.1 resolution, and optional injected failures.
type DHT22 struct {
	Temperature float64
	Humidity    float64
	// FailureRate is the probability in [0, 1] of a single read failing.
	FailureRate float64

	rnd  *rand.Rand
	lock sync.Mutex
	// forced failures, consumed by reads
	failTemp, failHum bool
}

// NewDHT22 creates a simulated sensor starting at the given values.
func NewDHT22(temperature, humidity float64) *DHT22 {
	return &DHT22{
		Temperature: temperature,
		Humidity:    humidity,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FailNext forces the next temperature and/or humidity read to fail.
func (s *DHT22) FailNext(temperature, humidity bool) {
	s.lock.Lock()
	s.failTemp, s.failHum = temperature, humidity
	s.lock.Unlock()
}

// ReadTemperature implements driver.Sensor.
func (s *DHT22) ReadTemperature() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.failed(&s.failTemp) {
		return math.NaN()
	}
	s.Temperature = s.walk(s.Temperature, -40, 80)
	return s.Temperature
}

// ReadHumidity implements driver.Sensor.
func (s *DHT22) ReadHumidity() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.failed(&s.failHum) {
		return math.NaN()
	}
	s.Humidity = s.walk(s.Humidity, 0, 100)
	return s.Humidity
}

func (s *DHT22) failed(forced *bool) bool {
	if *forced {
		*forced = false
		return true
	}
	return s.FailureRate > 0 && s.random().Float64() < s.FailureRate
}

func (s *DHT22) walk(v, min, max float64) float64 {
	v += (s.random().Float64() - 0.5) * 0.2
	v = math.Max(min, math.Min(max, v))
	return math.Round(v*10) / 10
}

func (s *DHT22) random() *rand.Rand {
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(1))
	}
	return s.rnd
}

// PinBank records the last value written to each pin.
type PinBank struct {
	lock    sync.Mutex
	digital map[driver.Pin]driver.Level
	analog  map[driver.Pin]uint8
	writes  int
}

// NewPinBank creates an empty PinBank, all pins low.
func NewPinBank() *PinBank {
	return &PinBank{
		digital: make(map[driver.Pin]driver.Level),
		analog:  make(map[driver.Pin]uint8),
	}
}

// DigitalWrite implements driver.Pins.
func (b *PinBank) DigitalWrite(pin driver.Pin, level driver.Level) {
	b.lock.Lock()
	b.digital[pin] = level
	b.writes++
	b.lock.Unlock()
}

// AnalogWrite implements driver.Pins.
func (b *PinBank) AnalogWrite(pin driver.Pin, value uint8) {
	b.lock.Lock()
	b.analog[pin] = value
	b.writes++
	b.lock.Unlock()
}

// Digital returns the level last written to pin.
func (b *PinBank) Digital(pin driver.Pin) driver.Level {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.digital[pin]
}

// Analog returns the PWM value last written to pin.
func (b *PinBank) Analog(pin driver.Pin) uint8 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.analog[pin]
}

// Writes returns the number of writes so far.
func (b *PinBank) Writes() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.writes
}

// RuntimeMemory reports memory the Go heap could still use before the
// next GC target, as the closest analogue of free SRAM.
type RuntimeMemory struct{}

// FreeMemory implements driver.MemoryProbe.
func (RuntimeMemory) FreeMemory() int {
	var st runtime.MemStats
	runtime.ReadMemStats(&st)
	if st.NextGC <= st.HeapAlloc {
		return 0
	}
	return int(st.NextGC - st.HeapAlloc)
}

// FixedMemory always reports the same amount.
type FixedMemory int

// FreeMemory implements driver.MemoryProbe.
func (m FixedMemory) FreeMemory() int { return int(m) }

// ManualClock only moves when told to.
type ManualClock struct {
	lock sync.Mutex
	now  uint64
}

// Millis implements driver.Clock.
func (c *ManualClock) Millis() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now += uint64(d / time.Millisecond)
	c.lock.Unlock()
}

// Set moves the clock to ms.
func (c *ManualClock) Set(ms uint64) {
	c.lock.Lock()
	c.now = ms
	c.lock.Unlock()
}

// NewBoard wires simulated drivers around clock.
func NewBoard(clock driver.Clock) (driver.Board, *DHT22, *PinBank) {
	sensor := NewDHT22(22.0, 45.0)
	pins := NewPinBank()
	return driver.Board{
		Sensor: sensor,
		Pins:   pins,
		Memory: RuntimeMemory{},
		Clock:  clock,
	}, sensor, pins
}
