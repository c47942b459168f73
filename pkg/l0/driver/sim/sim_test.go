package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/motorsense/pkg/l0/driver"
)

func TestDHT22Walk(t *testing.T) {
	s := NewDHT22(22, 45)
	for i := 0; i < 1000; i++ {
		temp, hum := s.ReadTemperature(), s.ReadHumidity()
		require.False(t, math.IsNaN(temp))
		require.False(t, math.IsNaN(hum))
		require.True(t, temp >= -40 && temp <= 80)
		require.True(t, hum >= 0 && hum <= 100)
		require.InDelta(t, math.Round(temp*10)/10, temp, 1e-9)
	}
}

func TestDHT22FailNext(t *testing.T) {
	s := NewDHT22(22, 45)
	s.FailNext(true, false)
	require.True(t, math.IsNaN(s.ReadTemperature()))
	require.False(t, math.IsNaN(s.ReadHumidity()))
	require.False(t, math.IsNaN(s.ReadTemperature()))

	s.FailureRate = 1
	require.True(t, math.IsNaN(s.ReadTemperature()))
	require.True(t, math.IsNaN(s.ReadHumidity()))
}

func TestDHT22ZeroValue(t *testing.T) {
	var s DHT22
	require.False(t, math.IsNaN(s.ReadTemperature()))
}

func TestPinBank(t *testing.T) {
	b := NewPinBank()
	require.Equal(t, driver.Low, b.Digital(driver.PinLED))
	b.DigitalWrite(driver.PinLED, driver.High)
	b.AnalogWrite(driver.PinMotorEnable, 128)
	require.Equal(t, driver.High, b.Digital(driver.PinLED))
	require.EqualValues(t, 128, b.Analog(driver.PinMotorEnable))
	require.Equal(t, 2, b.Writes())
}

func TestManualClock(t *testing.T) {
	var c ManualClock
	require.Zero(t, c.Millis())
	c.Advance(1500 * time.Millisecond)
	require.EqualValues(t, 1500, c.Millis())
	c.Set(10)
	require.EqualValues(t, 10, c.Millis())
}

func TestMemory(t *testing.T) {
	require.Equal(t, 1500, FixedMemory(1500).FreeMemory())
	require.True(t, RuntimeMemory{}.FreeMemory() >= 0)
}
