package firmware

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/motorsense/pkg/framework"
	"github.com/robotalks/motorsense/pkg/l0/comm"
	"github.com/robotalks/motorsense/pkg/l0/driver"
	"github.com/robotalks/motorsense/pkg/l0/driver/sim"
	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

type stubSensor struct {
	temp, hum float64
	reads     int
}

func (s *stubSensor) ReadTemperature() float64 {
	s.reads++
	return s.temp
}

func (s *stubSensor) ReadHumidity() float64 {
	s.reads++
	return s.hum
}

// pipeLink reads from a pipe and records everything written.
type pipeLink struct {
	*io.PipeReader

	lock sync.Mutex
	out  bytes.Buffer
	seen int
}

func (l *pipeLink) Write(p []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.out.Write(p)
}

// take returns the lines written since the last call.
func (l *pipeLink) take() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	data := l.out.String()[l.seen:]
	l.seen += len(data)
	lines := strings.Split(data, "\n")
	return lines[:len(lines)-1]
}

type harness struct {
	t      *testing.T
	dev    *Device
	loop   *framework.Loop
	clock  *sim.ManualClock
	sensor *stubSensor
	pins   *sim.PinBank
	link   *comm.FIFO
	out    *pipeLink
	pw     *io.PipeWriter
}

func newHarness(t *testing.T, conf Config) *harness {
	h := &harness{t: t, clock: &sim.ManualClock{}, sensor: &stubSensor{temp: 23.5, hum: 40.1}}
	board, _, pins := sim.NewBoard(h.clock)
	board.Sensor = h.sensor
	board.Memory = sim.FixedMemory(1500)
	h.pins = pins

	pr, pw := io.Pipe()
	h.pw = pw
	h.out = &pipeLink{PipeReader: pr}
	h.link = comm.NewFIFOWithBuffer(h.out, 4096)
	h.dev = NewDevice(board, h.link, conf)
	h.loop = framework.NewLoop()
	h.loop.Add(h.dev)

	ctx, cancel := context.WithCancel(context.Background())
	// an event driven loop runs the receiver itself
	if !conf.EventDriven {
		go h.link.Run(ctx)
	}
	t.Cleanup(func() {
		cancel()
		pw.Close()
	})
	h.dev.Boot()
	return h
}

func (h *harness) feed(s string) {
	expected := h.link.Buffered() + len(s)
	_, err := h.pw.Write([]byte(s))
	require.NoError(h.t, err)
	require.Eventually(h.t, func() bool {
		return h.link.Buffered() == expected
	}, time.Second, time.Millisecond)
}

func (h *harness) step(n int) {
	for i := 0; i < n; i++ {
		h.loop.RunOnce(context.Background())
	}
}

func (h *harness) drain() {
	for i := 0; h.link.Available() && i < 10000; i++ {
		h.step(1)
	}
}

func testConfig() Config {
	return Config{BroadcastInterval: DefaultBroadcastInterval, BytesPerIteration: 1}
}

func TestBoot(t *testing.T) {
	h := newHarness(t, testConfig())
	require.Equal(t, msgs.Banner, h.out.take())
	require.Equal(t, driver.Low, h.pins.Digital(driver.PinMotorIn1))
	require.Equal(t, driver.Low, h.pins.Digital(driver.PinMotorIn2))
	require.EqualValues(t, 0, h.pins.Analog(driver.PinMotorEnable))

	snap := h.dev.Snapshot()
	require.True(t, snap.SensorConnected())
	require.Equal(t, 0.0, snap.Temperature.Value)
	require.Zero(t, snap.MotorSpeed)
	require.False(t, snap.MotorRunning)
}

func TestDispatch(t *testing.T) {
	testCases := []struct {
		name   string
		line   string
		expect msgs.Response
	}{
		{"not json", `not json`, msgs.Error{Message: msgs.MsgParseFailed}},
		{"empty", ``, msgs.Error{Message: msgs.MsgParseFailed}},
		{"unknown", `{"command":"frobnicate"}`, msgs.Error{Message: msgs.MsgUnknownCommand}},
		{"case sensitive", `{"command":"GET_STATUS"}`, msgs.Error{Message: msgs.MsgUnknownCommand}},
		{"no command", `{"state":1}`, msgs.Error{Message: msgs.MsgUnknownCommand}},
		{"not an object", `42`, msgs.Error{Message: msgs.MsgUnknownCommand}},
		{"led without state", `{"command":"set_led"}`, msgs.Error{Message: msgs.MsgUnknownCommand}},
		{"motor without direction", `{"command":"set_motor","speed":10}`, msgs.Error{Message: msgs.MsgUnknownCommand}},
		{"set_led", `{"command":"set_led","state":1}`, msgs.Reply{Message: msgs.MsgLEDChanged}},
		{"set_motor", `{"command":"set_motor","speed":10,"direction":1}`, msgs.Reply{Message: msgs.MsgMotorChanged}},
		{"stop_motor", `{"command":"stop_motor"}`, msgs.Reply{Message: msgs.MsgMotorStopped}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			require.Equal(t, tc.expect, h.dev.Dispatch([]byte(tc.line)))
		})
	}
}

func TestDispatchErrorsLeaveStateAlone(t *testing.T) {
	h := newHarness(t, testConfig())
	h.dev.Dispatch([]byte(`{"command":"set_motor","speed":100,"direction":1}`))
	writes := h.pins.Writes()
	before := h.dev.Snapshot()
	for _, line := range []string{`not json`, `{"command":"frobnicate"}`, `{"command":"set_motor","speed":1}`} {
		_, isErr := h.dev.Dispatch([]byte(line)).(msgs.Error)
		require.True(t, isErr)
	}
	require.Equal(t, writes, h.pins.Writes())
	require.Equal(t, before, h.dev.Snapshot())
	stats := h.dev.Stats()
	require.EqualValues(t, 1, stats.ParseErrors)
	require.EqualValues(t, 2, stats.UnknownCommands)
	require.EqualValues(t, 1, stats.Commands[msgs.CmdSetMotor])
}

func TestSetLED(t *testing.T) {
	h := newHarness(t, testConfig())
	h.dev.Dispatch([]byte(`{"command":"set_led","state":1}`))
	require.Equal(t, driver.High, h.pins.Digital(driver.PinLED))
	h.dev.Dispatch([]byte(`{"command":"set_led","state":0}`))
	require.Equal(t, driver.Low, h.pins.Digital(driver.PinLED))
	h.dev.Dispatch([]byte(`{"command":"set_led","state":7}`))
	require.Equal(t, driver.High, h.pins.Digital(driver.PinLED))
}

func TestSetMotor(t *testing.T) {
	testCases := []struct {
		name      string
		speed     int
		direction int
		in1, in2  driver.Level
		pwm       uint8
		running   bool
	}{
		{"forward", 200, 1, driver.High, driver.Low, 200, true},
		{"reverse", 120, -1, driver.Low, driver.High, 120, true},
		{"clamp high", 300, 1, driver.High, driver.Low, 255, true},
		{"clamp low", -50, 1, driver.High, driver.Low, 0, false},
		{"other direction is reverse", 80, 7, driver.Low, driver.High, 80, true},
		{"zero direction stops", 200, 0, driver.Low, driver.Low, 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.dev.Dispatch([]byte(`{"command":"set_motor","speed":50,"direction":1}`))
			resp := h.dev.Dispatch(msgsLine(t, msgs.NewSetMotor(tc.speed, tc.direction)))
			require.Equal(t, msgs.Reply{Message: msgs.MsgMotorChanged}, resp)
			require.Equal(t, tc.in1, h.pins.Digital(driver.PinMotorIn1))
			require.Equal(t, tc.in2, h.pins.Digital(driver.PinMotorIn2))
			require.Equal(t, tc.pwm, h.pins.Analog(driver.PinMotorEnable))
			snap := h.dev.Snapshot()
			require.Equal(t, int(tc.pwm), snap.MotorSpeed)
			require.Equal(t, tc.running, snap.MotorRunning)
		})
	}
}

func TestSetMotorOutOfRangeSpeed(t *testing.T) {
	h := newHarness(t, testConfig())
	resp := h.dev.Dispatch([]byte(`{"command":"set_motor","speed":1e10,"direction":1}`))
	require.Equal(t, msgs.Reply{Message: msgs.MsgMotorChanged}, resp)
	require.Equal(t, uint8(255), h.pins.Analog(driver.PinMotorEnable))
	resp = h.dev.Dispatch([]byte(`{"command":"set_motor","speed":-1e10,"direction":1}`))
	require.Equal(t, msgs.Reply{Message: msgs.MsgMotorChanged}, resp)
	require.Equal(t, uint8(0), h.pins.Analog(driver.PinMotorEnable))
	require.False(t, h.dev.Snapshot().MotorRunning)
}

func TestStopMotorIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.dev.Dispatch([]byte(`{"command":"set_motor","speed":200,"direction":-1}`))
	for i := 0; i < 2; i++ {
		require.Equal(t, msgs.Reply{Message: msgs.MsgMotorStopped}, h.dev.Dispatch([]byte(`{"command":"stop_motor"}`)))
		require.Equal(t, driver.Low, h.pins.Digital(driver.PinMotorIn1))
		require.Equal(t, driver.Low, h.pins.Digital(driver.PinMotorIn2))
		require.EqualValues(t, 0, h.pins.Analog(driver.PinMotorEnable))
		require.Zero(t, h.dev.Snapshot().MotorSpeed)
		require.False(t, h.dev.Snapshot().MotorRunning)
	}
}

func TestSensorData(t *testing.T) {
	h := newHarness(t, testConfig())
	h.clock.Set(12345)
	resp := h.dev.Dispatch([]byte(`{"command":"get_sensor_data"}`))
	require.Equal(t, msgs.SensorData{
		Temperature: msgs.ReadingOf(23.5),
		Humidity:    msgs.ReadingOf(40.1),
		Timestamp:   12345,
	}, resp)
}

func TestSensorFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sensor.temp = math.NaN()
	data, err := msgs.Encode(h.dev.Dispatch([]byte(`{"command":"get_sensor_data"}`)))
	require.NoError(t, err)
	require.Contains(t, string(data), `"temperature":-999`)
	require.Contains(t, string(data), `"humidity":40.1`)

	status := h.dev.Dispatch([]byte(`{"command":"get_status"}`)).(msgs.Status)
	require.False(t, status.DHT22Connected)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, testConfig())
	h.clock.Set(12345)
	h.dev.Dispatch([]byte(`{"command":"set_motor","speed":90,"direction":1}`))
	require.Equal(t, msgs.Status{
		Uptime:         12345,
		FreeMemory:     1500,
		ArduinoReady:   true,
		DHT22Connected: true,
		MotorSpeed:     90,
		MotorRunning:   true,
	}, h.dev.Dispatch([]byte(`{"command":"get_status"}`)))
	require.Zero(t, h.sensor.reads)
}

func msgsLine(t *testing.T, cmd *msgs.Command) []byte {
	data, err := cmd.MarshalJSON()
	require.NoError(t, err)
	return data
}
