package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/motorsense/pkg/framework"
	"github.com/robotalks/motorsense/pkg/l0/comm"
	"github.com/robotalks/motorsense/pkg/l0/driver"
	"github.com/robotalks/motorsense/pkg/l0/driver/sim"
	"github.com/robotalks/motorsense/pkg/l0/firmware"
	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// scriptedDevice is the far end of the link, driven by the test.
type scriptedDevice struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (d *scriptedDevice) expect(line string) {
	got, err := d.r.ReadString('\n')
	require.NoError(d.t, err)
	require.Equal(d.t, line+"\n", got)
}

func (d *scriptedDevice) send(line string) {
	_, err := d.conn.Write([]byte(line + "\n"))
	require.NoError(d.t, err)
}

func newScripted(t *testing.T) (*Client, *scriptedDevice, context.CancelFunc) {
	local, remote := net.Pipe()
	c := New(local)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		remote.Close()
	})
	return c, &scriptedDevice{t: t, conn: remote, r: bufio.NewReader(remote)}, cancel
}

type callResult struct {
	resp msgs.Response
	err  error
}

func doAsync(c *Client, cmd *msgs.Command) <-chan callResult {
	return doAsyncCtx(context.Background(), c, cmd)
}

func doAsyncCtx(ctx context.Context, c *Client, cmd *msgs.Command) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		resp, err := c.Do(ctx, cmd)
		ch <- callResult{resp, err}
	}()
	return ch
}

func TestReplyAndBanner(t *testing.T) {
	c, dev, _ := newScripted(t)
	dev.send(msgs.Banner[0])
	resCh := doAsync(c, msgs.NewSetLED(1))
	dev.expect(`{"command":"set_led","state":1}`)
	dev.send(`{"response": "LED state changed"}`)
	res := <-resCh
	require.NoError(t, res.err)
	require.Equal(t, msgs.Reply{Message: msgs.MsgLEDChanged}, res.resp)
	require.Empty(t, c.Events())
}

func TestBroadcastBecomesEvent(t *testing.T) {
	c, dev, _ := newScripted(t)
	handled := make(chan msgs.Response, 1)
	c.Handler = HandlerFunc(func(resp msgs.Response) { handled <- resp })

	resCh := doAsync(c, msgs.NewGetStatus())
	dev.expect(`{"command":"get_status"}`)
	dev.send(`{"type":"sensor_data","temperature":-999,"humidity":40,"motor_speed":0,"motor_running":false,"timestamp":3000}`)
	dev.send(`{"type":"status","uptime":3001,"free_memory":1500,"arduino_ready":true,"dht22_connected":false,"motor_speed":0,"motor_running":false}` + "\r")

	res := <-resCh
	require.NoError(t, res.err)
	require.Equal(t, msgs.Status{Uptime: 3001, FreeMemory: 1500, ArduinoReady: true}, res.resp)

	ev := <-c.Events()
	data := ev.(msgs.SensorData)
	require.False(t, data.Temperature.Valid)
	require.Equal(t, 40.0, data.Humidity.Value)
	require.Equal(t, ev, <-handled)
}

func TestDeviceError(t *testing.T) {
	c, dev, _ := newScripted(t)
	resCh := doAsync(c, &msgs.Command{Name: "frobnicate"})
	dev.expect(`{"command":"frobnicate"}`)
	dev.send(`{"error": "Unknown command"}`)
	res := <-resCh
	var devErr *DeviceError
	require.True(t, errors.As(res.err, &devErr))
	require.Equal(t, msgs.MsgUnknownCommand, devErr.Message)
}

func TestCommandsInOrder(t *testing.T) {
	c, dev, _ := newScripted(t)
	ledCh := doAsync(c, msgs.NewSetLED(0))
	dev.expect(`{"command":"set_led","state":0}`)
	motorCh := doAsync(c, msgs.NewStopMotor())
	dev.expect(`{"command":"stop_motor"}`)
	dev.send(`{"response": "LED state changed"}`)
	dev.send(`{"response": "Motor stopped"}`)
	require.Equal(t, msgs.Reply{Message: msgs.MsgLEDChanged}, (<-ledCh).resp)
	require.Equal(t, msgs.Reply{Message: msgs.MsgMotorStopped}, (<-motorCh).resp)
}

func TestTimeoutAndClose(t *testing.T) {
	c, dev, cancel := newScripted(t)
	ctx, cancelCall := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelCall()
	resCh := doAsyncCtx(ctx, c, msgs.NewStopMotor())
	dev.expect(`{"command":"stop_motor"}`)
	require.Equal(t, context.DeadlineExceeded, (<-resCh).err)

	// the late reply has no owner any more
	dev.send(`{"response": "Motor stopped"}`)
	select {
	case ev := <-c.Events():
		require.Equal(t, msgs.Reply{Message: msgs.MsgMotorStopped}, ev)
	case <-time.After(time.Second):
		t.Fatal("late reply not delivered as event")
	}

	resCh = doAsync(c, msgs.NewGetStatus())
	dev.expect(`{"command":"get_status"}`)
	cancel()
	require.Equal(t, ErrClosed, (<-resCh).err)
	_, err := c.Do(context.Background(), msgs.NewGetStatus())
	require.Equal(t, ErrClosed, err)
}

func TestEventsDropOldest(t *testing.T) {
	c := New(nil)
	for i := 0; i < DefaultEventBuffer+3; i++ {
		c.emit(msgs.SensorData{Timestamp: uint64(i)})
	}
	require.EqualValues(t, 3, c.DroppedEvents())
	first := <-c.Events()
	require.EqualValues(t, 3, first.(msgs.SensorData).Timestamp)
}

func TestWithDevice(t *testing.T) {
	local, remote := net.Pipe()
	clock := framework.NewMonotonicClock()
	board, sensor, pins := sim.NewBoard(clock)
	board.Memory = sim.FixedMemory(1500)
	link := comm.NewFIFO(remote)
	conf := firmware.Config{BroadcastInterval: time.Hour, BytesPerIteration: 64, EventDriven: true}
	dev := firmware.NewDevice(board, link, conf)
	loop := conf.NewLoop()
	loop.Add(dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(local)
	go c.Run(ctx)
	dev.Boot()
	go loop.Run(ctx)

	require.NoError(t, c.SetMotor(ctx, 300, 1))
	require.EqualValues(t, 255, pins.Analog(driver.PinMotorEnable))

	sensor.FailNext(true, false)
	data, err := c.GetSensorData(ctx)
	require.NoError(t, err)
	require.False(t, data.Temperature.Valid)
	require.True(t, data.Humidity.Valid)
	require.Equal(t, 255, data.MotorSpeed)
	require.True(t, data.MotorRunning)

	status, err := c.GetStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.DHT22Connected)
	require.Equal(t, 1500, status.FreeMemory)

	require.NoError(t, c.SetLED(ctx, 1))
	require.NoError(t, c.StopMotor(ctx))
	require.EqualValues(t, 0, pins.Analog(driver.PinMotorEnable))

	_, err = c.Do(ctx, &msgs.Command{Name: msgs.CmdSetLED})
	require.Error(t, err)
}
