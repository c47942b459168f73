package firmware

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/l0/comm"
	"github.com/robotalks/motorsense/pkg/l0/driver"
	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// MaxSpeed is the highest PWM duty cycle.
const MaxSpeed = 255

// Snapshot is the latest known sensor readings and motor state.
type Snapshot struct {
	Temperature  msgs.Reading
	Humidity     msgs.Reading
	MotorSpeed   int
	MotorRunning bool
	// Timestamp is the clock reading of the last sensor refresh.
	Timestamp uint64
}

// SensorConnected tells whether neither reading failed.
func (s Snapshot) SensorConnected() bool {
	return s.Temperature.Valid && s.Humidity.Valid
}

// Device is the firmware context: it owns the snapshot, the line parser and
// the drivers. Except Stats, it must only be used from the loop goroutine.
type Device struct {
	Config

	board    driver.Board
	link     *comm.FIFO
	parser   *comm.Parser
	snapshot Snapshot

	lastBroadcast uint64

	statsLock sync.Mutex
	stats     Stats
}

// NewDevice creates a Device on the board, talking through link.
func NewDevice(board driver.Board, link *comm.FIFO, conf Config) *Device {
	return &Device{
		Config: conf,
		board:  board,
		link:   link,
		parser: comm.NewParser(conf.lineCapacity()),
		stats:  Stats{Commands: make(map[string]uint64)},
	}
}

// Boot puts the hardware in a known state and announces readiness.
func (d *Device) Boot() {
	d.stopMotor()
	d.snapshot = Snapshot{
		Temperature: msgs.ReadingOf(0),
		Humidity:    msgs.ReadingOf(0),
		Timestamp:   d.board.Clock.Millis(),
	}
	for _, line := range msgs.Banner {
		d.writeLine([]byte(line))
	}
	glog.Infof("device booted, line capacity %d", d.parser.Capacity())
}

// Snapshot returns the current snapshot.
func (d *Device) Snapshot() Snapshot {
	return d.snapshot
}

// Dispatch executes one command line and returns the response to send.
// It never fails: malformed or unknown input yields an Error response.
func (d *Device) Dispatch(line []byte) msgs.Response {
	cmd, err := msgs.ParseCommand(line)
	if err != nil {
		d.count(func(s *Stats) { s.ParseErrors++ })
		return msgs.Error{Message: msgs.MsgParseFailed}
	}

	var resp msgs.Response
	switch cmd.Name {
	case msgs.CmdGetSensorData:
		d.refresh()
		resp = d.sensorData()
	case msgs.CmdSetLED:
		if cmd.State != nil {
			d.board.Pins.DigitalWrite(driver.PinLED, driver.LevelOf(*cmd.State))
			resp = msgs.Reply{Message: msgs.MsgLEDChanged}
		}
	case msgs.CmdSetMotor:
		if cmd.Speed != nil && cmd.Direction != nil {
			d.setMotor(*cmd.Speed, *cmd.Direction)
			resp = msgs.Reply{Message: msgs.MsgMotorChanged}
		}
	case msgs.CmdStopMotor:
		d.stopMotor()
		resp = msgs.Reply{Message: msgs.MsgMotorStopped}
	case msgs.CmdGetStatus:
		resp = d.status()
	}

	if resp == nil {
		d.count(func(s *Stats) { s.UnknownCommands++ })
		glog.V(2).Infof("unknown command %q", line)
		return msgs.Error{Message: msgs.MsgUnknownCommand}
	}
	d.count(func(s *Stats) { s.Commands[cmd.Name]++ })
	return resp
}

func (d *Device) refresh() {
	d.snapshot.Temperature = msgs.ReadingOf(d.board.Sensor.ReadTemperature())
	d.snapshot.Humidity = msgs.ReadingOf(d.board.Sensor.ReadHumidity())
	d.snapshot.Timestamp = d.board.Clock.Millis()
}

func (d *Device) sensorData() msgs.SensorData {
	return msgs.SensorData{
		Temperature:  d.snapshot.Temperature,
		Humidity:     d.snapshot.Humidity,
		MotorSpeed:   d.snapshot.MotorSpeed,
		MotorRunning: d.snapshot.MotorRunning,
		Timestamp:    d.snapshot.Timestamp,
	}
}

func (d *Device) status() msgs.Status {
	return msgs.Status{
		Uptime:         d.board.Clock.Millis(),
		FreeMemory:     d.board.Memory.FreeMemory(),
		ArduinoReady:   true,
		DHT22Connected: d.snapshot.SensorConnected(),
		MotorSpeed:     d.snapshot.MotorSpeed,
		MotorRunning:   d.snapshot.MotorRunning,
	}
}

// setMotor drives the H-bridge. Direction 0 stops, 1 is forward and any
// other value is reverse.
func (d *Device) setMotor(speed, direction int) {
	if speed < 0 {
		speed = 0
	} else if speed > MaxSpeed {
		speed = MaxSpeed
	}
	if direction == msgs.DirectionStop {
		d.stopMotor()
		return
	}
	forward := direction == msgs.DirectionForward
	d.board.Pins.DigitalWrite(driver.PinMotorIn1, driver.Level(forward))
	d.board.Pins.DigitalWrite(driver.PinMotorIn2, driver.Level(!forward))
	d.board.Pins.AnalogWrite(driver.PinMotorEnable, uint8(speed))
	d.snapshot.MotorSpeed = speed
	d.snapshot.MotorRunning = speed > 0
}

func (d *Device) stopMotor() {
	d.board.Pins.DigitalWrite(driver.PinMotorIn1, driver.Low)
	d.board.Pins.DigitalWrite(driver.PinMotorIn2, driver.Low)
	d.board.Pins.AnalogWrite(driver.PinMotorEnable, 0)
	d.snapshot.MotorSpeed = 0
	d.snapshot.MotorRunning = false
}

// respond encodes resp and sends it as one line.
func (d *Device) respond(resp msgs.Response) {
	data, err := msgs.Encode(resp)
	if err != nil {
		glog.Errorf("encode %s: %v", resp.Kind(), err)
		return
	}
	d.writeLine(data)
}

func (d *Device) writeLine(data []byte) {
	if err := d.link.WriteLine(data); err != nil {
		d.count(func(s *Stats) { s.WriteErrors++ })
		glog.Warningf("write error: %v", err)
	}
}
