package sh

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// DefaultMonitorDuration is how long monitor listens without an argument.
const DefaultMonitorDuration = 10 * time.Second

// Action is the body of a shell command.
type Action func(ctx context.Context, s *Shell, out io.Writer, args []string) error

var actions = map[string]Action{}

type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func newCmd(name, help string, fn Action, aliases ...string) ishell.Cmd {
	actions[name] = fn
	return ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: func(c *ishell.Context) {
			if err := fn(context.Background(), ShellFrom(c), contextWriter{c: c}, c.Args); err != nil {
				c.Err(err)
			}
		},
	}
}

var (
	// SensorCmd requests fresh sensor data.
	SensorCmd  = newCmd("sensor", "read temperature and humidity", sensorAction, "s")
	// StatusCmd requests the device status.
	StatusCmd  = newCmd("status", "show device status", statusAction, "st")
	// LEDCmd switches the LED.
	LEDCmd     = newCmd("led", "STATE (0 off, 1 on)", ledAction)
	// MotorCmd sets the motor.
	MotorCmd   = newCmd("motor", "SPEED(0-255) DIRECTION(1 forward, -1 reverse, 0 stop)", motorAction, "m")
	// StopCmd stops the motor.
	StopCmd    = newCmd("stop", "stop the motor", stopAction)
	// MonitorCmd prints broadcasts as they arrive.
	MonitorCmd = newCmd("monitor", "[SECONDS] print periodic sensor data", monitorAction, "mon")
)

func requireDevice(s *Shell) error {
	if s.Device == nil {
		return fmt.Errorf("not connected")
	}
	return nil
}

func sensorAction(ctx context.Context, s *Shell, out io.Writer, args []string) error {
	if err := requireDevice(s); err != nil {
		return err
	}
	ctx, cancel := s.commandContext(ctx)
	defer cancel()
	data, err := s.Device.GetSensorData(ctx)
	if err != nil {
		return err
	}
	return s.print(out, data)
}

func statusAction(ctx context.Context, s *Shell, out io.Writer, args []string) error {
	if err := requireDevice(s); err != nil {
		return err
	}
	ctx, cancel := s.commandContext(ctx)
	defer cancel()
	status, err := s.Device.GetStatus(ctx)
	if err != nil {
		return err
	}
	return s.print(out, status)
}

func ledAction(ctx context.Context, s *Shell, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: led STATE")
	}
	state, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid STATE %q", args[0])
	}
	if err := requireDevice(s); err != nil {
		return err
	}
	ctx, cancel := s.commandContext(ctx)
	defer cancel()
	if err := s.Device.SetLED(ctx, state); err != nil {
		return err
	}
	return s.print(out, msgs.Reply{Message: msgs.MsgLEDChanged})
}

func motorAction(ctx context.Context, s *Shell, out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: motor SPEED DIRECTION")
	}
	speed, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid SPEED %q", args[0])
	}
	direction, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid DIRECTION %q", args[1])
	}
	if err := requireDevice(s); err != nil {
		return err
	}
	ctx, cancel := s.commandContext(ctx)
	defer cancel()
	if err := s.Device.SetMotor(ctx, speed, direction); err != nil {
		return err
	}
	return s.print(out, msgs.Reply{Message: msgs.MsgMotorChanged})
}

func stopAction(ctx context.Context, s *Shell, out io.Writer, args []string) error {
	if err := requireDevice(s); err != nil {
		return err
	}
	ctx, cancel := s.commandContext(ctx)
	defer cancel()
	if err := s.Device.StopMotor(ctx); err != nil {
		return err
	}
	return s.print(out, msgs.Reply{Message: msgs.MsgMotorStopped})
}

func monitorAction(ctx context.Context, s *Shell, out io.Writer, args []string) error {
	duration := DefaultMonitorDuration
	if len(args) > 0 {
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid SECONDS %q", args[0])
		}
		duration = time.Duration(secs * float64(time.Second))
	}
	if err := requireDevice(s); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	events := s.Device.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.print(out, resp); err != nil {
				return err
			}
		}
	}
}
