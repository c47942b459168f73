package sh

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
	"github.com/robotalks/motorsense/pkg/l1/client"
	"github.com/robotalks/motorsense/pkg/l1/env"
)

// Device is what the shell drives, implemented by *client.Client.
type Device interface {
	GetSensorData(ctx context.Context) (msgs.SensorData, error)
	GetStatus(ctx context.Context) (msgs.Status, error)
	SetLED(ctx context.Context, state int) error
	SetMotor(ctx context.Context, speed, direction int) error
	StopMotor(ctx context.Context) error
	Events() <-chan msgs.Response
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// Timeout bounds every device command.
	Timeout time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Device Device
	// Now stamps human output.
	Now func() time.Time

	cancel func()
	doneCh chan error
}

const (
	shellKey      = "$shell"
	defaultPrompt = "motorsense > "
)

var (
	// flags

	evalOnly       bool
	outputJSON     bool
	commandTimeout = 2 * time.Second

	// commands
	commands = []*ishell.Cmd{
		&SensorCmd,
		&StatusCmd,
		&LEDCmd,
		&MotorCmd,
		&StopCmd,
		&MonitorCmd,
	}
)

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&commandTimeout, "timeout", commandTimeout, "Device command timeout.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     commandTimeout,

		Shell:  ishell.New(),
		Config: conf,
		Now:    time.Now,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(defaultPrompt)
	s.Shell.Interrupt(func(c *ishell.Context, count int, input string) {
		if count >= 2 {
			c.Println("Interrupted")
			s.Shell.Stop()
			return
		}
		c.Println("Input Ctrl-c once more to exit")
	})
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Connect opens the device link and starts the client.
func (s *Shell) Connect(ctx context.Context) error {
	link, err := s.Config.OpenLink(ctx)
	if err != nil {
		return err
	}
	cl := client.New(link)
	runCtx, cancel := context.WithCancel(context.Background())
	s.doneCh = make(chan error, 1)
	go func() {
		s.doneCh <- cl.Run(runCtx)
	}()
	s.Device, s.cancel = cl, cancel
	return nil
}

// Disconnect stops the client started by Connect.
func (s *Shell) Disconnect() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if err := <-s.doneCh; err != nil && err != context.Canceled {
		glog.Warningf("link: %v", err)
	}
	s.cancel, s.Device = nil, nil
}

// SafeStop stops the motor and turns the LED off.
func (s *Shell) SafeStop() error {
	if s.Device == nil {
		return nil
	}
	ctx, cancel := s.commandContext(context.Background())
	defer cancel()
	if err := s.Device.StopMotor(ctx); err != nil {
		return err
	}
	return s.Device.SetLED(ctx, 0)
}

func (s *Shell) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

func (s *Shell) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Device == nil {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Port)
		}
		if err := s.Connect(context.Background()); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Port, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := s.exec(ctx, os.Stdout, args)
		stop()
		if ctx.Err() != nil {
			s.safeStopOrLog()
		}
		if err != nil {
			s.Disconnect()
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		s.safeStopOrLog()
		return
	}
	log.Fatalln("command expected")
}

func (s *Shell) safeStopOrLog() {
	if err := s.SafeStop(); err != nil {
		glog.Errorf("stop motor: %v", err)
	}
}

// exec runs a single command line outside of ishell.
func (s *Shell) exec(ctx context.Context, out io.Writer, args []string) error {
	for _, cmd := range commands {
		if cmd.Name == args[0] || contains(cmd.Aliases, args[0]) {
			return s.run(ctx, cmd, out, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (s *Shell) run(ctx context.Context, cmd *ishell.Cmd, out io.Writer, args []string) error {
	fn := actions[cmd.Name]
	if fn == nil {
		return fmt.Errorf("command %q not available in evaluation mode", cmd.Name)
	}
	return fn(ctx, s, out, args)
}

func contains(items []string, item string) bool {
	for _, s := range items {
		if s == item {
			return true
		}
	}
	return false
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).Run(flag.Args()...)
}
