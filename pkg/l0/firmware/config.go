package firmware

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/framework"
	"github.com/robotalks/motorsense/pkg/l0/comm"
)

// DefaultBroadcastInterval is the period of unsolicited sensor_data.
const DefaultBroadcastInterval = 3000 * time.Millisecond

// Config tunes the device runtime.
type Config struct {
	// LineCapacity is the size of the command line buffer.
	LineCapacity int
	// RxBufferSize is the size of the serial receive buffer.
	RxBufferSize int
	// BroadcastInterval is the period of sensor_data broadcasts.
	BroadcastInterval time.Duration
	// Yield is the pause at the end of each loop iteration.
	Yield time.Duration
	// BytesPerIteration bounds the bytes consumed by one iteration.
	BytesPerIteration int
	// EventDriven wakes the loop on byte arrival instead of ticking.
	EventDriven bool
}

var defaultConfig = Config{
	LineCapacity:      comm.DefaultLineCapacity,
	RxBufferSize:      comm.DefaultRxBufferSize,
	BroadcastInterval: DefaultBroadcastInterval,
	Yield:             framework.DefaultInterval,
	BytesPerIteration: 1,
}

func init() {
	if val := os.Getenv("MOTORSENSE_BROADCAST_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.BroadcastInterval = d
		} else {
			glog.Warningf("ignore MOTORSENSE_BROADCAST_INTERVAL: %v", err)
		}
	}
	if os.Getenv("MOTORSENSE_EVENT_DRIVEN") != "" {
		defaultConfig.EventDriven = true
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.LineCapacity, "buffer", defaultConfig.LineCapacity, "Command line buffer size")
	flag.IntVar(&defaultConfig.RxBufferSize, "rx-buffer", defaultConfig.RxBufferSize, "Serial receive buffer size")
	flag.DurationVar(&defaultConfig.BroadcastInterval, "interval", defaultConfig.BroadcastInterval, "Sensor broadcast interval")
	flag.DurationVar(&defaultConfig.Yield, "yield", defaultConfig.Yield, "Pause between loop iterations")
	flag.IntVar(&defaultConfig.BytesPerIteration, "bytes-per-iter", defaultConfig.BytesPerIteration, "Bytes consumed per loop iteration")
	flag.BoolVar(&defaultConfig.EventDriven, "event-driven", defaultConfig.EventDriven, "Wake on byte arrival instead of ticking")
}

// DefaultConfig gets the default config.
func DefaultConfig() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewLoop creates a loop paced according to the config.
func (c *Config) NewLoop() *framework.Loop {
	loop := framework.NewLoop()
	loop.Interval = c.Yield
	if c.EventDriven {
		loop.Interval = 0
	}
	return loop
}

func (c *Config) lineCapacity() int {
	if c.LineCapacity > 0 {
		return c.LineCapacity
	}
	return comm.DefaultLineCapacity
}

func (c *Config) bytesPerIteration() int {
	if c.BytesPerIteration > 0 {
		return c.BytesPerIteration
	}
	return 1
}

func (c *Config) broadcastInterval() uint64 {
	if c.BroadcastInterval > 0 {
		return uint64(c.BroadcastInterval / time.Millisecond)
	}
	return uint64(DefaultBroadcastInterval / time.Millisecond)
}
