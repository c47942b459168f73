// Package env configures the host side: where the device is, where
// telemetry goes and how the gateway behaves.
package env

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/motorsense/pkg/l1/gateway"
	"github.com/robotalks/motorsense/pkg/l1/mqtt"
	"github.com/robotalks/motorsense/pkg/l1/telemetry"
	"github.com/robotalks/motorsense/pkg/l1/transport"
)

// Config provides the options of host programs.
type Config struct {
	// Port is the link URL of the device, see package transport.
	Port string `yaml:"port"`
	// OpenTimeout bounds retrying to open the link.
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// DeviceID names the device in telemetry.
	DeviceID string `yaml:"device_id"`

	// MQTTURL enables MQTT, e.g. mqtt://host:1883/motorsense/
	MQTTURL string `yaml:"mqtt_url"`
	// PayloadFormat is json or proto.
	PayloadFormat string `yaml:"payload_format"`
	// Relay accepts commands over MQTT.
	Relay bool `yaml:"relay"`

	Influx telemetry.InfluxConfig `yaml:"influx"`

	// Listen is the HTTP gateway address, empty disables it.
	Listen  string         `yaml:"listen"`
	Gateway gateway.Config `yaml:"gateway"`
}

var defaultConfig = Config{
	Port:          "/dev/ttyACM0",
	OpenTimeout:   30 * time.Second,
	PayloadFormat: string(telemetry.FormatJSON),
	Gateway:       gateway.DefaultConfig,
}

func init() {
	if val := os.Getenv("MOTORSENSE_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("MOTORSENSE_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	if val := os.Getenv("MOTORSENSE_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("MOTORSENSE_LISTEN"); val != "" {
		defaultConfig.Listen = val
	}
	if val := os.Getenv("MOTORSENSE_INFLUX_URL"); val != "" {
		defaultConfig.Influx.URL = val
	}
	if val := os.Getenv("MOTORSENSE_INFLUX_TOKEN"); val != "" {
		defaultConfig.Influx.Token = val
	}
}

// flagFields copies the field bound to a flag.
var flagFields = map[string]func(dst, src *Config){
	"port":      func(dst, src *Config) { dst.Port = src.Port },
	"device-id": func(dst, src *Config) { dst.DeviceID = src.DeviceID },
	"mqtt":      func(dst, src *Config) { dst.MQTTURL = src.MQTTURL },
	"format":    func(dst, src *Config) { dst.PayloadFormat = src.PayloadFormat },
	"relay":     func(dst, src *Config) { dst.Relay = src.Relay },
	"listen":    func(dst, src *Config) { dst.Listen = src.Listen },
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Device link URL or serial device path")
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device ID in telemetry topics")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.PayloadFormat, "format", defaultConfig.PayloadFormat, "Telemetry payload format: json, proto")
	flag.BoolVar(&defaultConfig.Relay, "relay", defaultConfig.Relay, "Accept commands over MQTT")
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "HTTP gateway address")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load reads a YAML file over the defaults. Flags given on the command
// line still win over the file.
func Load(path string) (*Config, error) {
	conf := NewConfig()
	if path == "" {
		return conf, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fromFile := *conf
	if err := fromFile.Decode(f); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	flag.Visit(func(f *flag.Flag) {
		if apply := flagFields[f.Name]; apply != nil {
			apply(&fromFile, conf)
		}
	})
	return &fromFile, nil
}

// MustLoad loads config and fails on error.
func MustLoad(path string) *Config {
	conf, err := Load(path)
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// Decode reads YAML over the current values.
func (c *Config) Decode(r io.Reader) error {
	if err := yaml.NewDecoder(r).Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ID returns DeviceID, falling back to the machine ID.
func (c *Config) ID() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	return MachineID()
}

// OpenLink opens the device link, retrying until OpenTimeout.
func (c *Config) OpenLink(ctx context.Context) (io.ReadWriteCloser, error) {
	opts := transport.DefaultOptions
	opts.MaxElapsedTime = c.OpenTimeout
	return opts.Open(ctx, c.Port)
}

// MustOpenLink opens the device link and fails on error.
func (c *Config) MustOpenLink(ctx context.Context) io.ReadWriteCloser {
	link, err := c.OpenLink(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return link
}

// NewQueue connects to the MQTT broker, nil if MQTT isn't configured.
func (c *Config) NewQueue() (*mqtt.Queue, error) {
	if c.MQTTURL == "" {
		return nil, nil
	}
	q, err := mqtt.NewQueueFromURL(c.MQTTURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect MQTT broker: %w", token.Error())
	}
	return q, nil
}

// NewTelemetry creates the configured sinks. q may be nil.
func (c *Config) NewTelemetry(q *mqtt.Queue) (*telemetry.Mux, []io.Closer, error) {
	format, err := telemetry.ParseFormat(c.PayloadFormat)
	if err != nil {
		return nil, nil, err
	}
	mux := &telemetry.Mux{}
	var closers []io.Closer
	if q != nil {
		mux.Add(telemetry.NewMQTTSink(q, c.ID(), format))
	}
	if c.Influx.URL != "" {
		sink := telemetry.NewInfluxSink(c.Influx, c.ID())
		mux.Add(sink)
		closers = append(closers, sink)
	}
	return mux, closers, nil
}
