package firmware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats are the device counters.
type Stats struct {
	Lines           uint64
	Commands        map[string]uint64
	ParseErrors     uint64
	UnknownCommands uint64
	DroppedBytes    uint64
	Overruns        uint64
	Broadcasts      uint64
	WriteErrors     uint64
}

// Stats returns a copy of the counters. Safe to call from any goroutine.
func (d *Device) Stats() Stats {
	d.statsLock.Lock()
	defer d.statsLock.Unlock()
	s := d.stats
	s.Commands = make(map[string]uint64, len(d.stats.Commands))
	for name, n := range d.stats.Commands {
		s.Commands[name] = n
	}
	s.Overruns = d.link.Overruns()
	return s
}

func (d *Device) count(fn func(*Stats)) {
	d.statsLock.Lock()
	fn(&d.stats)
	d.statsLock.Unlock()
}

// Collector exports device Stats as prometheus metrics.
type Collector struct {
	dev *Device

	lines       *prometheus.Desc
	commands    *prometheus.Desc
	errors      *prometheus.Desc
	dropped     *prometheus.Desc
	broadcasts  *prometheus.Desc
	writeErrors *prometheus.Desc
}

// NewCollector creates a Collector for d.
func NewCollector(d *Device) *Collector {
	return &Collector{
		dev: d,
		lines: prometheus.NewDesc("motorsense_device_lines_total",
			"Complete lines received.", nil, nil),
		commands: prometheus.NewDesc("motorsense_device_commands_total",
			"Commands executed, by command.", []string{"command"}, nil),
		errors: prometheus.NewDesc("motorsense_device_command_errors_total",
			"Lines answered with an error, by reason.", []string{"reason"}, nil),
		dropped: prometheus.NewDesc("motorsense_device_dropped_bytes_total",
			"Bytes lost, by where they were lost.", []string{"stage"}, nil),
		broadcasts: prometheus.NewDesc("motorsense_device_broadcasts_total",
			"Periodic sensor_data broadcasts.", nil, nil),
		writeErrors: prometheus.NewDesc("motorsense_device_write_errors_total",
			"Failed response writes.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lines
	ch <- c.commands
	ch <- c.errors
	ch <- c.dropped
	ch <- c.broadcasts
	ch <- c.writeErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.dev.Stats()
	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.lines, s.Lines)
	for name, n := range s.Commands {
		counter(c.commands, n, name)
	}
	counter(c.errors, s.ParseErrors, "parse")
	counter(c.errors, s.UnknownCommands, "unknown")
	counter(c.dropped, s.DroppedBytes, "line")
	counter(c.dropped, s.Overruns, "rx")
	counter(c.broadcasts, s.Broadcasts)
	counter(c.writeErrors, s.WriteErrors)
}
