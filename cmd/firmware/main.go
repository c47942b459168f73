package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/motorsense/pkg/framework"
	"github.com/robotalks/motorsense/pkg/l0/comm"
	"github.com/robotalks/motorsense/pkg/l0/driver/sim"
	"github.com/robotalks/motorsense/pkg/l0/firmware"
	"github.com/robotalks/motorsense/pkg/l1/transport"
)

var (
	port        = "stdio:"
	metricsAddr string
	failureRate float64
)

func init() {
	firmware.SetupFlags()
	flag.StringVar(&port, "port", port, "Link to serve: serial device, stdio: or tcp-listen://addr")
	flag.StringVar(&metricsAddr, "metrics", metricsAddr, "Prometheus exporter address, empty disables")
	flag.Float64Var(&failureRate, "sensor-failure-rate", failureRate, "Probability of a simulated sensor read failing")
}

func main() {
	flag.Parse()

	runner := framework.NewRunner(context.Background()).HandleSignals()
	link, err := transport.Listen(runner.Context, port)
	if err != nil {
		log.Fatalln(err)
	}
	defer link.Close()

	conf := firmware.DefaultConfig()
	fifo := comm.NewFIFOWithBuffer(link, conf.RxBufferSize)
	board, sensor, _ := sim.NewBoard(framework.NewMonotonicClock())
	sensor.FailureRate = failureRate
	dev := firmware.NewDevice(board, fifo, *conf)
	dev.Boot()

	loop := conf.NewLoop()
	dev.AddToLoop(loop)
	runner.Go(framework.NamedRun("loop", loop))

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(firmware.NewCollector(dev))
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		runner.Go(framework.NamedRun("metrics", framework.RunFunc(func(ctx context.Context) error {
			glog.Infof("metrics on %s", metricsAddr)
			return framework.RunWithContextCancel(ctx, func() { srv.Close() }, srv.ListenAndServe)
		})))
	}

	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
