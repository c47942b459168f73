package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/golang/glog"

	"github.com/robotalks/motorsense/pkg/framework"
	"github.com/robotalks/motorsense/pkg/l1/client"
	"github.com/robotalks/motorsense/pkg/l1/env"
	"github.com/robotalks/motorsense/pkg/l1/gateway"
	"github.com/robotalks/motorsense/pkg/l1/telemetry"
)

var configFile string

func init() {
	env.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file")
}

func main() {
	flag.Parse()

	conf := env.MustLoad(configFile)
	runner := framework.NewRunner(context.Background()).HandleSignals()

	link := conf.MustOpenLink(runner.Context)
	cl := client.New(link)
	runner.Go(framework.NamedRun("client", cl))

	q, err := conf.NewQueue()
	if err != nil {
		log.Fatalln(err)
	}
	if q != nil {
		defer q.Close()
	}
	sinks, closers, err := conf.NewTelemetry(q)
	if err != nil {
		log.Fatalln(err)
	}
	for _, c := range closers {
		defer c.Close()
	}

	if conf.Listen != "" {
		gw := gateway.New(cl, conf.Gateway)
		sinks.Add(gw)
		srv := &http.Server{Addr: conf.Listen, Handler: gw}
		runner.Go(framework.NamedRun("gateway", framework.RunFunc(func(ctx context.Context) error {
			glog.Infof("gateway on %s", conf.Listen)
			return framework.RunWithContextCancel(ctx, func() { srv.Close() }, srv.ListenAndServe)
		})))
	}
	if q != nil && conf.Relay {
		runner.Go(framework.NamedRun("relay", &telemetry.CommandRelay{
			Queue:    q,
			DeviceID: conf.ID(),
			Device:   cl,
			Timeout:  conf.Gateway.Timeout,
		}))
	}
	runner.Go(framework.NamedRun("telemetry", &telemetry.Forwarder{Events: cl.Events(), Sink: sinks}))

	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
