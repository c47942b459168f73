package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/robotalks/motorsense/pkg/cli/sh"
	"github.com/robotalks/motorsense/pkg/l1/mqtt"
	"github.com/robotalks/motorsense/pkg/l1/telemetry"
)

var (
	mqttURL = "mqtt://localhost:1883/motorsense/"
	format  = string(telemetry.FormatJSON)
)

func init() {
	if val := os.Getenv("MOTORSENSE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&format, "format", format, "Telemetry payload format: json, proto.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	f, err := telemetry.ParseFormat(format)
	if err != nil {
		log.Fatalln(err)
	}
	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}

	q.Sub("#", func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/command") {
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		// replies are always JSON
		pf := f
		if strings.HasSuffix(topic, "/reply") {
			pf = telemetry.FormatJSON
		}
		resp, err := pf.Decode(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		var out strings.Builder
		sh.FormatResponse(&out, time.Now().Format("15:04:05"), resp)
		log.Printf("%s:\n%s", topic, strings.TrimRight(out.String(), "\n"))
	})
	<-(chan struct{})(nil)
}
