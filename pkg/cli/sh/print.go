package sh

import (
	"fmt"
	"io"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

const timeLayout = "15:04:05"

func (s *Shell) print(out io.Writer, resp msgs.Response) error {
	if s.OutputJSON {
		data, err := msgs.Encode(resp)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	return FormatResponse(out, s.now().Format(timeLayout), resp)
}

// FormatResponse prints resp for humans, stamped with at.
func FormatResponse(out io.Writer, at string, resp msgs.Response) error {
	var err error
	switch r := resp.(type) {
	case msgs.SensorData:
		_, err = fmt.Fprintf(out, "[%s] DHT22 sensor data:\n  temperature: %s\n  humidity: %s\n  motor speed: %d\n  motor: %s\n",
			at, withUnit(r.Temperature, "°C"), withUnit(r.Humidity, "%"), r.MotorSpeed, running(r.MotorRunning))
	case msgs.Status:
		connected := "not connected"
		if r.DHT22Connected {
			connected = "connected"
		}
		_, err = fmt.Fprintf(out, "[%s] status:\n  uptime: %dms\n  free memory: %d bytes\n  DHT22: %s\n  motor speed: %d\n  motor: %s\n",
			at, r.Uptime, r.FreeMemory, connected, r.MotorSpeed, running(r.MotorRunning))
	case msgs.Reply:
		_, err = fmt.Fprintln(out, r.Message)
	case msgs.Error:
		_, err = fmt.Fprintf(out, "[%s] error: %s\n", at, r.Message)
	default:
		_, err = fmt.Fprintf(out, "[%s] %v\n", at, resp)
	}
	return err
}

func withUnit(r msgs.Reading, unit string) string {
	if !r.Valid {
		return "sensor error"
	}
	return r.String() + unit
}

func running(on bool) string {
	if on {
		return "running"
	}
	return "stopped"
}
