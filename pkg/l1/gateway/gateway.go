// Package gateway exposes the device over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
	"github.com/robotalks/motorsense/pkg/l1/client"
)

// Doer executes a command on the device.
type Doer interface {
	Do(ctx context.Context, cmd *msgs.Command) (msgs.Response, error)
}

// Config tunes the gateway.
type Config struct {
	// Timeout bounds one device call.
	Timeout time.Duration `yaml:"timeout"`
	// BreakerFailures is the number of consecutive link failures tripping
	// the breaker.
	BreakerFailures uint32 `yaml:"breaker_failures"`
	// BreakerOpen is how long the breaker stays open.
	BreakerOpen time.Duration `yaml:"breaker_open"`
}

// DefaultConfig is used for zero fields.
var DefaultConfig = Config{
	Timeout:         2 * time.Second,
	BreakerFailures: 3,
	BreakerOpen:     10 * time.Second,
}

// Server serves the HTTP API. It's also a telemetry sink remembering the
// latest broadcast.
type Server struct {
	device  Doer
	conf    Config
	breaker *gobreaker.CircuitBreaker
	metrics *metrics
	router  *mux.Router

	latestLock sync.RWMutex
	latest     *msgs.SensorData
}

// New creates a Server.
func New(device Doer, conf Config) *Server {
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultConfig.Timeout
	}
	if conf.BreakerFailures == 0 {
		conf.BreakerFailures = DefaultConfig.BreakerFailures
	}
	if conf.BreakerOpen <= 0 {
		conf.BreakerOpen = DefaultConfig.BreakerOpen
	}
	s := &Server{device: device, conf: conf, metrics: newMetrics()}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "device",
		Timeout: conf.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= conf.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var devErr *client.DeviceError
			return err == nil || errors.As(err, &devErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			glog.Warningf("breaker %s: %s -> %s", name, from, to)
			s.metrics.breakerState.Set(float64(to))
		},
	})
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/sensor", s.instrument("sensor", s.getSensor)).Methods(http.MethodGet)
	r.HandleFunc("/sensor/latest", s.instrument("sensor_latest", s.getLatest)).Methods(http.MethodGet)
	r.HandleFunc("/status", s.instrument("status", s.getStatus)).Methods(http.MethodGet)
	r.HandleFunc("/led", s.instrument("led", s.putLED)).Methods(http.MethodPut)
	r.HandleFunc("/motor", s.instrument("motor", s.putMotor)).Methods(http.MethodPut)
	r.HandleFunc("/motor", s.instrument("motor_stop", s.deleteMotor)).Methods(http.MethodDelete)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Registry returns the registry of gateway metrics, for adding collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.metrics.registry
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publish implements telemetry.Sink.
func (s *Server) Publish(ctx context.Context, resp msgs.Response) error {
	if data, ok := resp.(msgs.SensorData); ok {
		s.latestLock.Lock()
		s.latest = &data
		s.latestLock.Unlock()
	}
	s.metrics.events.WithLabelValues(string(resp.Kind())).Inc()
	return nil
}

// Latest returns the last broadcast sensor_data.
func (s *Server) Latest() (msgs.SensorData, bool) {
	s.latestLock.RLock()
	defer s.latestLock.RUnlock()
	if s.latest == nil {
		return msgs.SensorData{}, false
	}
	return *s.latest, true
}

// do runs cmd on the device through the breaker.
func (s *Server) do(ctx context.Context, cmd *msgs.Command) (msgs.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conf.Timeout)
	defer cancel()
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.device.Do(ctx, cmd)
	})
	s.metrics.commands.WithLabelValues(cmd.Name, resultOf(err)).Inc()
	if err != nil {
		return nil, err
	}
	return out.(msgs.Response), nil
}

func resultOf(err error) string {
	var devErr *client.DeviceError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &devErr):
		return "rejected"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "failed"
}

func statusOf(err error) int {
	switch resultOf(err) {
	case "rejected":
		return http.StatusUnprocessableEntity
	case "open":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeResponse(w http.ResponseWriter, code int, resp msgs.Response) {
	data, err := msgs.Encode(resp)
	if err != nil {
		glog.Errorf("encode %s: %v", resp.Kind(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, code int, err error) {
	var devErr *client.DeviceError
	msg := err.Error()
	if errors.As(err, &devErr) {
		msg = devErr.Message
	}
	writeResponse(w, code, msgs.Error{Message: msg})
}

func (s *Server) command(w http.ResponseWriter, r *http.Request, cmd *msgs.Command) {
	resp, err := s.do(r.Context(), cmd)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeResponse(w, http.StatusOK, resp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) getSensor(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, msgs.NewGetSensorData())
}

func (s *Server) getLatest(w http.ResponseWriter, r *http.Request) {
	data, ok := s.Latest()
	if !ok {
		writeResponse(w, http.StatusNotFound, msgs.Error{Message: "no sensor data yet"})
		return
	}
	writeResponse(w, http.StatusOK, data)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, msgs.NewGetStatus())
}

func (s *Server) putLED(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State *int `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.State == nil {
		writeResponse(w, http.StatusBadRequest, msgs.Error{Message: `"state" is required`})
		return
	}
	s.command(w, r, msgs.NewSetLED(*req.State))
}

func (s *Server) putMotor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed     *int `json:"speed"`
		Direction *int `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed == nil || req.Direction == nil {
		writeResponse(w, http.StatusBadRequest, msgs.Error{Message: `"speed" and "direction" are required`})
		return
	}
	s.command(w, r, msgs.NewSetMotor(*req.Speed, *req.Direction))
}

func (s *Server) deleteMotor(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, msgs.NewStopMotor())
}
