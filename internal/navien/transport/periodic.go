package transport

import (
	"sync"
	"time"

	"github.com/openhwp/navibridge/internal/navien"
)

// periodicTask kinds; one ticker per (device, kind).
const (
	taskStatus = "status"
	taskInfo   = "info"
)

// periodicRunner owns the per-device request tickers.
//
// Each task is one goroutine driven by a time.Ticker. Stopping a task
// closes its stop channel and the goroutine exits before the next tick.
type periodicRunner struct {
	session *Session
	logger  Logger

	mu    sync.Mutex
	tasks map[string]chan struct{} // key: mac + "/" + kind
}

func newPeriodicRunner(session *Session, logger Logger) *periodicRunner {
	return &periodicRunner{
		session: session,
		logger:  logger,
		tasks:   make(map[string]chan struct{}),
	}
}

// StartPeriodicStatusRequests begins publishing status requests for the
// device at the given interval. Restarting an active task resets it.
func (s *Session) StartPeriodicStatusRequests(device navien.Device, interval time.Duration) {
	s.periodic.start(device, taskStatus, interval, s.RequestDeviceStatus)
}

// StartPeriodicInfoRequests begins publishing info requests for the
// device at the given interval.
func (s *Session) StartPeriodicInfoRequests(device navien.Device, interval time.Duration) {
	s.periodic.start(device, taskInfo, interval, s.RequestDeviceInfo)
}

// StopPeriodicRequests stops all tickers for one device.
func (s *Session) StopPeriodicRequests(mac string) {
	s.periodic.stopDevice(mac)
}

// StopAllPeriodicTasks stops every ticker. Called during teardown.
func (s *Session) StopAllPeriodicTasks() {
	s.periodic.stopAll()
}

// PeriodicTaskCount returns the number of active tickers.
func (s *Session) PeriodicTaskCount() int {
	return s.periodic.count()
}

func (r *periodicRunner) start(device navien.Device, kind string, interval time.Duration, request func(navien.Device) error) {
	key := device.MACAddress + "/" + kind

	r.mu.Lock()
	if stop, ok := r.tasks[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	r.tasks[key] = stop
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := request(device); err != nil {
					r.logger.Warn("periodic request failed",
						"kind", kind,
						"device", device.MACAddress,
						"error", err,
					)
				}
			}
		}
	}()
}

func (r *periodicRunner) stopDevice(mac string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, stop := range r.tasks {
		if key == mac+"/"+taskStatus || key == mac+"/"+taskInfo {
			close(stop)
			delete(r.tasks, key)
		}
	}
}

func (r *periodicRunner) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, stop := range r.tasks {
		close(stop)
		delete(r.tasks, key)
	}
}

func (r *periodicRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
