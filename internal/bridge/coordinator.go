package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openhwp/navibridge/internal/navien"
)

// AuthClient authenticates against the vendor cloud.
// *auth.Client satisfies this.
type AuthClient interface {
	Authenticate(ctx context.Context) error
}

// APIClient serves the account's device inventory.
// *api.Client satisfies this.
type APIClient interface {
	ListDevices(ctx context.Context) ([]navien.Device, error)
}

// HistoryRecorder persists status snapshots. Optional.
// *navien.SQLiteStatusHistoryRepository satisfies this.
type HistoryRecorder interface {
	RecordStatus(ctx context.Context, mac string, status navien.DeviceStatus, source string) error
}

// MetricsWriter exports telemetry to a time series store. Optional.
// *influxdb.Client satisfies this.
type MetricsWriter interface {
	WriteStatusMetrics(mac string, status navien.DeviceStatus)
}

// DeviceState is the per-device aggregate the coordinator maintains.
//
// Status and Features are independently and atomically replaced: a
// consumer always sees an internally consistent snapshot of each, but a
// status update is not transactionally coupled to a features update.
type DeviceState struct {
	Device     navien.Device         `json:"device"`
	Status     *navien.DeviceStatus  `json:"status,omitempty"`
	LastUpdate *time.Time            `json:"last_update,omitempty"`
	Features   *navien.DeviceFeature `json:"features,omitempty"`
}

// UpdateListener is notified with the device address after each applied
// state update, exactly once per update.
type UpdateListener func(mac string)

// maxConsecutiveRefreshFailures is the number of refresh triggers that
// must fail in a row before the coordinator forces a reconnect.
const maxConsecutiveRefreshFailures = 3

// CoordinatorConfig collects the Coordinator's constructor dependencies.
type CoordinatorConfig struct {
	Auth         AuthClient
	API          APIClient
	NewTransport TransportFactory
	Logger       Logger

	// ScanInterval drives the background refresh loop.
	ScanInterval time.Duration
	// StatusInterval and InfoInterval parameterize the per-device
	// transport request tickers.
	StatusInterval time.Duration
	InfoInterval   time.Duration

	// History and Metrics are optional sinks for applied status updates.
	History HistoryRecorder
	Metrics MetricsWriter

	// QueueSize overrides the update queue capacity. Zero means default.
	QueueSize int
}

// Coordinator is the single source of truth for device state.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - DeviceState mutation happens only on the dispatch goroutine.
type Coordinator struct {
	auth    AuthClient
	api     APIClient
	manager *Manager
	logger  Logger

	scanInterval time.Duration

	history HistoryRecorder
	metrics MetricsWriter

	queue *eventQueue

	mu      sync.RWMutex
	devices []navien.Device
	states  map[string]*DeviceState

	setupDone       atomic.Bool
	refreshInFlight atomic.Bool

	// consecutiveRefreshFailures counts refresh triggers where every
	// device request failed hard; reaching the threshold forces a
	// reconnect.
	consecutiveRefreshFailures atomic.Int64

	listenerMu     sync.Mutex
	nextListenerID int
	listeners      map[int]UpdateListener

	closeOnce sync.Once
}

// NewCoordinator wires the coordinator and its manager. No cloud calls
// happen until Refresh.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		auth:         cfg.Auth,
		api:          cfg.API,
		logger:       cfg.Logger,
		scanInterval: cfg.ScanInterval,
		history:      cfg.History,
		metrics:      cfg.Metrics,
		states:       make(map[string]*DeviceState),
		listeners:    make(map[int]UpdateListener),
	}

	c.queue = newEventQueue(cfg.QueueSize, cfg.Logger, c.apply)

	c.manager = NewManager(ManagerConfig{
		NewTransport:   cfg.NewTransport,
		Logger:         cfg.Logger,
		StatusInterval: cfg.StatusInterval,
		InfoInterval:   cfg.InfoInterval,
		OnStatus: func(device navien.Device, status navien.DeviceStatus) {
			c.queue.enqueue(update{kind: eventStatus, mac: device.MACAddress, status: status})
		},
		OnFeature: func(device navien.Device, feature navien.DeviceFeature) {
			c.queue.enqueue(update{kind: eventFeature, mac: device.MACAddress, feature: feature})
		},
	})

	return c
}

// Manager exposes the connection manager for diagnostics and direct
// transport operations.
func (c *Coordinator) Manager() *Manager {
	return c.manager
}

// Refresh triggers a state update.
//
// The first call performs full setup: authentication, device discovery,
// transport setup, per-device subscription and periodic request start.
// Any failure surfaces as a wrapped ErrNotReady and the next call retries
// the whole sequence from scratch.
//
// Subsequent calls are fire-and-forget status triggers: they issue one
// request per device and return without waiting, since real updates
// arrive asynchronously. Cached state for devices that do not respond is
// preserved. At most one refresh runs at a time; an overlapping call is
// skipped.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.refreshInFlight.CompareAndSwap(false, true) {
		c.logger.Debug("refresh already in flight, skipping")
		return nil
	}
	defer c.refreshInFlight.Store(false)

	if !c.setupDone.Load() {
		if err := c.initialSetup(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		c.setupDone.Store(true)
		return nil
	}

	return c.triggerStatusRequests(ctx)
}

// initialSetup runs the full bootstrap sequence.
func (c *Coordinator) initialSetup(ctx context.Context) error {
	if err := c.auth.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	devices, err := c.api.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	if err := c.manager.Setup(ctx); err != nil {
		return fmt.Errorf("transport setup: %w", err)
	}

	c.mu.Lock()
	c.devices = devices
	for _, device := range devices {
		c.states[device.MACAddress] = &DeviceState{Device: device}
	}
	c.mu.Unlock()

	// Per-device subscription failures are isolated: one device failing
	// must not take down the others.
	for _, device := range devices {
		if err := c.manager.SubscribeDevice(device); err != nil {
			c.logger.Warn("failed to subscribe device",
				"device", device.MACAddress,
				"error", err,
			)
			continue
		}
		if err := c.manager.StartPeriodicRequests(device); err != nil {
			c.logger.Warn("failed to start periodic requests",
				"device", device.MACAddress,
				"error", err,
			)
		}
		if err := c.manager.RequestStatus(device); err != nil {
			c.logger.Warn("initial status request failed",
				"device", device.MACAddress,
				"error", err,
			)
		}
	}

	c.logger.Info("initial setup complete", "devices", len(devices))
	return nil
}

// triggerStatusRequests fires one status request per device. A trigger
// where every request fails hard counts toward the forced-reconnect
// threshold; any success resets it.
func (c *Coordinator) triggerStatusRequests(ctx context.Context) error {
	devices := c.Devices()
	if len(devices) == 0 {
		return nil
	}

	failures := 0
	for _, device := range devices {
		if err := c.manager.RequestStatus(device); err != nil {
			failures++
		}
	}

	if failures < len(devices) {
		c.consecutiveRefreshFailures.Store(0)
		return nil
	}

	count := c.consecutiveRefreshFailures.Add(1)
	c.logger.Warn("status refresh trigger failed for all devices",
		"consecutive_failures", count,
	)

	if count >= maxConsecutiveRefreshFailures {
		c.consecutiveRefreshFailures.Store(0)
		c.logger.Warn("forcing reconnect after repeated refresh failures")
		if err := c.manager.ForceReconnect(ctx, devices); err != nil {
			c.logger.Error("forced reconnect failed", "error", err)
		}
	}

	return nil
}

// Run drives periodic refreshes until the context is cancelled. The first
// refresh is retried at the scan interval until setup succeeds.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("refresh failed", "error", err)
			}
		}
	}
}

// apply mutates DeviceState for one update. Runs only on the dispatch
// goroutine.
func (c *Coordinator) apply(ev update) {
	c.mu.Lock()
	state, known := c.states[ev.mac]
	if !known {
		c.mu.Unlock()
		c.logger.Warn("dropping update for unknown device", "device", ev.mac)
		return
	}

	switch ev.kind {
	case eventStatus:
		status := ev.status
		now := time.Now()
		state.Status = &status
		state.LastUpdate = &now
	case eventFeature:
		feature := ev.feature
		state.Features = &feature
	}
	c.mu.Unlock()

	if ev.kind == eventStatus {
		c.recordStatus(ev.mac, ev.status)
	}

	c.notifyListeners(ev.mac)
}

// recordStatus feeds the optional history and metrics sinks. Sink errors
// are logged, never propagated: persistence must not disturb state flow.
func (c *Coordinator) recordStatus(mac string, status navien.DeviceStatus) {
	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.history.RecordStatus(ctx, mac, status, navien.HistorySourcePush); err != nil {
			c.logger.Warn("failed to record status history",
				"device", mac,
				"error", err,
			)
		}
		cancel()
	}
	if c.metrics != nil {
		c.metrics.WriteStatusMetrics(mac, status)
	}
}

// notifyListeners informs every registered listener exactly once.
func (c *Coordinator) notifyListeners(mac string) {
	c.listenerMu.Lock()
	listeners := make([]UpdateListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenerMu.Unlock()

	for _, l := range listeners {
		l(mac)
	}
}

// AddListener registers an update listener and returns a function that
// removes exactly this registration.
func (c *Coordinator) AddListener(listener UpdateListener) func() {
	c.listenerMu.Lock()
	c.nextListenerID++
	id := c.nextListenerID
	c.listeners[id] = listener
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

// GetDeviceState returns a copy of the device's state, or nil if the
// device is unknown.
func (c *Coordinator) GetDeviceState(mac string) *DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[mac]
	if !ok {
		return nil
	}
	cpy := *state
	return &cpy
}

// Devices returns the discovered device list.
func (c *Coordinator) Devices() []navien.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]navien.Device(nil), c.devices...)
}

// SendControlCommand resolves the device and delegates to the Manager.
//
// Returns:
//   - ErrUnknownDevice: address never discovered
//   - otherwise the Manager's outcome unchanged
func (c *Coordinator) SendControlCommand(mac, command string, params CommandParams) error {
	c.mu.RLock()
	state, ok := c.states[mac]
	c.mu.RUnlock()

	if !ok {
		c.logger.Error("command for unknown device", "device", mac, "command", command)
		return fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}

	return c.manager.SendCommand(state.Device, command, params)
}

// Ready reports whether initial setup has completed.
func (c *Coordinator) Ready() bool {
	return c.setupDone.Load()
}

// CoordinatorDiagnostics combines connection and state telemetry.
type CoordinatorDiagnostics struct {
	Ready       bool                  `json:"ready"`
	DeviceCount int                   `json:"device_count"`
	Connection  Diagnostics           `json:"connection"`
	LastUpdates map[string]*time.Time `json:"last_updates"`
}

// Diagnostics returns a snapshot for the diagnostics endpoint.
func (c *Coordinator) Diagnostics() CoordinatorDiagnostics {
	d := CoordinatorDiagnostics{
		Ready:       c.Ready(),
		Connection:  c.manager.Diagnostics(),
		LastUpdates: make(map[string]*time.Time),
	}

	c.mu.RLock()
	d.DeviceCount = len(c.devices)
	for mac, state := range c.states {
		if state.LastUpdate != nil {
			t := *state.LastUpdate
			d.LastUpdates[mac] = &t
		} else {
			d.LastUpdates[mac] = nil
		}
	}
	c.mu.RUnlock()

	return d
}

// Shutdown tears down the transport and stops the dispatch goroutine.
// Safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.closeOnce.Do(func() {
		c.manager.Disconnect()
		c.queue.close()
	})
}
