package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openhwp/navibridge/internal/navien"
	"github.com/openhwp/navibridge/internal/navien/transport"
)

// Logger is the minimal logging interface used by the core.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transport is the push session surface the Manager drives.
// *transport.Session satisfies this; tests substitute a mock.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool

	On(kind transport.EventKind, handler transport.EventHandler) transport.SubscriberID
	Off(kind transport.EventKind, id transport.SubscriberID)

	SubscribeDeviceStatus(device navien.Device, handler transport.StatusHandler) error
	SubscribeDeviceFeature(device navien.Device, handler transport.FeatureHandler) error

	RequestDeviceStatus(device navien.Device) error
	RequestDeviceInfo(device navien.Device) error

	SetPower(device navien.Device, on bool) error
	SetDHWTemperature(device navien.Device, temperature float64) error
	SetDHWMode(device navien.Device, mode int) error
	SetTOUEnabled(device navien.Device, enabled bool) error
	EnableAntiLegionella(device navien.Device, periodDays int) error
	DisableAntiLegionella(device navien.Device) error
	UpdateReservations(device navien.Device, reservations []navien.Reservation, enabled bool) error
	RequestReservations(device navien.Device) error

	StartPeriodicStatusRequests(device navien.Device, interval time.Duration)
	StartPeriodicInfoRequests(device navien.Device, interval time.Duration)
	StopAllPeriodicTasks()

	Stats() transport.Stats
}

// TransportFactory builds a fresh session for each Setup. The session is
// disposed of on teardown, never reused.
type TransportFactory func() Transport

// Command names accepted by SendCommand.
const (
	CommandSetPower              = "set_power"
	CommandSetTemperature        = "set_temperature"
	CommandSetDHWMode            = "set_dhw_mode"
	CommandSetTOUEnabled         = "set_tou_enabled"
	CommandEnableAntiLegionella  = "enable_anti_legionella"
	CommandDisableAntiLegionella = "disable_anti_legionella"
	CommandUpdateReservations    = "update_reservations"
	CommandRequestReservations   = "request_reservations"
)

// CommandParams carries the parameters of one control command.
// Nil fields fall back to the command's documented default.
type CommandParams struct {
	PowerOn      *bool                `json:"power_on,omitempty"`
	Temperature  *float64             `json:"temperature,omitempty"`
	Mode         *int                 `json:"mode,omitempty"`
	Enabled      *bool                `json:"enabled,omitempty"`
	PeriodDays   *int                 `json:"period_days,omitempty"`
	Reservations []navien.Reservation `json:"reservations,omitempty"`
}

// defaultAntiLegionellaPeriodDays is used when enable_anti_legionella is
// sent without an explicit period.
const defaultAntiLegionellaPeriodDays = 14

// reconnectCoolDown is the pause between teardown and re-setup during a
// forced reconnect, giving the broker time to expire the old session.
const reconnectCoolDown = 2 * time.Second

// maxInterruptionHistory caps the retained connection interruption records.
const maxInterruptionHistory = 20

// Interruption is one recorded connection drop, kept for diagnostics.
type Interruption struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// Diagnostics is a point-in-time snapshot of the Manager's connection
// state, surfaced through the diagnostics endpoint.
type Diagnostics struct {
	Connected              bool            `json:"connected"`
	ConnectedSince         *time.Time      `json:"connected_since,omitempty"`
	ConsecutiveTimeouts    int             `json:"consecutive_timeouts"`
	ReconnectionInProgress bool            `json:"reconnection_in_progress"`
	Interruptions          []Interruption  `json:"connection_interruptions"`
	Requests               transport.Stats `json:"requests"`
}

// Manager owns the lifecycle of the single push session and provides
// command and request operations with failure classification.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Status and feature callbacks fire on transport network goroutines;
//     the Manager forwards them untouched, the callers marshal them.
type Manager struct {
	newTransport TransportFactory
	logger       Logger

	statusInterval time.Duration
	infoInterval   time.Duration

	// onStatus and onFeature receive push updates on transport goroutines.
	onStatus  transport.StatusHandler
	onFeature transport.FeatureHandler

	mu             sync.Mutex
	session        Transport
	eventSubs      map[transport.EventKind]transport.SubscriberID
	connectedSince *time.Time

	consecutiveTimeouts atomic.Int64
	reconnecting        atomic.Bool

	interruptMu   sync.Mutex
	interruptions []Interruption

	// coolDown is reconnectCoolDown unless shortened by tests.
	coolDown time.Duration
}

// ManagerConfig collects the Manager's constructor dependencies.
type ManagerConfig struct {
	NewTransport   TransportFactory
	Logger         Logger
	StatusInterval time.Duration
	InfoInterval   time.Duration
	OnStatus       transport.StatusHandler
	OnFeature      transport.FeatureHandler
}

// NewManager creates a Manager. No session exists until Setup is called.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		newTransport:   cfg.NewTransport,
		logger:         cfg.Logger,
		statusInterval: cfg.StatusInterval,
		infoInterval:   cfg.InfoInterval,
		onStatus:       cfg.OnStatus,
		onFeature:      cfg.OnFeature,
		coolDown:       reconnectCoolDown,
	}
}

// Setup tears down any existing session fully, then creates and connects
// a new one. Never leaves two sessions alive.
func (m *Manager) Setup(ctx context.Context) error {
	// Full teardown first so a repeated Setup cannot double-subscribe.
	m.Disconnect()

	session := m.newTransport()

	m.mu.Lock()
	m.session = session
	m.eventSubs = map[transport.EventKind]transport.SubscriberID{
		transport.EventConnectionLost:        session.On(transport.EventConnectionLost, m.handleConnectionLost),
		transport.EventConnectionRestored:    session.On(transport.EventConnectionRestored, m.handleConnectionRestored),
		transport.EventReconnectionFailed:    session.On(transport.EventReconnectionFailed, m.handleReconnectionFailed),
		transport.EventConnectionInterrupted: session.On(transport.EventConnectionInterrupted, m.handleConnectionInterrupted),
		transport.EventConnectionResumed:     session.On(transport.EventConnectionResumed, m.handleConnectionResumed),
	}
	m.mu.Unlock()

	if err := session.Connect(ctx); err != nil {
		m.logger.Error("transport setup failed", "error", err)
		m.Disconnect()
		return fmt.Errorf("connecting transport: %w", err)
	}

	now := time.Now()
	m.mu.Lock()
	m.connectedSince = &now
	m.mu.Unlock()

	m.logger.Info("transport connected", "connected_since", now)
	return nil
}

// Disconnect tears the session down. Idempotent: safe when already
// disconnected. Event callbacks are unregistered before the transport
// closes so no callback is delivered into a dead session, and
// connected_since is always cleared, even if teardown errors.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	session := m.session
	subs := m.eventSubs
	m.session = nil
	m.eventSubs = nil
	m.connectedSince = nil
	m.mu.Unlock()

	if session == nil {
		return
	}

	for kind, id := range subs {
		session.Off(kind, id)
	}
	session.StopAllPeriodicTasks()
	session.Disconnect()
}

// IsConnected reports whether the push session is up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	return session != nil && session.IsConnected()
}

// SubscribeDevice registers push-update delivery for one device. Each
// subscription is independent; callers loop over devices so one failure
// does not affect the others.
func (m *Manager) SubscribeDevice(device navien.Device) error {
	session, err := m.currentSession()
	if err != nil {
		return err
	}

	if err := session.SubscribeDeviceStatus(device, m.onStatus); err != nil {
		return fmt.Errorf("subscribing status for %s: %w", device.MACAddress, err)
	}
	if err := session.SubscribeDeviceFeature(device, m.onFeature); err != nil {
		return fmt.Errorf("subscribing feature for %s: %w", device.MACAddress, err)
	}
	return nil
}

// StartPeriodicRequests starts the device's two request tickers (status
// high-frequency, info low-frequency) and issues one immediate info
// request so capability data arrives without waiting a full interval.
func (m *Manager) StartPeriodicRequests(device navien.Device) error {
	session, err := m.currentSession()
	if err != nil {
		return err
	}

	session.StartPeriodicStatusRequests(device, m.statusInterval)
	session.StartPeriodicInfoRequests(device, m.infoInterval)

	if err := session.RequestDeviceInfo(device); err != nil {
		m.classifyTransportErr(err, "immediate info request")
	}
	return nil
}

// RequestStatus issues a fire-and-forget status request. Success resets
// the consecutive-timeout counter; any failure increments it. The counter
// is observational only; reconnection decisions belong to the caller.
func (m *Manager) RequestStatus(device navien.Device) error {
	session, err := m.currentSession()
	if err != nil {
		m.consecutiveTimeouts.Add(1)
		return err
	}

	if err := session.RequestDeviceStatus(device); err != nil {
		m.consecutiveTimeouts.Add(1)
		return m.classifyTransportErr(err, "status request")
	}

	m.consecutiveTimeouts.Store(0)
	return nil
}

// RequestDeviceInfo issues a fire-and-forget capability request.
func (m *Manager) RequestDeviceInfo(device navien.Device) error {
	session, err := m.currentSession()
	if err != nil {
		return err
	}
	if err := session.RequestDeviceInfo(device); err != nil {
		return m.classifyTransportErr(err, "device info request")
	}
	return nil
}

// SendCommand dispatches one named control command.
//
// On successful dispatch it always follows up with a status request so
// consumers see the effect promptly; the follow-up's own failure is
// classified separately and never invalidates the command's success.
//
// Returns:
//   - nil: dispatched (or queued for delivery after reconnect)
//   - ErrUnknownCommand: name not in the fixed command set
//   - ErrCommandFailed: hard transport failure
func (m *Manager) SendCommand(device navien.Device, command string, params CommandParams) error {
	session, err := m.currentSession()
	if err != nil {
		return err
	}

	var cmdErr error
	switch command {
	case CommandSetPower:
		on := true
		if params.PowerOn != nil {
			on = *params.PowerOn
		}
		cmdErr = session.SetPower(device, on)

	case CommandSetTemperature:
		if params.Temperature == nil {
			return fmt.Errorf("%w: set_temperature requires temperature", ErrCommandFailed)
		}
		cmdErr = session.SetDHWTemperature(device, *params.Temperature)

	case CommandSetDHWMode:
		if params.Mode == nil {
			return fmt.Errorf("%w: set_dhw_mode requires mode", ErrCommandFailed)
		}
		cmdErr = session.SetDHWMode(device, *params.Mode)

	case CommandSetTOUEnabled:
		enabled := true
		if params.Enabled != nil {
			enabled = *params.Enabled
		}
		cmdErr = session.SetTOUEnabled(device, enabled)

	case CommandEnableAntiLegionella:
		period := defaultAntiLegionellaPeriodDays
		if params.PeriodDays != nil {
			period = *params.PeriodDays
		}
		cmdErr = session.EnableAntiLegionella(device, period)

	case CommandDisableAntiLegionella:
		cmdErr = session.DisableAntiLegionella(device)

	case CommandUpdateReservations:
		enabled := true
		if params.Enabled != nil {
			enabled = *params.Enabled
		}
		cmdErr = session.UpdateReservations(device, params.Reservations, enabled)

	case CommandRequestReservations:
		cmdErr = session.RequestReservations(device)

	default:
		m.logger.Error("unknown command", "command", command)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	if cmdErr != nil {
		if classified := m.classifyTransportErr(cmdErr, "command "+command); classified != nil {
			return fmt.Errorf("%w: %s: %w", ErrCommandFailed, command, cmdErr)
		}
		// Queued: the transport delivers it after reconnect. Fall through
		// to the follow-up so consumers still get a prompt snapshot.
	}

	if err := session.RequestDeviceStatus(device); err != nil {
		m.classifyTransportErr(err, "post-command status request")
	}

	return nil
}

// ForceReconnect performs a full teardown, cool-down, re-setup, and
// re-subscription of every given device.
//
// Guarded by the reconnection-in-progress flag: a concurrent call while
// one is in flight returns ErrReconnectInProgress immediately with no
// side effects.
func (m *Manager) ForceReconnect(ctx context.Context, devices []navien.Device) error {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return ErrReconnectInProgress
	}
	defer m.reconnecting.Store(false)

	m.logger.Warn("forcing transport reconnection")

	m.Disconnect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.coolDown):
	}

	if err := m.Setup(ctx); err != nil {
		return fmt.Errorf("reconnect setup: %w", err)
	}

	m.consecutiveTimeouts.Store(0)

	for _, device := range devices {
		if err := m.SubscribeDevice(device); err != nil {
			m.logger.Warn("failed to re-subscribe device after reconnect",
				"device", device.MACAddress,
				"error", err,
			)
			continue
		}
		if err := m.StartPeriodicRequests(device); err != nil {
			m.logger.Warn("failed to restart periodic requests after reconnect",
				"device", device.MACAddress,
				"error", err,
			)
		}
	}

	m.logger.Info("reconnection successful")
	return nil
}

// Diagnostics returns a snapshot of the connection state.
func (m *Manager) Diagnostics() Diagnostics {
	m.mu.Lock()
	session := m.session
	var since *time.Time
	if m.connectedSince != nil {
		t := *m.connectedSince
		since = &t
	}
	m.mu.Unlock()

	d := Diagnostics{
		Connected:              session != nil && session.IsConnected(),
		ConnectedSince:         since,
		ConsecutiveTimeouts:    int(m.consecutiveTimeouts.Load()),
		ReconnectionInProgress: m.reconnecting.Load(),
	}
	if session != nil {
		d.Requests = session.Stats()
	}

	m.interruptMu.Lock()
	d.Interruptions = append([]Interruption(nil), m.interruptions...)
	m.interruptMu.Unlock()

	return d
}

// ConsecutiveTimeouts returns the current observational timeout counter.
func (m *Manager) ConsecutiveTimeouts() int {
	return int(m.consecutiveTimeouts.Load())
}

// currentSession returns the active session or ErrNotReady.
func (m *Manager) currentSession() (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, fmt.Errorf("%w: no transport session", ErrNotReady)
	}
	return m.session, nil
}

// classifyTransportErr separates soft/queued outcomes from hard failures.
//
// Returns:
//   - nil: the operation was queued for delivery after reconnect and
//     should be reported as success with a note
//   - err: hard failure, logged at error level
func (m *Manager) classifyTransportErr(err error, context string) error {
	if errors.Is(err, transport.ErrQueuedForReconnect) {
		m.logger.Debug("operation queued due to reconnection", "operation", context)
		return nil
	}
	m.logger.Error("transport operation failed", "operation", context, "error", err)
	return err
}

// Event handlers. These fire on transport network goroutines.

func (m *Manager) handleConnectionLost(ev transport.Event) {
	m.mu.Lock()
	m.connectedSince = nil
	m.mu.Unlock()
	m.logger.Error("connection lost", "error", ev.Err)
}

func (m *Manager) handleConnectionRestored(ev transport.Event) {
	now := ev.Timestamp
	m.mu.Lock()
	m.connectedSince = &now
	m.mu.Unlock()
	m.logger.Info("connection restored", "connected_since", now)
}

func (m *Manager) handleReconnectionFailed(ev transport.Event) {
	m.logger.Error("reconnection attempt failed",
		"attempt", ev.Attempt,
		"error", ev.Err,
	)
}

func (m *Manager) handleConnectionInterrupted(ev transport.Event) {
	record := Interruption{Timestamp: ev.Timestamp}
	if ev.Err != nil {
		record.Error = ev.Err.Error()
	}

	m.interruptMu.Lock()
	m.interruptions = append(m.interruptions, record)
	if len(m.interruptions) > maxInterruptionHistory {
		m.interruptions = m.interruptions[1:]
	}
	m.interruptMu.Unlock()
}

func (m *Manager) handleConnectionResumed(ev transport.Event) {
	m.logger.Info("connection resumed", "session_present", ev.SessionPresent)
}
