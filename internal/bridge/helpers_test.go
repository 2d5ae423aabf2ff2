package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openhwp/navibridge/internal/navien"
	"github.com/openhwp/navibridge/internal/navien/transport"
)

// testLogger discards all output.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// mockAuth implements AuthClient.
type mockAuth struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockAuth) Authenticate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *mockAuth) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockAPI implements APIClient.
type mockAPI struct {
	mu      sync.Mutex
	devices []navien.Device
	err     error
	calls   int
}

func (m *mockAPI) ListDevices(context.Context) ([]navien.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.devices, nil
}

// commandCall records one control command dispatched to the transport.
type commandCall struct {
	name   string
	device string
}

// mockTransport implements Transport in memory.
type mockTransport struct {
	mu sync.Mutex

	connected bool

	connectErr error
	// requestStatusErrs is consumed one per RequestDeviceStatus call;
	// when exhausted requests succeed.
	requestStatusErrs []error
	// subscribeStatusErrs maps MAC to a status subscription failure.
	subscribeStatusErrs map[string]error
	commandErr          error

	connectCalls       int
	disconnectCalls    int
	stopAllCalls       int
	statusRequests     []string
	infoRequests       []string
	commands           []commandCall
	periodicStatus     []string
	periodicInfo       []string
	statusHandlers     map[string]transport.StatusHandler
	featureHandlers    map[string]transport.FeatureHandler
	eventSubscriptions map[transport.EventKind]map[transport.SubscriberID]transport.EventHandler
	nextSubID          transport.SubscriberID
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		subscribeStatusErrs: make(map[string]error),
		statusHandlers:      make(map[string]transport.StatusHandler),
		featureHandlers:     make(map[string]transport.FeatureHandler),
		eventSubscriptions:  make(map[transport.EventKind]map[transport.SubscriberID]transport.EventHandler),
	}
}

func (m *mockTransport) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCalls++
	m.connected = false
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) On(kind transport.EventKind, handler transport.EventHandler) transport.SubscriberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	if m.eventSubscriptions[kind] == nil {
		m.eventSubscriptions[kind] = make(map[transport.SubscriberID]transport.EventHandler)
	}
	m.eventSubscriptions[kind][m.nextSubID] = handler
	return m.nextSubID
}

func (m *mockTransport) Off(kind transport.EventKind, id transport.SubscriberID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.eventSubscriptions[kind], id)
}

func (m *mockTransport) SubscribeDeviceStatus(device navien.Device, handler transport.StatusHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.subscribeStatusErrs[device.MACAddress]; err != nil {
		return err
	}
	m.statusHandlers[device.MACAddress] = handler
	return nil
}

func (m *mockTransport) SubscribeDeviceFeature(device navien.Device, handler transport.FeatureHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.featureHandlers[device.MACAddress] = handler
	return nil
}

func (m *mockTransport) RequestDeviceStatus(device navien.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusRequests = append(m.statusRequests, device.MACAddress)
	if len(m.requestStatusErrs) > 0 {
		err := m.requestStatusErrs[0]
		m.requestStatusErrs = m.requestStatusErrs[1:]
		return err
	}
	return nil
}

func (m *mockTransport) RequestDeviceInfo(device navien.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoRequests = append(m.infoRequests, device.MACAddress)
	return nil
}

func (m *mockTransport) recordCommand(name string, device navien.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, commandCall{name: name, device: device.MACAddress})
	return m.commandErr
}

func (m *mockTransport) SetPower(device navien.Device, _ bool) error {
	return m.recordCommand("set_power", device)
}

func (m *mockTransport) SetDHWTemperature(device navien.Device, _ float64) error {
	return m.recordCommand("set_dhw_temperature", device)
}

func (m *mockTransport) SetDHWMode(device navien.Device, _ int) error {
	return m.recordCommand("set_dhw_mode", device)
}

func (m *mockTransport) SetTOUEnabled(device navien.Device, _ bool) error {
	return m.recordCommand("set_tou_enabled", device)
}

func (m *mockTransport) EnableAntiLegionella(device navien.Device, _ int) error {
	return m.recordCommand("enable_anti_legionella", device)
}

func (m *mockTransport) DisableAntiLegionella(device navien.Device) error {
	return m.recordCommand("disable_anti_legionella", device)
}

func (m *mockTransport) UpdateReservations(device navien.Device, _ []navien.Reservation, _ bool) error {
	return m.recordCommand("update_reservations", device)
}

func (m *mockTransport) RequestReservations(device navien.Device) error {
	return m.recordCommand("request_reservations", device)
}

func (m *mockTransport) StartPeriodicStatusRequests(device navien.Device, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periodicStatus = append(m.periodicStatus, device.MACAddress)
}

func (m *mockTransport) StartPeriodicInfoRequests(device navien.Device, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periodicInfo = append(m.periodicInfo, device.MACAddress)
}

func (m *mockTransport) StopAllPeriodicTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAllCalls++
}

func (m *mockTransport) Stats() transport.Stats {
	return transport.Stats{}
}

// emitStatus delivers a push status update through the registered handler,
// simulating the broker.
func (m *mockTransport) emitStatus(t *testing.T, device navien.Device, status navien.DeviceStatus) {
	t.Helper()
	m.mu.Lock()
	handler := m.statusHandlers[device.MACAddress]
	m.mu.Unlock()
	if handler == nil {
		t.Fatalf("no status handler registered for %s", device.MACAddress)
	}
	handler(device, status)
}

// emitFeature delivers a push feature update through the registered handler.
func (m *mockTransport) emitFeature(t *testing.T, device navien.Device, feature navien.DeviceFeature) {
	t.Helper()
	m.mu.Lock()
	handler := m.featureHandlers[device.MACAddress]
	m.mu.Unlock()
	if handler == nil {
		t.Fatalf("no feature handler registered for %s", device.MACAddress)
	}
	handler(device, feature)
}

func (m *mockTransport) statusRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statusRequests)
}

func (m *mockTransport) eventHandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, subs := range m.eventSubscriptions {
		total += len(subs)
	}
	return total
}

func (m *mockTransport) hasStatusHandler(mac string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.statusHandlers[mac]
	return ok
}

func testDevice() navien.Device {
	return navien.Device{MACAddress: "04786332fca0", Name: "Water Heater", ModelType: "52"}
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
