package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/openhwp/navibridge/internal/infrastructure/config"
	"github.com/openhwp/navibridge/internal/navien"
)

// Logger is the minimal logging interface used by the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenSource supplies the cloud access token used as the broker password.
// *auth.Client satisfies this.
type TokenSource interface {
	AccessToken() (string, error)
	EnsureValidToken(ctx context.Context) error
}

// pahoClient is the subset of pahomqtt.Client the session uses.
// Narrowing the dependency lets tests run against a fake without a broker.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	IsConnected() bool
	IsConnectionOpen() bool
}

// StatusHandler receives decoded status reports for one device.
type StatusHandler func(device navien.Device, status navien.DeviceStatus)

// FeatureHandler receives decoded feature reports for one device.
type FeatureHandler func(device navien.Device, feature navien.DeviceFeature)

// deviceSubscription tracks one device's data subscriptions for
// restoration after a reconnect.
type deviceSubscription struct {
	device    navien.Device
	onStatus  StatusHandler
	onFeature FeatureHandler
}

// Stats is a snapshot of the session's request/response telemetry.
type Stats struct {
	RequestsSent      uint64     `json:"requests_sent"`
	ResponsesReceived uint64     `json:"responses_received"`
	LastRequestID     string     `json:"last_request_id,omitempty"`
	LastRequestAt     *time.Time `json:"last_request_at,omitempty"`
	LastResponseAt    *time.Time `json:"last_response_at,omitempty"`
}

// Session is one connection to the Navien cloud broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Device subscriptions are automatically restored on reconnection.
type Session struct {
	cfg    config.TransportConfig
	tokens TokenSource
	logger Logger

	// newClient builds the paho client; swapped in tests.
	newClient func(*pahomqtt.ClientOptions) pahoClient

	client   pahoClient
	clientMu sync.RWMutex

	events *eventRegistry
	topics Topics

	// subs tracks device subscriptions keyed by MAC for re-subscription
	// on reconnect.
	subs  map[string]deviceSubscription
	subMu sync.RWMutex

	// everConnected distinguishes an interruption (reconnect pending)
	// from a session that was never up.
	everConnected bool
	connMu        sync.Mutex

	periodic *periodicRunner

	stats   Stats
	statsMu sync.Mutex
}

// NewSession creates an unconnected session. Call Connect to establish it.
func NewSession(cfg config.TransportConfig, tokens TokenSource, logger Logger) *Session {
	s := &Session{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
		newClient: func(opts *pahomqtt.ClientOptions) pahoClient {
			return pahomqtt.NewClient(opts)
		},
		events: newEventRegistry(),
		subs:   make(map[string]deviceSubscription),
	}
	s.periodic = newPeriodicRunner(s, logger)
	return s
}

// On registers a handler for connection lifecycle events and returns an id
// usable with Off. Handlers run on network goroutines and must not block.
func (s *Session) On(kind EventKind, handler EventHandler) SubscriberID {
	return s.events.on(kind, handler)
}

// Off removes exactly the registration identified by id.
func (s *Session) Off(kind EventKind, id SubscriberID) {
	s.events.off(kind, id)
}

// Connect establishes the broker session.
//
// It refreshes the cloud token first so the broker handshake never runs
// with stale credentials, then connects with auto-reconnect enabled.
//
// Returns:
//   - error: wrapped auth error, or ErrConnectionFailed
func (s *Session) Connect(ctx context.Context) error {
	if err := s.tokens.EnsureValidToken(ctx); err != nil {
		return fmt.Errorf("refreshing token before connect: %w", err)
	}

	opts := buildClientOptions(s.cfg, s.tokens)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.logger.Debug("broker session reconnecting")
	})

	client := s.newClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.clientMu.Lock()
	s.client = client
	s.clientMu.Unlock()

	s.connMu.Lock()
	s.everConnected = true
	s.connMu.Unlock()

	return nil
}

// Disconnect tears the session down: stops all periodic tickers and
// disconnects from the broker. Safe to call on a session that never
// connected; safe to call more than once.
func (s *Session) Disconnect() {
	s.periodic.stopAll()

	s.clientMu.Lock()
	client := s.client
	s.client = nil
	s.clientMu.Unlock()

	if client == nil {
		return
	}

	client.Disconnect(defaultDisconnectQuiesce)

	s.connMu.Lock()
	s.everConnected = false
	s.connMu.Unlock()
}

// IsConnected reports whether the broker session is fully open.
func (s *Session) IsConnected() bool {
	client := s.getClient()
	return client != nil && client.IsConnectionOpen()
}

// Stats returns a snapshot of request/response telemetry.
func (s *Session) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Session) getClient() pahoClient {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

// handleConnect runs on initial connect and on every automatic reconnect.
func (s *Session) handleConnect() {
	s.connMu.Lock()
	wasUp := s.everConnected
	s.everConnected = true
	s.connMu.Unlock()

	s.restoreSubscriptions()

	now := time.Now()
	if wasUp {
		s.logger.Info("broker session resumed")
		s.events.emit(Event{Kind: EventConnectionResumed, Timestamp: now}, s.logger)
		s.events.emit(Event{Kind: EventConnectionRestored, Timestamp: now}, s.logger)
	}
}

// handleConnectionLost runs when the broker session drops. With
// auto-reconnect enabled this is an interruption, not a terminal loss.
func (s *Session) handleConnectionLost(err error) {
	s.logger.Warn("broker session interrupted", "error", err)
	now := time.Now()
	s.events.emit(Event{Kind: EventConnectionInterrupted, Timestamp: now, Err: err}, s.logger)
	s.events.emit(Event{Kind: EventConnectionLost, Timestamp: now, Err: err}, s.logger)
}

// restoreSubscriptions re-subscribes every tracked device after reconnect.
// Failures are logged and surfaced as reconnection_failed events so the
// owner can decide whether to force a full reconnect.
func (s *Session) restoreSubscriptions() {
	s.subMu.RLock()
	subs := make([]deviceSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.RUnlock()

	for _, sub := range subs {
		if err := s.subscribeDevice(sub); err != nil {
			s.logger.Error("failed to restore device subscription",
				"device", sub.device.MACAddress,
				"error", err,
			)
			s.events.emit(Event{
				Kind:      EventReconnectionFailed,
				Timestamp: time.Now(),
				Err:       err,
			}, s.logger)
		}
	}
}

// SubscribeDeviceStatus registers a handler for a device's status reports.
// The subscription survives reconnects.
func (s *Session) SubscribeDeviceStatus(device navien.Device, handler StatusHandler) error {
	return s.updateSubscription(device, func(sub *deviceSubscription) {
		sub.onStatus = handler
	})
}

// SubscribeDeviceFeature registers a handler for a device's feature report.
// The subscription survives reconnects.
func (s *Session) SubscribeDeviceFeature(device navien.Device, handler FeatureHandler) error {
	return s.updateSubscription(device, func(sub *deviceSubscription) {
		sub.onFeature = handler
	})
}

// updateSubscription records the handler and (re)subscribes the device's
// topics on the broker.
func (s *Session) updateSubscription(device navien.Device, apply func(*deviceSubscription)) error {
	s.subMu.Lock()
	sub := s.subs[device.MACAddress]
	sub.device = device
	apply(&sub)
	s.subs[device.MACAddress] = sub
	s.subMu.Unlock()

	return s.subscribeDevice(sub)
}

// subscribeDevice subscribes the broker topics for one tracked device.
func (s *Session) subscribeDevice(sub deviceSubscription) error {
	client := s.getClient()
	if client == nil {
		return ErrNotConnected
	}

	mac := sub.device.MACAddress

	if sub.onStatus != nil {
		handler := s.wrapStatusHandler(sub.device, sub.onStatus)
		if err := s.subscribe(client, s.topics.DeviceStatus(mac), handler); err != nil {
			return err
		}
	}
	if sub.onFeature != nil {
		handler := s.wrapFeatureHandler(sub.device, sub.onFeature)
		if err := s.subscribe(client, s.topics.DeviceFeature(mac), handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) subscribe(client pahoClient, topic string, handler pahomqtt.MessageHandler) error {
	token := client.Subscribe(topic, byte(s.cfg.QoS), handler)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// wrapStatusHandler decodes a status payload and invokes the handler with
// panic recovery. A malformed payload is logged and dropped; it never
// disturbs the session.
func (s *Session) wrapStatusHandler(device navien.Device, handler StatusHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("status handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		var payload statusPayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			s.logger.Warn("dropping malformed status payload",
				"topic", msg.Topic(),
				"error", err,
			)
			return
		}

		s.recordResponse()
		handler(device, payload.toStatus())
	}
}

// wrapFeatureHandler decodes a feature payload and invokes the handler
// with panic recovery.
func (s *Session) wrapFeatureHandler(device navien.Device, handler FeatureHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("feature handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		var payload featurePayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			s.logger.Warn("dropping malformed feature payload",
				"topic", msg.Topic(),
				"error", err,
			)
			return
		}

		s.recordResponse()
		handler(device, payload.toFeature())
	}
}

// recordRequest updates telemetry for one outbound request.
func (s *Session) recordRequest(requestID string) {
	now := time.Now()
	s.statsMu.Lock()
	s.stats.RequestsSent++
	s.stats.LastRequestID = requestID
	s.stats.LastRequestAt = &now
	s.statsMu.Unlock()
}

// recordResponse updates telemetry for one inbound device report.
func (s *Session) recordResponse() {
	now := time.Now()
	s.statsMu.Lock()
	s.stats.ResponsesReceived++
	s.stats.LastResponseAt = &now
	s.statsMu.Unlock()
}

// newRequestID mints a request correlation id.
func newRequestID() string {
	return uuid.NewString()
}
