package transport

import (
	"encoding/json"
	"fmt"

	"github.com/openhwp/navibridge/internal/navien"
)

// Command names on the device's command channel.
const (
	cmdStatusRequest       = "status_request"
	cmdInfoRequest         = "info_request"
	cmdSetPower            = "set_power"
	cmdSetDHWTemperature   = "set_dhw_temperature"
	cmdSetDHWMode          = "set_dhw_mode"
	cmdSetTOUEnabled       = "set_tou_enabled"
	cmdSetAntiLegionella   = "set_anti_legionella"
	cmdUpdateReservations  = "update_reservations"
	cmdRequestReservations = "request_reservations"
)

// commandEnvelope is the wire shape of every publish on the command channel.
type commandEnvelope struct {
	RequestID  string `json:"requestId"`
	MACAddress string `json:"macAddress"`
	Command    string `json:"command"`
	Params     any    `json:"params,omitempty"`
}

// RequestDeviceStatus asks the device to publish a fresh status report.
// Fire and forget: the report arrives on the status subscription.
func (s *Session) RequestDeviceStatus(device navien.Device) error {
	return s.publishCommand(device, cmdStatusRequest, nil)
}

// RequestDeviceInfo asks the device to publish its feature report.
func (s *Session) RequestDeviceInfo(device navien.Device) error {
	return s.publishCommand(device, cmdInfoRequest, nil)
}

// SetPower turns the water heater on or off.
func (s *Session) SetPower(device navien.Device, on bool) error {
	return s.publishCommand(device, cmdSetPower, map[string]any{"on": on})
}

// SetDHWTemperature sets the hot water target temperature.
func (s *Session) SetDHWTemperature(device navien.Device, temperature float64) error {
	return s.publishCommand(device, cmdSetDHWTemperature, map[string]any{
		"temperature": temperature,
	})
}

// SetDHWMode sets the operation mode (navien.ModeHeatPump etc.).
func (s *Session) SetDHWMode(device navien.Device, mode int) error {
	if _, ok := navien.ModeNames[mode]; !ok {
		return fmt.Errorf("%w: unknown dhw mode %d", ErrPublishFailed, mode)
	}
	return s.publishCommand(device, cmdSetDHWMode, map[string]any{"mode": mode})
}

// SetTOUEnabled enables or disables time-of-use scheduling.
func (s *Session) SetTOUEnabled(device navien.Device, enabled bool) error {
	return s.publishCommand(device, cmdSetTOUEnabled, map[string]any{"enabled": enabled})
}

// EnableAntiLegionella enables the periodic high-temperature sanitation
// cycle with the given period in days.
func (s *Session) EnableAntiLegionella(device navien.Device, periodDays int) error {
	return s.publishCommand(device, cmdSetAntiLegionella, map[string]any{
		"enabled":     true,
		"period_days": periodDays,
	})
}

// DisableAntiLegionella disables the sanitation cycle.
func (s *Session) DisableAntiLegionella(device navien.Device) error {
	return s.publishCommand(device, cmdSetAntiLegionella, map[string]any{
		"enabled": false,
	})
}

// UpdateReservations replaces the device's weekly schedule.
func (s *Session) UpdateReservations(device navien.Device, reservations []navien.Reservation, enabled bool) error {
	return s.publishCommand(device, cmdUpdateReservations, map[string]any{
		"enabled":      enabled,
		"reservations": reservations,
	})
}

// RequestReservations asks the device to publish its current schedule.
func (s *Session) RequestReservations(device navien.Device) error {
	return s.publishCommand(device, cmdRequestReservations, nil)
}

// publishCommand publishes one envelope on the device's command channel.
//
// Returns:
//   - nil: delivered and acknowledged
//   - ErrQueuedForReconnect: accepted into the outbound store while the
//     session reconnects; delivery happens when it resumes
//   - ErrNotConnected / ErrPublishFailed: hard failures
func (s *Session) publishCommand(device navien.Device, command string, params any) error {
	client := s.getClient()
	if client == nil {
		return ErrNotConnected
	}

	requestID := newRequestID()
	payload, err := json.Marshal(commandEnvelope{
		RequestID:  requestID,
		MACAddress: device.MACAddress,
		Command:    command,
		Params:     params,
	})
	if err != nil {
		return fmt.Errorf("%w: marshalling %s: %w", ErrPublishFailed, command, err)
	}

	// A reconnecting client accepts publishes into its store and delivers
	// them when the session resumes. IsConnected() stays true during the
	// retry loop while IsConnectionOpen() is false.
	queued := client.IsConnected() && !client.IsConnectionOpen()
	if !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(s.topics.DeviceCommand(device.MACAddress), byte(s.cfg.QoS), false, payload)
	if queued {
		s.recordRequest(requestID)
		s.logger.Debug("command queued for delivery after reconnect",
			"command", command,
			"device", device.MACAddress,
			"request_id", requestID,
		)
		return fmt.Errorf("%w: %s", ErrQueuedForReconnect, command)
	}

	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, command, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, command, err)
	}

	s.recordRequest(requestID)
	return nil
}
