package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openhwp/navibridge/internal/bridge"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// macAddressLen is the length of a MAC address in plain hex form
	// (no separators), as reported by the vendor device list.
	macAddressLen = 12
)

// commandRequest is the body for POST /devices/{mac}/commands.
type commandRequest struct {
	Command string               `json:"command"`
	Params  bridge.CommandParams `json:"params"`
}

// handleListDevices returns all discovered devices with their state snapshots.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.coordinator.Devices()

	states := make([]*bridge.DeviceState, 0, len(devices))
	for _, d := range devices {
		if state := s.coordinator.GetDeviceState(d.MACAddress); state != nil {
			states = append(states, state)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": states,
		"count":   len(states),
	})
}

// handleGetDevice returns the state snapshot for a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac, err := parseMACParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	state := s.coordinator.GetDeviceState(mac)
	if state == nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// handleGetDeviceHistory returns recent status history entries for a device.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	mac, err := parseMACParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.coordinator.GetDeviceState(mac) == nil {
		writeNotFound(w, "device not found")
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "status history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), mac, limit)
	if err != nil {
		writeInternalError(w, "failed to load status history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mac_address": mac,
		"history":     entries,
		"count":       len(entries),
	})
}

// handleSendCommand dispatches a control command to a device.
//
// Commands are acknowledged once handed to the transport; the resulting state
// change arrives asynchronously via the follow-up status request.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	mac, err := parseMACParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	err = s.coordinator.SendControlCommand(mac, req.Command, req.Params)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"mac_address": mac,
			"command":     req.Command,
			"status":      "accepted",
		})
	case errors.Is(err, bridge.ErrUnknownDevice):
		writeNotFound(w, "device not found")
	case errors.Is(err, bridge.ErrUnknownCommand):
		writeBadRequest(w, err.Error())
	case errors.Is(err, bridge.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge not connected")
	default:
		s.logger.Error("command dispatch failed", "mac", mac, "command", req.Command, "error", err)
		writeBadGateway(w, "command dispatch failed")
	}
}

// handleRefresh triggers a coordinator refresh cycle.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Refresh(r.Context()); err != nil {
		if errors.Is(err, bridge.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge setup incomplete")
			return
		}
		s.logger.Error("refresh failed", "error", err)
		writeBadGateway(w, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "refresh_triggered",
		"ready":  s.coordinator.Ready(),
	})
}

// handleDiagnostics returns connection and coordinator telemetry.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Diagnostics())
}

// parseMACParam extracts and normalises the mac URL parameter.
func parseMACParam(r *http.Request) (string, error) {
	mac := strings.ToLower(chi.URLParam(r, "mac"))
	if len(mac) != macAddressLen {
		return "", fmt.Errorf("invalid mac address")
	}
	for _, c := range mac {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("invalid mac address")
		}
	}
	return mac, nil
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
