package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openhwp/navibridge/internal/bridge"
	"github.com/openhwp/navibridge/internal/navien"
)

// decodeMap unmarshals a recorded JSON body into a generic map.
func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v; body: %s", err, w.Body.String())
	}
	return resp
}

func TestListDevices(t *testing.T) {
	coord := newMockCoordinator()
	second := navien.Device{MACAddress: "04786332fcb1", Name: "Garage Heater", ModelType: "NWP500"}
	coord.devices = append(coord.devices, second)
	coord.states[second.MACAddress] = &bridge.DeviceState{Device: second}

	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeMap(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestGetDevice(t *testing.T) {
	coord := newMockCoordinator()
	charge := 87.0
	now := time.Now().UTC()
	coord.states[testMAC].Status = &navien.DeviceStatus{DHWChargePercent: &charge}
	coord.states[testMAC].LastUpdate = &now

	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+testMAC, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var state bridge.DeviceState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Device.MACAddress != testMAC {
		t.Errorf("mac = %q, want %q", state.Device.MACAddress, testMAC)
	}
	if state.Status == nil || state.Status.DHWChargePercent == nil || *state.Status.DHWChargePercent != 87.0 {
		t.Errorf("charge percent not round-tripped: %+v", state.Status)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/aabbccddeeff", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetDevice_InvalidMAC(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), nil, "")
	router := srv.buildRouter()

	for _, mac := range []string{"short", "04786332fca0ff", "0478_332fca0"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+mac, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("mac %q: status = %d, want %d", mac, w.Code, http.StatusBadRequest)
		}
	}
}

func TestGetDeviceHistory(t *testing.T) {
	history := &mockHistory{
		entries: []navien.StatusHistoryEntry{
			{ID: 2, MACAddress: testMAC, Source: navien.HistorySourcePush},
			{ID: 1, MACAddress: testMAC, Source: navien.HistorySourcePush},
		},
	}
	srv := testServer(t, newMockCoordinator(), history, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+testMAC+"/history?limit=25", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeMap(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
	if history.lastMAC != testMAC {
		t.Errorf("history queried for %q, want %q", history.lastMAC, testMAC)
	}
	if history.lastLim != 25 {
		t.Errorf("limit = %d, want 25", history.lastLim)
	}
}

func TestGetDeviceHistory_DefaultLimit(t *testing.T) {
	history := &mockHistory{}
	srv := testServer(t, newMockCoordinator(), history, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+testMAC+"/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if history.lastLim != defaultHistoryLimit {
		t.Errorf("limit = %d, want %d", history.lastLim, defaultHistoryLimit)
	}
}

func TestGetDeviceHistory_InvalidLimit(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), &mockHistory{}, "")
	router := srv.buildRouter()

	for _, limit := range []string{"0", "-5", "abc", "9999"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+testMAC+"/history?limit="+limit, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: status = %d, want %d", limit, w.Code, http.StatusBadRequest)
		}
	}
}

func TestGetDeviceHistory_UnknownDevice(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), &mockHistory{}, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/aabbccddeeff/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetDeviceHistory_Unavailable(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+testMAC+"/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestSendCommand(t *testing.T) {
	coord := newMockCoordinator()
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	body := `{"command": "set_temperature", "params": {"temperature": 51.5}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+testMAC+"/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	if coord.commandCount() != 1 {
		t.Fatalf("commands dispatched = %d, want 1", coord.commandCount())
	}
	call := coord.commands[0]
	if call.command != bridge.CommandSetTemperature {
		t.Errorf("command = %q, want %q", call.command, bridge.CommandSetTemperature)
	}
	if call.params.Temperature == nil || *call.params.Temperature != 51.5 {
		t.Errorf("temperature param not plumbed: %+v", call.params)
	}
}

func TestSendCommand_UnknownDevice(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), nil, "")
	router := srv.buildRouter()

	body := `{"command": "set_power", "params": {"power_on": true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/aabbccddeeff/commands", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSendCommand_UnknownCommand(t *testing.T) {
	coord := newMockCoordinator()
	coord.commandErr = bridge.ErrUnknownCommand
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	body := `{"command": "make_coffee"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+testMAC+"/commands", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSendCommand_TransportFailure(t *testing.T) {
	coord := newMockCoordinator()
	coord.commandErr = bridge.ErrCommandFailed
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	body := `{"command": "set_power", "params": {"power_on": false}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+testMAC+"/commands", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestSendCommand_NotConnected(t *testing.T) {
	coord := newMockCoordinator()
	coord.commandErr = bridge.ErrNotReady
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	body := `{"command": "set_power", "params": {"power_on": true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+testMAC+"/commands", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestSendCommand_InvalidBody(t *testing.T) {
	srv := testServer(t, newMockCoordinator(), nil, "")
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing command", `{"params": {"power_on": true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+testMAC+"/commands", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	coord := newMockCoordinator()
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if coord.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", coord.refreshes)
	}

	resp := decodeMap(t, w)
	if resp["status"] != "refresh_triggered" {
		t.Errorf("status = %v, want refresh_triggered", resp["status"])
	}
}

func TestRefresh_SetupIncomplete(t *testing.T) {
	coord := newMockCoordinator()
	coord.refreshErr = bridge.ErrNotReady
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestDiagnostics(t *testing.T) {
	coord := newMockCoordinator()
	coord.diag = bridge.CoordinatorDiagnostics{Ready: true, DeviceCount: 1}
	srv := testServer(t, coord, nil, "")
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var diag bridge.CoordinatorDiagnostics
	if err := json.Unmarshal(w.Body.Bytes(), &diag); err != nil {
		t.Fatalf("unmarshal diagnostics: %v", err)
	}
	if !diag.Ready || diag.DeviceCount != 1 {
		t.Errorf("diagnostics = %+v, want ready with 1 device", diag)
	}
}
