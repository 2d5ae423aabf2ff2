package navien

// Device is the immutable identity record for one NWP500 unit, as returned
// by the cloud device list. Created once at discovery time and never
// mutated afterwards.
type Device struct {
	// MACAddress is the unique hardware address used as the device key
	// throughout the system.
	MACAddress string `json:"mac_address"`

	// Name is the user-assigned display name from the vendor app.
	Name string `json:"name"`

	// ModelType is the vendor model code (e.g. "NWP500").
	ModelType string `json:"model_type"`

	// HomeSeq identifies the vendor-side home grouping the device
	// belongs to; required when building request topics.
	HomeSeq string `json:"home_seq,omitempty"`

	// Optional installation location.
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// DeviceStatus is a full telemetry snapshot for one device.
//
// Fields are pointers because the unit omits readings it cannot take
// (e.g. outside temperature without the optional sensor). A nil field
// means "not reported in this snapshot", never zero.
//
// Snapshots are replaced wholesale on every update; they are never
// partially merged, so a snapshot is always internally consistent.
type DeviceStatus struct {
	// Operation
	OperationMode  *int  `json:"operation_mode,omitempty"`
	DHWUse         *bool `json:"dhw_use,omitempty"`
	OperationBusy  *bool `json:"operation_busy,omitempty"`
	CompressorUse  *bool `json:"comp_use,omitempty"`
	HeatUpperUse   *bool `json:"heat_upper_use,omitempty"`
	HeatLowerUse   *bool `json:"heat_lower_use,omitempty"`
	EvaFanUse      *bool `json:"eva_fan_use,omitempty"`
	EcoUse         *bool `json:"eco_use,omitempty"`
	FreezeProtects *bool `json:"freeze_protection_use,omitempty"`

	// Temperatures (Fahrenheit, as delivered by the vendor service)
	DHWTemperature          *float64 `json:"dhw_temperature,omitempty"`
	DHWTemperatureSetting   *float64 `json:"dhw_temperature_setting,omitempty"`
	DHWTargetTemperature    *float64 `json:"dhw_target_temperature_setting,omitempty"`
	TankUpperTemperature    *float64 `json:"tank_upper_temperature,omitempty"`
	TankLowerTemperature    *float64 `json:"tank_lower_temperature,omitempty"`
	AmbientTemperature      *float64 `json:"ambient_temperature,omitempty"`
	OutsideTemperature      *float64 `json:"outside_temperature,omitempty"`
	CurrentInletTemperature *float64 `json:"current_inlet_temperature,omitempty"`
	DischargeTemperature    *float64 `json:"discharge_temperature,omitempty"`
	EvaporatorTemperature   *float64 `json:"evaporator_temperature,omitempty"`

	// Power and flow
	CurrentInstPower     *float64 `json:"current_inst_power,omitempty"`
	DHWChargePercent     *float64 `json:"dhw_charge_per,omitempty"`
	CurrentDHWFlowRate   *float64 `json:"current_dhw_flow_rate,omitempty"`
	CumulatedDHWFlowRate *float64 `json:"cumulated_dhw_flow_rate,omitempty"`

	// Schedules and modes
	TOUStatus            *bool `json:"tou_status,omitempty"`
	TOUOverrideStatus    *int  `json:"tou_override_status,omitempty"`
	AntiLegionellaUse    *bool `json:"anti_legionella_use,omitempty"`
	AntiLegionellaPeriod *int  `json:"anti_legionella_period,omitempty"`
	VacationDaySetting   *int  `json:"vacation_day_setting,omitempty"`
	VacationDayElapsed   *int  `json:"vacation_day_elapsed,omitempty"`

	// Diagnostics
	ErrorCode    *int `json:"error_code,omitempty"`
	SubErrorCode *int `json:"sub_error_code,omitempty"`
	WifiRSSI     *int `json:"wifi_rssi,omitempty"`
}

// DeviceFeature is the low-frequency capability descriptor for one device:
// firmware versions and supported ranges. Delivered on a separate channel
// from DeviceStatus and replaced independently of it.
type DeviceFeature struct {
	ControllerSerialNumber string `json:"controller_serial_number,omitempty"`
	ControllerSWVersion    string `json:"controller_sw_version,omitempty"`
	PanelSWVersion         string `json:"panel_sw_version,omitempty"`
	WifiSWVersion          string `json:"wifi_sw_version,omitempty"`

	// VolumeCode encodes the tank volume variant.
	VolumeCode int `json:"volume_code,omitempty"`

	// Supported DHW setpoint range (Fahrenheit).
	DHWTemperatureMin float64 `json:"dhw_temperature_min,omitempty"`
	DHWTemperatureMax float64 `json:"dhw_temperature_max,omitempty"`
}

// DHW operation modes as used by set_dhw_mode and reservations.
const (
	ModeHeatPump    = 1
	ModeElectric    = 2
	ModeEnergySaver = 3
	ModeHighDemand  = 4
	ModeVacation    = 5
	ModePowerOff    = 6
)

// ModeNames maps DHW mode identifiers to their friendly names.
var ModeNames = map[int]string{
	ModeHeatPump:    "heat_pump",
	ModeElectric:    "electric",
	ModeEnergySaver: "energy_saver",
	ModeHighDemand:  "high_demand",
	ModeVacation:    "vacation",
	ModePowerOff:    "power_off",
}

// Reservation is one weekly schedule entry for a device.
type Reservation struct {
	// Days is a bitmask of weekdays, bit 0 = Sunday through bit 6 = Saturday.
	Days int `json:"days"`

	Hour   int `json:"hour"`
	Minute int `json:"minute"`

	// Mode is the DHW operation mode to switch to (ModeHeatPump..ModePowerOff).
	Mode int `json:"mode"`

	// Temperature is the setpoint to apply, 0 to keep the current setpoint.
	Temperature float64 `json:"temperature,omitempty"`
}
