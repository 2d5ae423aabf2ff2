package transport

import "github.com/openhwp/navibridge/internal/navien"

// The broker speaks camelCase JSON on every channel, commands and reports
// alike. navien.DeviceStatus and navien.DeviceFeature carry snake_case tags
// for the consumer API, so report payloads decode through these wire shapes
// and are converted field by field.

// statusPayload is the wire shape of a status report.
type statusPayload struct {
	OperationMode  *int  `json:"operationMode"`
	DHWUse         *bool `json:"dhwUse"`
	OperationBusy  *bool `json:"operationBusy"`
	CompressorUse  *bool `json:"compUse"`
	HeatUpperUse   *bool `json:"heatUpperUse"`
	HeatLowerUse   *bool `json:"heatLowerUse"`
	EvaFanUse      *bool `json:"evaFanUse"`
	EcoUse         *bool `json:"ecoUse"`
	FreezeProtects *bool `json:"freezeProtectionUse"`

	DHWTemperature          *float64 `json:"dhwTemperature"`
	DHWTemperatureSetting   *float64 `json:"dhwTemperatureSetting"`
	DHWTargetTemperature    *float64 `json:"dhwTargetTemperatureSetting"`
	TankUpperTemperature    *float64 `json:"tankUpperTemperature"`
	TankLowerTemperature    *float64 `json:"tankLowerTemperature"`
	AmbientTemperature      *float64 `json:"ambientTemperature"`
	OutsideTemperature      *float64 `json:"outsideTemperature"`
	CurrentInletTemperature *float64 `json:"currentInletTemperature"`
	DischargeTemperature    *float64 `json:"dischargeTemperature"`
	EvaporatorTemperature   *float64 `json:"evaporatorTemperature"`

	CurrentInstPower     *float64 `json:"currentInstPower"`
	DHWChargePercent     *float64 `json:"dhwChargePer"`
	CurrentDHWFlowRate   *float64 `json:"currentDhwFlowRate"`
	CumulatedDHWFlowRate *float64 `json:"cumulatedDhwFlowRate"`

	TOUStatus            *bool `json:"touStatus"`
	TOUOverrideStatus    *int  `json:"touOverrideStatus"`
	AntiLegionellaUse    *bool `json:"antiLegionellaUse"`
	AntiLegionellaPeriod *int  `json:"antiLegionellaPeriod"`
	VacationDaySetting   *int  `json:"vacationDaySetting"`
	VacationDayElapsed   *int  `json:"vacationDayElapsed"`

	ErrorCode    *int `json:"errorCode"`
	SubErrorCode *int `json:"subErrorCode"`
	WifiRSSI     *int `json:"wifiRssi"`
}

func (p statusPayload) toStatus() navien.DeviceStatus {
	return navien.DeviceStatus{
		OperationMode:  p.OperationMode,
		DHWUse:         p.DHWUse,
		OperationBusy:  p.OperationBusy,
		CompressorUse:  p.CompressorUse,
		HeatUpperUse:   p.HeatUpperUse,
		HeatLowerUse:   p.HeatLowerUse,
		EvaFanUse:      p.EvaFanUse,
		EcoUse:         p.EcoUse,
		FreezeProtects: p.FreezeProtects,

		DHWTemperature:          p.DHWTemperature,
		DHWTemperatureSetting:   p.DHWTemperatureSetting,
		DHWTargetTemperature:    p.DHWTargetTemperature,
		TankUpperTemperature:    p.TankUpperTemperature,
		TankLowerTemperature:    p.TankLowerTemperature,
		AmbientTemperature:      p.AmbientTemperature,
		OutsideTemperature:      p.OutsideTemperature,
		CurrentInletTemperature: p.CurrentInletTemperature,
		DischargeTemperature:    p.DischargeTemperature,
		EvaporatorTemperature:   p.EvaporatorTemperature,

		CurrentInstPower:     p.CurrentInstPower,
		DHWChargePercent:     p.DHWChargePercent,
		CurrentDHWFlowRate:   p.CurrentDHWFlowRate,
		CumulatedDHWFlowRate: p.CumulatedDHWFlowRate,

		TOUStatus:            p.TOUStatus,
		TOUOverrideStatus:    p.TOUOverrideStatus,
		AntiLegionellaUse:    p.AntiLegionellaUse,
		AntiLegionellaPeriod: p.AntiLegionellaPeriod,
		VacationDaySetting:   p.VacationDaySetting,
		VacationDayElapsed:   p.VacationDayElapsed,

		ErrorCode:    p.ErrorCode,
		SubErrorCode: p.SubErrorCode,
		WifiRSSI:     p.WifiRSSI,
	}
}

// featurePayload is the wire shape of a feature report.
type featurePayload struct {
	ControllerSerialNumber string  `json:"controllerSerialNumber"`
	ControllerSWVersion    string  `json:"controllerSwVersion"`
	PanelSWVersion         string  `json:"panelSwVersion"`
	WifiSWVersion          string  `json:"wifiSwVersion"`
	VolumeCode             int     `json:"volumeCode"`
	DHWTemperatureMin      float64 `json:"dhwTemperatureMin"`
	DHWTemperatureMax      float64 `json:"dhwTemperatureMax"`
}

func (p featurePayload) toFeature() navien.DeviceFeature {
	return navien.DeviceFeature{
		ControllerSerialNumber: p.ControllerSerialNumber,
		ControllerSWVersion:    p.ControllerSWVersion,
		PanelSWVersion:         p.PanelSWVersion,
		WifiSWVersion:          p.WifiSWVersion,
		VolumeCode:             p.VolumeCode,
		DHWTemperatureMin:      p.DHWTemperatureMin,
		DHWTemperatureMax:      p.DHWTemperatureMax,
	}
}
