package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openhwp/navibridge/internal/navien"
)

// statusMeasurement is the measurement name for water heater telemetry.
const statusMeasurement = "water_heater_status"

// WriteStatusMetrics exports one device status snapshot as a point.
//
// Only fields present in the snapshot are written; nil pointer fields are
// skipped so sparse vendor reports do not produce zero-valued samples.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteStatusMetrics(mac string, status navien.DeviceStatus) {
	if !c.IsConnected() {
		return
	}

	fields := statusFields(status)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		statusMeasurement,
		map[string]string{"device": mac},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// statusFields flattens a status snapshot into InfluxDB fields.
func statusFields(status navien.DeviceStatus) map[string]any {
	fields := make(map[string]any)

	putFloat := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}
	putInt := func(name string, v *int) {
		if v != nil {
			fields[name] = *v
		}
	}
	putBool := func(name string, v *bool) {
		if v != nil {
			fields[name] = *v
		}
	}

	putFloat("dhw_temperature", status.DHWTemperature)
	putFloat("dhw_temperature_setting", status.DHWTemperatureSetting)
	putFloat("dhw_target_temperature", status.DHWTargetTemperature)
	putFloat("tank_upper_temperature", status.TankUpperTemperature)
	putFloat("tank_lower_temperature", status.TankLowerTemperature)
	putFloat("ambient_temperature", status.AmbientTemperature)
	putFloat("outside_temperature", status.OutsideTemperature)
	putFloat("inlet_temperature", status.CurrentInletTemperature)
	putFloat("discharge_temperature", status.DischargeTemperature)
	putFloat("evaporator_temperature", status.EvaporatorTemperature)
	putFloat("instant_power", status.CurrentInstPower)
	putFloat("dhw_flow_rate", status.CurrentDHWFlowRate)
	putFloat("cumulated_dhw_flow_rate", status.CumulatedDHWFlowRate)
	putFloat("dhw_charge_percent", status.DHWChargePercent)

	putInt("operation_mode", status.OperationMode)
	putInt("error_code", status.ErrorCode)
	putInt("wifi_rssi", status.WifiRSSI)

	putBool("dhw_use", status.DHWUse)
	putBool("operation_busy", status.OperationBusy)
	putBool("compressor_use", status.CompressorUse)
	putBool("heat_upper_use", status.HeatUpperUse)
	putBool("heat_lower_use", status.HeatLowerUse)
	putBool("eva_fan_use", status.EvaFanUse)
	putBool("eco_use", status.EcoUse)
	putBool("freeze_protects", status.FreezeProtects)

	return fields
}
