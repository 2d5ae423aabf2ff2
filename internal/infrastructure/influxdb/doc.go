// Package influxdb provides time series storage for NaviBridge telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring. Every
// applied device status update is exported as one point carrying the
// water heater's thermal and electrical telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // influxdb.ErrDisabled when not configured
//	}
//	defer client.Close()
//
//	client.WriteStatusMetrics("04786332fca0", status)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are batched per config (batch_size, flush_interval) and errors
// surface asynchronously via SetOnError.
package influxdb
