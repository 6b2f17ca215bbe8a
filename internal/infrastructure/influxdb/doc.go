// Package influxdb writes AirCloud telemetry to InfluxDB v2.
//
// Three measurements are written:
//
//	aircloud_climate  one point per unit per successful refresh
//	aircloud_refresh  one point per refresh cycle
//	aircloud_command  one point per control command
//
// Writes are batched and non-blocking; use SetOnError to observe failures.
// InfluxDB is optional: Connect returns ErrDisabled when the config turns
// it off, and every write method is a no-op on a closed client.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    return err
//	}
//	defer client.Close()
package influxdb
