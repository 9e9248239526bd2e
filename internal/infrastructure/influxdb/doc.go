// Package influxdb records relay activity as InfluxDB time series.
//
// Each pulse becomes a door_pulse point tagged with the pin and result and
// carrying the configured hold and the measured duration. Registrations
// are counted in the registration measurement.
//
// Writes are non-blocking and batched (batch_size, flush_interval); batch
// errors arrive asynchronously through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDoorPulse(2, influxdb.ResultOK, hold, took, time.Now())
package influxdb
