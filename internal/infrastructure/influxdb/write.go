package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the relay.
const (
	MeasurementDoorPulse    = "door_pulse"
	MeasurementRegistration = "registration"
)

// Pulse results used as the "result" tag.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// WriteDoorPulse records one pulse on pin.
//
// hold is the configured hold; took is the wall time the pulse actually
// blocked for. The write is non-blocking.
//
// Example:
//
//	client.WriteDoorPulse(2, influxdb.ResultOK, 200*time.Millisecond, 201*time.Millisecond, time.Now())
func (c *Client) WriteDoorPulse(pin int, result string, hold, took time.Duration, at time.Time) {
	c.WritePointWithTime(MeasurementDoorPulse,
		map[string]string{
			"pin":    strconv.Itoa(pin),
			"result": result,
		},
		map[string]any{
			"hold_ms":     hold.Milliseconds(),
			"duration_ms": float64(took) / float64(time.Millisecond),
		},
		at,
	)
}

// WriteRegistration counts one issued access key.
func (c *Client) WriteRegistration(at time.Time) {
	c.WritePointWithTime(MeasurementRegistration, nil, map[string]any{"count": 1}, at)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point at timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
