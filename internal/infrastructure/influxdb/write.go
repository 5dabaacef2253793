package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementIO is the measurement written for every device IO operation.
const MeasurementIO = "chardev_io"

// WriteIOMetric records one device operation.
//
// op is the operation kind ("read", "written", "ioctl", ...) and bytes the
// number of bytes transferred. The write is non-blocking.
//
//	client.WriteIOMetric("mychardev", "mychardev-0", "written", 5, time.Now())
func (c *Client) WriteIOMetric(class, device, op string, bytes int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newIOPoint(class, device, op, bytes, at))
}

func newIOPoint(class, device, op string, bytes int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementIO,
		map[string]string{
			"class":  class,
			"device": device,
			"op":     op,
		},
		map[string]any{
			"bytes": int64(bytes),
			"count": int64(1),
		},
		at,
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
