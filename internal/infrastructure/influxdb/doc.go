// Package influxdb writes device IO metrics to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every read, write and
// ioctl on a device can be recorded as a "chardev_io" point tagged with the
// class, device name and operation, carrying the byte count.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteIOMetric("mychardev", "mychardev-0", "read", 5, time.Now())
//
// Writes are batched according to batch_size and flush_interval; write
// failures are delivered to the SetOnError callback.
package influxdb
