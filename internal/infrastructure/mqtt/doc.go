// Package mqtt provides MQTT connectivity for chardevd.
//
// The daemon uses the broker as a visibility layer: device classes and
// nodes are announced as retained messages (see package nodes) and a
// retained status record tells other processes whether the daemon is up.
//
//	chardevd -> MQTT broker -> discovery clients
//
// The client reconnects automatically. A Last Will marks the daemon
// offline on the status topic if it disappears without Close.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, "chardev")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained("chardev/mychardev/class", payload)
package mqtt
