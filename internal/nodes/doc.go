// Package nodes implements the visibility layer for device nodes.
//
// A device registry does not make its instances addressable by itself; it
// hands each node to a chardev.Publisher. This package provides two:
//
//   - Table keeps nodes in memory and answers lookups by name. It is the
//     default backend and the source of truth for the MQTT publisher.
//   - MQTTPublisher records nodes in a Table and announces each one as a
//     retained message so that other processes can discover them.
//
// Topic layout (prefix defaults to "chardev"):
//
//	chardev/<class>/class          retained class record
//	chardev/<class>/nodes/<name>   retained node record with attributes
//
// Withdrawing a node publishes an empty retained payload on its topic, which
// clears the broker's retained copy.
//
// Records are encoded as JSON or CBOR, chosen by Encoding.
package nodes
