package mqtt

import "fmt"

// DefaultStatusPrefix is the root of the daemon's status topic.
const DefaultStatusPrefix = "chardev"

// StatusTopic returns the retained online/offline topic for the daemon.
//
// Example: chardev/system/status
func StatusTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultStatusPrefix
	}
	return fmt.Sprintf("%s/system/status", prefix)
}
