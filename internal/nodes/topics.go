package nodes

import "fmt"

// DefaultTopicPrefix is the root of every node topic.
const DefaultTopicPrefix = "chardev"

// Topics builds node announcement topics under a prefix.
//
//	topics := nodes.Topics{Prefix: "chardev"}
//	topics.Node("mychardev", "mychardev-0")
//	// Returns: "chardev/mychardev/nodes/mychardev-0"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Class returns the topic of a class record.
//
// Example: chardev/mychardev/class
func (t Topics) Class(class string) string {
	return fmt.Sprintf("%s/%s/class", t.prefix(), class)
}

// Node returns the topic of a node record.
//
// Example: chardev/mychardev/nodes/mychardev-1
func (t Topics) Node(class, name string) string {
	return fmt.Sprintf("%s/%s/nodes/%s", t.prefix(), class, name)
}

// AllNodes returns a wildcard subscription covering every node of class.
//
// Example: chardev/mychardev/nodes/+
func (t Topics) AllNodes(class string) string {
	return fmt.Sprintf("%s/%s/nodes/+", t.prefix(), class)
}
