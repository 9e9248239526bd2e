package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "garage"

// Topics builds the relay's MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("garage")
//	topics.Event("door.toggled") // "garage/event/door.toggled"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	p := strings.Trim(prefix, "/")
	if p == "" {
		p = DefaultTopicPrefix
	}
	return Topics{prefix: p}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Event returns the topic for one event type.
//
// Example: garage/event/door.toggled
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.Prefix(), eventType)
}

// SystemStatus returns the retained online/offline topic.
//
// Example: garage/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// AllEvents returns a pattern matching every event topic.
//
// Pattern: garage/event/+
func (t Topics) AllEvents() string {
	return t.Prefix() + "/event/+"
}
