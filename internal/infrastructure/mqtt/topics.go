package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "aircloud"

// Topics builds the bridge's MQTT topics under one prefix.
//
//	topics := mqtt.NewTopics("aircloud")
//	topics.State(123)     // aircloud/state/123
//	topics.Command(123)   // aircloud/command/123
//	topics.AllCommands()  // aircloud/command/+
type Topics struct {
	prefix string
}

// NewTopics returns topic builders rooted at prefix. Surrounding slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// State returns the retained state topic of a unit.
//
// Example: aircloud/state/123
func (t Topics) State(deviceID int64) string {
	return fmt.Sprintf("%s/state/%d", t.Prefix(), deviceID)
}

// Command returns the topic clients publish control intents to.
//
// Example: aircloud/command/123
func (t Topics) Command(deviceID int64) string {
	return fmt.Sprintf("%s/command/%d", t.Prefix(), deviceID)
}

// Ack returns the topic command acknowledgements are published on.
//
// Example: aircloud/ack/123
func (t Topics) Ack(deviceID int64) string {
	return fmt.Sprintf("%s/ack/%d", t.Prefix(), deviceID)
}

// Health returns the bridge health topic.
func (t Topics) Health() string {
	return t.Prefix() + "/health"
}

// Status returns the retained online/offline topic. It doubles as the
// Last Will topic.
func (t Topics) Status() string {
	return t.Prefix() + "/status"
}

// AllCommands matches the command topic of every unit.
func (t Topics) AllCommands() string {
	return t.Prefix() + "/command/+"
}

// AllStates matches the state topic of every unit.
func (t Topics) AllStates() string {
	return t.Prefix() + "/state/+"
}

// DeviceID extracts the unit id from a per-device topic such as
// aircloud/command/123. ok is false for topics outside the prefix or
// without a numeric id.
func (t Topics) DeviceID(topic string) (id int64, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/")
	if !found {
		return 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
