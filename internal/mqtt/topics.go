package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// DeviceEventsTopic is the wildcard subscription for device events:
// <prefix>/devices/<device_id>/events.
func DeviceEventsTopic(prefix string) string {
	return prefix + "/devices/+/events"
}

func statusTopic(prefix string) string {
	return prefix + "/gateway/status"
}

// deviceIDFromTopic extracts the device id segment. It returns "" when topic
// does not have the device events shape.
func deviceIDFromTopic(prefix, topic string) string {
	rest, ok := strings.CutPrefix(topic, prefix+"/devices/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/events")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func statusPayload(status, reason string) string {
	body := map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		body["reason"] = reason
	}
	b, _ := json.Marshal(body)
	return string(b)
}
