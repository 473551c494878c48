package ingest

import (
	"fmt"
	"strings"
)

// ParseTopic extracts the device id and attribute tag from a raw telemetry
// topic. rtl_433 publishes one attribute per topic, with the device id and
// attribute name as the final two segments:
//
//	telemetry/attic/raw/79/temperature_C -> device "79", tag "temperature_C"
//
// Everything before the last two segments is routing prefix and is ignored,
// so the parser works for any subscription depth. Topics with fewer than
// three segments cannot carry both identifiers and are rejected.
func ParseTopic(topic string) (deviceID, tag string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("%w: %q has %d segments, need at least 3", ErrBadTopic, topic, len(parts))
	}

	return parts[len(parts)-2], parts[len(parts)-1], nil
}
