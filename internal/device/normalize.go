package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute tags with dedicated coercion rules. Everything else decodes as a
// lossy string. The rules mirror what rtl_433 actually emits per tag, including
// the devices that break the documented format (non-numeric channels, string
// battery flags).
const (
	TagTime        = "time"
	TagProtocol    = "protocol"
	TagChannel     = "channel"
	TagBatteryOK   = "battery_ok"
	TagTemperature = "temperature_C"
	TagHumidity    = "humidity"
	TagFreq        = "freq"
	TagRSSI        = "rssi"
	TagSNR         = "snr"
	TagNoise       = "noise"
	TagID          = "id"
	TagMIC         = "mic"
	TagMod         = "mod"
	TagPressureKPA = "pressure_kPa"
)

// Canonical attribute names used on records where they differ from the raw
// topic tag.
const (
	AttrProtocolID  = "protocol_id"
	AttrDeviceID    = "device_id"
	AttrTemperature = TagTemperature
	AttrPressureKPA = TagPressureKPA
)

// CanonicalTag maps a raw topic tag to the attribute name stored on records.
// Most tags pass through unchanged; "protocol" and "id" are renamed because
// the record already reserves those meanings.
func CanonicalTag(tag string) string {
	switch tag {
	case TagProtocol:
		return AttrProtocolID
	case TagID:
		return AttrDeviceID
	default:
		return tag
	}
}

// Normalize coerces a raw payload into a typed value according to the tag's
// rule. It is pure: same inputs, same outputs, no state.
//
// Returns:
//   - any: string, int, or float64 depending on the tag
//   - error: ErrMalformedPayload when a strict tag receives an unparseable payload
func Normalize(tag string, payload []byte) (any, error) {
	text := string(payload)

	switch tag {
	case TagTime:
		// Timestamp strings pass through untouched.
		return text, nil

	case TagProtocol:
		// Usually a decimal integer; re-stringify so every protocol id has
		// one canonical spelling.
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: tag %q value %q is not an integer", ErrMalformedPayload, tag, text)
		}
		return strconv.Itoa(n), nil

	case TagChannel, TagBatteryOK:
		// Nominally integers, but some devices emit letters here. Keep the
		// raw string when the parse fails.
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return n, nil
		}
		return text, nil

	case TagTemperature, TagHumidity, TagFreq, TagRSSI, TagSNR, TagNoise:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: tag %q value %q is not a number", ErrMalformedPayload, tag, text)
		}
		return f, nil

	case TagID, TagMIC, TagMod:
		return text, nil

	default:
		// Unknown tags never fail; invalid byte sequences are replaced so
		// the value stays printable.
		return strings.ToValidUTF8(text, "�"), nil
	}
}
