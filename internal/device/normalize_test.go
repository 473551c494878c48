package device

import (
	"errors"
	"testing"
)

func TestCanonicalTag(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"protocol", "protocol_id"},
		{"id", "device_id"},
		{"temperature_C", "temperature_C"},
		{"humidity", "humidity"},
		{"pressure_kPa", "pressure_kPa"},
		{"wind_avg_km_h", "wind_avg_km_h"},
	}

	for _, tt := range tests {
		if got := CanonicalTag(tt.tag); got != tt.want {
			t.Errorf("CanonicalTag(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

func TestNormalize_Time(t *testing.T) {
	got, err := Normalize(TagTime, []byte("2024-11-02 18:05:21"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got != "2024-11-02 18:05:21" {
		t.Errorf("Normalize(time) = %q, want %q", got, "2024-11-02 18:05:21")
	}
}

func TestNormalize_Protocol(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"plain integer", "40", "40", false},
		{"surrounding whitespace", " 40\n", "40", false},
		{"leading zero respelled", "040", "40", false},
		{"negative", "-1", "-1", false},
		{"not a number", "forty", "", true},
		{"float", "40.5", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(TagProtocol, []byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("Normalize() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(protocol, %q) = %v, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestNormalize_IntWithFallback(t *testing.T) {
	for _, tag := range []string{TagChannel, TagBatteryOK} {
		t.Run(tag, func(t *testing.T) {
			got, err := Normalize(tag, []byte("1"))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != 1 {
				t.Errorf("Normalize(%q, \"1\") = %v (%T), want int 1", tag, got, got)
			}

			// Some devices report letters; the raw string survives.
			got, err = Normalize(tag, []byte("A"))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != "A" {
				t.Errorf("Normalize(%q, \"A\") = %v (%T), want string A", tag, got, got)
			}
		})
	}
}

func TestNormalize_FloatTags(t *testing.T) {
	floatTags := []string{TagTemperature, TagHumidity, TagFreq, TagRSSI, TagSNR, TagNoise}

	for _, tag := range floatTags {
		t.Run(tag, func(t *testing.T) {
			got, err := Normalize(tag, []byte(" -7.25 "))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != -7.25 {
				t.Errorf("Normalize(%q) = %v (%T), want float64 -7.25", tag, got, got)
			}

			if _, err := Normalize(tag, []byte("soggy")); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Normalize(%q, \"soggy\") error = %v, want ErrMalformedPayload", tag, err)
			}
			if _, err := Normalize(tag, nil); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Normalize(%q, nil) error = %v, want ErrMalformedPayload", tag, err)
			}
		})
	}
}

func TestNormalize_VerbatimTags(t *testing.T) {
	for _, tag := range []string{TagID, TagMIC, TagMod} {
		got, err := Normalize(tag, []byte(" CRC "))
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", tag, err)
		}
		if got != " CRC " {
			t.Errorf("Normalize(%q) = %q, want whitespace preserved", tag, got)
		}
	}
}

func TestNormalize_UnknownTag(t *testing.T) {
	t.Run("plain text passes through", func(t *testing.T) {
		got, err := Normalize("wind_avg_km_h", []byte("12.4"))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if got != "12.4" {
			t.Errorf("Normalize() = %v (%T), want string \"12.4\"", got, got)
		}
	})

	t.Run("invalid utf-8 is replaced", func(t *testing.T) {
		got, err := Normalize("raw_bits", []byte{0x68, 0x69, 0xff, 0xfe})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		s, ok := got.(string)
		if !ok {
			t.Fatalf("Normalize() = %T, want string", got)
		}
		if s == "hi\xff\xfe" {
			t.Error("invalid bytes survived, want replacement rune")
		}
		if s[:2] != "hi" {
			t.Errorf("Normalize() = %q, want prefix %q", s, "hi")
		}
	})
}
