package device

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// MockProtocolLookup is a test implementation of ProtocolLookup.
type MockProtocolLookup struct {
	mu        sync.Mutex
	protocols map[string]ProtocolInfo
}

func NewMockProtocolLookup() *MockProtocolLookup {
	return &MockProtocolLookup{protocols: make(map[string]ProtocolInfo)}
}

func (m *MockProtocolLookup) add(id, name, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protocols[id] = ProtocolInfo{Name: name, Description: description}
}

func (m *MockProtocolLookup) LookupProtocol(id string) (ProtocolInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.protocols[id]
	return info, ok
}

// MockNameResolver is a test implementation of NameResolver.
type MockNameResolver struct {
	mu    sync.Mutex
	names map[string]string
}

func NewMockNameResolver() *MockNameResolver {
	return &MockNameResolver{names: make(map[string]string)}
}

func (m *MockNameResolver) add(deviceID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[deviceID] = name
}

func (m *MockNameResolver) SensorName(deviceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[deviceID]
	return name, ok
}

func testRegistry() (*Registry, *MockProtocolLookup, *MockNameResolver) {
	protocols := NewMockProtocolLookup()
	names := NewMockNameResolver()
	return NewRegistry(protocols, names), protocols, names
}

func TestRegistry_Apply_NewDevice(t *testing.T) {
	registry, _, _ := testRegistry()
	now := time.Now()

	if err := registry.Apply("79", "temperature_C", 22.5, now); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, ok := registry.Get("79")
	if !ok {
		t.Fatal("Get() returned no record after Apply")
	}

	if rec.DeviceName != "UNKNOWN_79" {
		t.Errorf("DeviceName = %q, want %q", rec.DeviceName, "UNKNOWN_79")
	}
	if rec.ProtocolID != PlaceholderProtocolID {
		t.Errorf("ProtocolID = %q, want placeholder", rec.ProtocolID)
	}
	if rec.Attrs["temperature_C"] != 22.5 {
		t.Errorf("temperature_C = %v, want 22.5", rec.Attrs["temperature_C"])
	}
	if rec.Attrs["temperature_F"] != 72.5 {
		t.Errorf("temperature_F = %v, want 72.5", rec.Attrs["temperature_F"])
	}
	// Untouched placeholders survive alongside applied values.
	if rec.Attrs["humidity"] != -999.0 {
		t.Errorf("humidity = %v, want placeholder -999", rec.Attrs["humidity"])
	}
	if !rec.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, now)
	}
}

func TestRegistry_Apply_Protocol(t *testing.T) {
	registry, protocols, _ := testRegistry()
	protocols.add("55", "Acurite-606TX", "Acurite 606TX temperature sensor")

	t.Run("known protocol enriches the record", func(t *testing.T) {
		if err := registry.Apply("79", "protocol_id", "55", time.Now()); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		rec, _ := registry.Get("79")
		if rec.ProtocolID != "55" {
			t.Errorf("ProtocolID = %q, want %q", rec.ProtocolID, "55")
		}
		if rec.ProtocolName != "Acurite-606TX" {
			t.Errorf("ProtocolName = %q, want %q", rec.ProtocolName, "Acurite-606TX")
		}
		if rec.ProtocolDescription != "Acurite 606TX temperature sensor" {
			t.Errorf("ProtocolDescription = %q, want full description", rec.ProtocolDescription)
		}
	})

	t.Run("unknown protocol does not create a record", func(t *testing.T) {
		err := registry.Apply("80", "protocol_id", "99", time.Now())
		if !errors.Is(err, ErrUnknownProtocol) {
			t.Fatalf("Apply() error = %v, want ErrUnknownProtocol", err)
		}
		if _, ok := registry.Get("80"); ok {
			t.Error("record was created despite unknown protocol")
		}
	})

	t.Run("unknown protocol leaves an existing record untouched", func(t *testing.T) {
		before, _ := registry.Get("79")

		err := registry.Apply("79", "protocol_id", "99", time.Now())
		if !errors.Is(err, ErrUnknownProtocol) {
			t.Fatalf("Apply() error = %v, want ErrUnknownProtocol", err)
		}

		after, _ := registry.Get("79")
		if after.ProtocolID != "55" {
			t.Errorf("ProtocolID = %q, want %q after failed apply", after.ProtocolID, "55")
		}
		if !after.LastSeen.Equal(before.LastSeen) {
			t.Errorf("LastSeen advanced on failed apply: %v -> %v", before.LastSeen, after.LastSeen)
		}
	})
}

func TestRegistry_Apply_TemperatureDerivation(t *testing.T) {
	registry, _, _ := testRegistry()

	if err := registry.Apply("5", "temperature_C", 20.0, time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, _ := registry.Get("5")
	if rec.Attrs["temperature_F"] != 68.0 {
		t.Errorf("temperature_F = %v, want 68", rec.Attrs["temperature_F"])
	}
}

func TestRegistry_Apply_PressureDerivation(t *testing.T) {
	registry, _, _ := testRegistry()

	// Pressure is a free-form tag, so the value arrives as a string.
	if err := registry.Apply("5", "pressure_kPa", "100", time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, _ := registry.Get("5")
	if rec.Attrs["pressure_kPa"] != 100.0 {
		t.Errorf("pressure_kPa = %v, want 100", rec.Attrs["pressure_kPa"])
	}
	if rec.Attrs["pressure_psi"] != 14.503773773020923 {
		t.Errorf("pressure_psi = %v, want 14.503773773020923", rec.Attrs["pressure_psi"])
	}

	t.Run("unparseable pressure is rejected", func(t *testing.T) {
		err := registry.Apply("5", "pressure_kPa", "squishy", time.Now())
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("Apply() error = %v, want ErrMalformedPayload", err)
		}
		rec, _ := registry.Get("5")
		if rec.Attrs["pressure_kPa"] != 100.0 {
			t.Errorf("pressure_kPa = %v, want untouched 100", rec.Attrs["pressure_kPa"])
		}
	})
}

func TestRegistry_Apply_EmptyDeviceID(t *testing.T) {
	registry, _, _ := testRegistry()

	err := registry.Apply("", "humidity", 50.0, time.Now())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Apply() error = %v, want ErrMalformedPayload", err)
	}
	if registry.Len() != 0 {
		t.Errorf("Len() = %d, want 0", registry.Len())
	}
}

func TestRegistry_Apply_DeviceIDEcho(t *testing.T) {
	registry, _, _ := testRegistry()
	first := time.Now().Add(-time.Minute)
	second := time.Now()

	if err := registry.Apply("79", "humidity", 50.0, first); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := registry.Apply("79", "device_id", "79", second); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, _ := registry.Get("79")
	if rec.DeviceID != "79" {
		t.Errorf("DeviceID = %q, want %q", rec.DeviceID, "79")
	}
	if _, ok := rec.Attrs["device_id"]; ok {
		t.Error("device_id echoed into Attrs, want registry key only")
	}
	if !rec.LastSeen.Equal(second) {
		t.Errorf("LastSeen = %v, want freshness advanced to %v", rec.LastSeen, second)
	}
}

func TestRegistry_Apply_NamedDevice(t *testing.T) {
	registry, _, names := testRegistry()
	names.add("79", "garage_fridge")

	if err := registry.Apply("79", "humidity", 50.0, time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rec, _ := registry.Get("79")
	if rec.DeviceName != "garage_fridge" {
		t.Errorf("DeviceName = %q, want %q", rec.DeviceName, "garage_fridge")
	}
}

func TestRegistry_Apply_Idempotent(t *testing.T) {
	registry, _, _ := testRegistry()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := registry.Apply("79", "temperature_C", 22.5, now); err != nil {
			t.Fatalf("Apply() #%d error = %v", i, err)
		}
	}

	if registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", registry.Len())
	}
	rec, _ := registry.Get("79")
	if rec.Attrs["temperature_C"] != 22.5 {
		t.Errorf("temperature_C = %v, want 22.5", rec.Attrs["temperature_C"])
	}
}

func TestRegistry_RefreshNames(t *testing.T) {
	registry, _, names := testRegistry()

	if err := registry.Apply("79", "humidity", 50.0, time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	rec, _ := registry.Get("79")
	if rec.DeviceName != "UNKNOWN_79" {
		t.Fatalf("DeviceName = %q, want UNKNOWN_79 before refresh", rec.DeviceName)
	}

	names.add("79", "garage_fridge")

	if changed := registry.RefreshNames(); changed != 1 {
		t.Errorf("RefreshNames() = %d, want 1", changed)
	}
	rec, _ = registry.Get("79")
	if rec.DeviceName != "garage_fridge" {
		t.Errorf("DeviceName = %q, want %q after refresh", rec.DeviceName, "garage_fridge")
	}

	// A second refresh with no table change touches nothing.
	if changed := registry.RefreshNames(); changed != 0 {
		t.Errorf("RefreshNames() = %d, want 0", changed)
	}
}

func TestRegistry_ClaimDue(t *testing.T) {
	registry, _, _ := testRegistry()
	now := time.Now()
	staleness := 5 * time.Minute

	if err := registry.Apply("79", "humidity", 50.0, now.Add(-time.Second)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := registry.Apply("80", "humidity", 60.0, now.Add(-time.Second)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	due := registry.ClaimDue(now, staleness)
	if len(due) != 2 {
		t.Fatalf("ClaimDue() returned %d records, want 2", len(due))
	}
	for _, rec := range due {
		if !rec.LastPublished.Equal(now) {
			t.Errorf("LastPublished = %v, want claimed at %v", rec.LastPublished, now)
		}
	}

	// Claiming marks the records, so an immediate rescan finds nothing.
	if again := registry.ClaimDue(now.Add(time.Millisecond), staleness); len(again) != 0 {
		t.Errorf("second ClaimDue() returned %d records, want 0", len(again))
	}

	t.Run("new data makes a record due again", func(t *testing.T) {
		if err := registry.Apply("79", "humidity", 51.0, now.Add(time.Second)); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		due := registry.ClaimDue(now.Add(2*time.Second), staleness)
		if len(due) != 1 || due[0].DeviceID != "79" {
			t.Fatalf("ClaimDue() = %v, want just device 79", due)
		}
	})

	t.Run("staleness republishes unchanged records", func(t *testing.T) {
		later := now.Add(staleness + time.Minute)
		due := registry.ClaimDue(later, staleness)
		if len(due) != 2 {
			t.Errorf("ClaimDue() after staleness returned %d records, want 2", len(due))
		}
	})
}

func TestRegistry_ClaimDue_CopiesAreIndependent(t *testing.T) {
	registry, _, _ := testRegistry()
	now := time.Now()

	if err := registry.Apply("79", "humidity", 50.0, now.Add(-time.Second)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	due := registry.ClaimDue(now, 5*time.Minute)
	if len(due) != 1 {
		t.Fatalf("ClaimDue() returned %d records, want 1", len(due))
	}
	due[0].Attrs["humidity"] = 0.0

	rec, _ := registry.Get("79")
	if rec.Attrs["humidity"] != 50.0 {
		t.Errorf("humidity = %v, want 50 after mutating the claimed copy", rec.Attrs["humidity"])
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	registry, _, _ := testRegistry()
	now := time.Now()

	if err := registry.Apply("old", "humidity", 50.0, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := registry.Apply("fresh", "humidity", 60.0, now); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	t.Run("zero age disables eviction", func(t *testing.T) {
		if evicted := registry.EvictIdle(now, 0); evicted != nil {
			t.Errorf("EvictIdle(0) = %v, want nil", evicted)
		}
		if registry.Len() != 2 {
			t.Errorf("Len() = %d, want 2", registry.Len())
		}
	})

	t.Run("idle records are removed", func(t *testing.T) {
		evicted := registry.EvictIdle(now, time.Hour)
		if len(evicted) != 1 || evicted[0] != "old" {
			t.Fatalf("EvictIdle() = %v, want [old]", evicted)
		}
		if _, ok := registry.Get("old"); ok {
			t.Error("evicted record still present")
		}
		if _, ok := registry.Get("fresh"); !ok {
			t.Error("fresh record was evicted")
		}
	})
}

func TestRegistry_ExportRestore(t *testing.T) {
	registry, protocols, _ := testRegistry()
	protocols.add("40", "Acurite-5n1", "Acurite 5n1 weather station")

	if err := registry.Apply("193", "protocol_id", "40", time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := registry.Apply("193", "temperature_C", 12.5, time.Now()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	exported := registry.Export()
	if len(exported) != 1 {
		t.Fatalf("Export() returned %d records, want 1", len(exported))
	}

	// Export copies: mutating the export must not reach the registry.
	exported["193"].Attrs["temperature_C"] = 0.0
	rec, _ := registry.Get("193")
	if rec.Attrs["temperature_C"] != 12.5 {
		t.Errorf("temperature_C = %v, want 12.5 after mutating export", rec.Attrs["temperature_C"])
	}

	fresh, _, _ := testRegistry()
	snapshot := registry.Export()
	snapshot[""] = &Record{}
	snapshot["byKey"] = &Record{Attrs: map[string]any{}}

	restored := fresh.Restore(snapshot)
	if restored != 2 {
		t.Errorf("Restore() = %d, want 2", restored)
	}

	got, ok := fresh.Get("193")
	if !ok {
		t.Fatal("restored record missing")
	}
	if got.ProtocolName != "Acurite-5n1" {
		t.Errorf("ProtocolName = %q, want survived restore", got.ProtocolName)
	}

	// Records keyed without an embedded id inherit the map key.
	byKey, ok := fresh.Get("byKey")
	if !ok {
		t.Fatal("keyed record missing")
	}
	if byKey.DeviceID != "byKey" {
		t.Errorf("DeviceID = %q, want inherited key", byKey.DeviceID)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry, protocols, _ := testRegistry()
	protocols.add("40", "Acurite-5n1", "Acurite 5n1 weather station")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)

		// Ingest applies attributes.
		go func(n int) {
			defer wg.Done()
			registry.Apply("79", "humidity", float64(n), time.Now())
		}(i)

		// Scheduler claims due records.
		go func() {
			defer wg.Done()
			registry.ClaimDue(time.Now(), time.Minute)
		}()

		// Snapshot writer exports.
		go func() {
			defer wg.Done()
			registry.Export()
		}()
	}

	wg.Wait()

	if _, ok := registry.Get("79"); !ok {
		t.Error("Get() after concurrent access found no record")
	}
}
