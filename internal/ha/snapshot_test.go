// SPDX-License-Identifier: MIT

package ha

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDiscoverySnapshot(t *testing.T) {
	pub := newFakePublisher()
	sw, err := NewSwitch(testSettings("RELAY1", "relay1"), pub)
	if err != nil {
		t.Fatalf("NewSwitch: %v", err)
	}
	sensor, err := NewSensor(testSettings("UPS Voltage", "ups"), pub, "battery", "%", "measurement")
	if err != nil {
		t.Fatalf("NewSensor: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "data")
	if err := WriteDiscoverySnapshot(dir, sw, sensor); err != nil {
		t.Fatalf("WriteDiscoverySnapshot: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "discovery.json"))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snapshot))
	}
	if _, ok := snapshot[sw.ConfigTopic()]; !ok {
		t.Errorf("missing switch entry %s", sw.ConfigTopic())
	}
	if _, ok := snapshot[sensor.ConfigTopic()]; !ok {
		t.Errorf("missing sensor entry %s", sensor.ConfigTopic())
	}
}
