// SPDX-License-Identifier: MIT

package power

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRunner struct {
	outputs map[string]string
	err     error
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := name + " " + strings.Join(args, " ")
	out, ok := f.outputs[key]
	if !ok {
		return "", errors.New("unexpected command: " + key)
	}
	return out, nil
}

func TestVoltsToPercent(t *testing.T) {
	tests := []struct {
		volts float64
		want  int
	}{
		{4.2, 100},
		{4.01, 100},
		{4.0, 75},
		{3.8, 75},
		{3.76, 75},
		{3.75, 50},
		{3.6, 50},
		{3.5, 25},
		{3.3, 25},
		{3.25, 0},
		{3.0, 0},
		{0, 0},
	}
	for _, tt := range tests {
		if got := VoltsToPercent(tt.volts); got != tt.want {
			t.Errorf("VoltsToPercent(%v) = %d, want %d", tt.volts, got, tt.want)
		}
	}
}

func TestReadBatteryMXL7704(t *testing.T) {
	// Model a0 reads AIN0 at 0x1d with scale 2: 0xc8 = 200 -> 4.0 V -> 75 %.
	run := &fakeRunner{outputs: map[string]string{
		"vcgencmd pmicrd 0":    "pmicrd 0x00: 0x00 a0\n",
		"vcgencmd pmicrd 0x1d": "pmicrd 0x1d: 0x00 c8\n",
	}}

	reading, err := NewReader(run).ReadBattery(context.Background())
	if err != nil {
		t.Fatalf("ReadBattery: %v", err)
	}
	if reading.Model != "a0" {
		t.Errorf("expected model a0, got %s", reading.Model)
	}
	if reading.Volts != 4.0 {
		t.Errorf("expected 4.0 V, got %v", reading.Volts)
	}
	if reading.Percent != 75 {
		t.Errorf("expected 75 %%, got %d", reading.Percent)
	}
}

func TestReadBatteryDA9090(t *testing.T) {
	// Any other model reads AIN0 at 0x13 with scale 4: 0x67 = 103 -> 4.12 V -> 100 %.
	run := &fakeRunner{outputs: map[string]string{
		"vcgencmd pmicrd 0":    "pmicrd 0x00: 0x00 2b\n",
		"vcgencmd pmicrd 0x13": "pmicrd 0x13: 0x00 67\n",
	}}

	reading, err := NewReader(run).ReadBattery(context.Background())
	if err != nil {
		t.Fatalf("ReadBattery: %v", err)
	}
	if reading.Percent != 100 {
		t.Errorf("expected 100 %%, got %d (volts=%v)", reading.Percent, reading.Volts)
	}
}

func TestReadBatteryCommandFailure(t *testing.T) {
	run := &fakeRunner{err: errors.New("vcgencmd missing")}
	if _, err := NewReader(run).ReadBattery(context.Background()); err == nil {
		t.Fatal("expected error when vcgencmd fails")
	}
}

func TestReadBatteryMalformedOutput(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"vcgencmd pmicrd 0": "garbage\n",
	}}
	if _, err := NewReader(run).ReadBattery(context.Background()); err == nil {
		t.Fatal("expected error for malformed pmicrd output")
	}
}

func TestReadBatteryBadHex(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{
		"vcgencmd pmicrd 0":    "pmicrd 0x00: 0x00 a0\n",
		"vcgencmd pmicrd 0x1d": "pmicrd 0x1d: 0x00 zz\n",
	}}
	if _, err := NewReader(run).ReadBattery(context.Background()); err == nil {
		t.Fatal("expected error for non-hex AIN0 value")
	}
}
