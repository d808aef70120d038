// SPDX-License-Identifier: MIT

package gpio

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestBank(t *testing.T, leds ...string) (*LEDBank, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range leds {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte("0\n"), 0o644); err != nil {
			t.Fatalf("seed brightness: %v", err)
		}
	}
	return NewLEDBank(root), root
}

func TestLEDBankSet(t *testing.T) {
	bank, root := newTestBank(t, "LED2_R")

	if err := bank.Set("LED2_R", true); err != nil {
		t.Fatalf("Set(on) failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "LED2_R", "brightness"))
	if err != nil {
		t.Fatalf("read brightness: %v", err)
	}
	if string(data) != "1" {
		t.Errorf("expected brightness 1, got %q", data)
	}

	if err := bank.Set("LED2_R", false); err != nil {
		t.Fatalf("Set(off) failed: %v", err)
	}
	on, err := bank.Get("LED2_R")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if on {
		t.Error("expected LED off after Set(false)")
	}
}

func TestLEDBankUnknownLED(t *testing.T) {
	bank, _ := newTestBank(t)
	if err := bank.Set("LED2_G", true); err == nil {
		t.Error("expected error for missing led directory")
	}
}

func TestLEDBankRejectsPathTraversal(t *testing.T) {
	bank, _ := newTestBank(t)
	for _, name := range []string{"", "../etc", "a/b"} {
		if err := bank.Set(name, true); err == nil {
			t.Errorf("expected error for led name %q", name)
		}
	}
}
