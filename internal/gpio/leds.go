// SPDX-License-Identifier: MIT

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LEDBank drives kernel LEDs through the sysfs leds class. The root is
// configurable so tests can point it at a temporary directory.
type LEDBank struct {
	root string
}

// NewLEDBank creates a bank rooted at the given sysfs directory,
// typically /sys/class/leds.
func NewLEDBank(root string) *LEDBank {
	return &LEDBank{root: root}
}

// Set switches the named LED on or off via its brightness attribute.
func (b *LEDBank) Set(name string, on bool) error {
	if strings.ContainsAny(name, "/\\") || name == "" {
		return fmt.Errorf("invalid led name %q", name)
	}
	value := "0"
	if on {
		value = "1"
	}
	path := filepath.Join(b.root, name, "brightness")
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Get reports whether the named LED is currently lit.
func (b *LEDBank) Get(name string) (bool, error) {
	path := filepath.Join(b.root, name, "brightness")
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)) != "0", nil
}
