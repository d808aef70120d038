// SPDX-License-Identifier: MIT

// Package gpio wraps access to GPIO character devices and sysfs LEDs.
package gpio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/warthog618/go-gpiocdev"
)

// Line is a requested GPIO line. Output lines support Set, input lines
// support Get. Close releases the line back to the kernel.
type Line struct {
	line   *gpiocdev.Line
	chip   string
	offset int
}

// RequestOutput requests the given line as an output, initially low.
func RequestOutput(chip string, offset int) (*Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output %s:%d: %w", chip, offset, err)
	}
	return &Line{line: l, chip: chip, offset: offset}, nil
}

// RequestInput requests the given line as an input.
func RequestInput(chip string, offset int) (*Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("request input %s:%d: %w", chip, offset, err)
	}
	return &Line{line: l, chip: chip, offset: offset}, nil
}

// Set drives an output line to the given value (0 or 1).
func (l *Line) Set(value int) error {
	if err := l.line.SetValue(value); err != nil {
		return fmt.Errorf("set %s:%d=%d: %w", l.chip, l.offset, value, err)
	}
	return nil
}

// Get reads the current value of the line.
func (l *Line) Get() (int, error) {
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("get %s:%d: %w", l.chip, l.offset, err)
	}
	return v, nil
}

// Close releases the line.
func (l *Line) Close() error {
	return l.line.Close()
}

// ChipAvailable reports whether the named gpiochip exists.
func ChipAvailable(chip string) error {
	if _, err := os.Stat(filepath.Join("/dev", chip)); err != nil {
		return fmt.Errorf("gpiochip %s: %w", chip, err)
	}
	return nil
}
