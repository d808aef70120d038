// SPDX-License-Identifier: MIT

// Package power reads the UPS battery state from the board PMIC.
package power

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// PMIC registers. Register 0 identifies the PMIC model; the AIN0 register
// holding the battery voltage differs between the two PMICs shipped on the
// carrier board, as does the ADC scale.
const (
	regModel = "0"

	modelMXL7704 = "a0"
	regAIN0MXL   = "0x1d"
	regAIN0DA    = "0x13"
)

// Runner executes an external command and returns its stdout. The production
// implementation shells out; tests substitute canned output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Reading is one battery measurement.
type Reading struct {
	Model   string
	Volts   float64
	Percent int
}

// Reader reads battery state through vcgencmd.
type Reader struct {
	run Runner
}

// NewReader creates a Reader. A nil runner defaults to ExecRunner.
func NewReader(run Runner) *Reader {
	if run == nil {
		run = ExecRunner{}
	}
	return &Reader{run: run}
}

// ReadBattery identifies the PMIC, reads the AIN0 channel and converts it to
// a battery percentage.
func (r *Reader) ReadBattery(ctx context.Context) (Reading, error) {
	model, err := r.readRegister(ctx, regModel)
	if err != nil {
		return Reading{}, fmt.Errorf("read pmic model: %w", err)
	}

	var reg string
	var scale float64
	if model == modelMXL7704 {
		reg, scale = regAIN0MXL, 2
	} else {
		reg, scale = regAIN0DA, 4
	}

	raw, err := r.readRegister(ctx, reg)
	if err != nil {
		return Reading{}, fmt.Errorf("read AIN0 (%s): %w", reg, err)
	}
	value, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return Reading{}, fmt.Errorf("parse AIN0 value %q: %w", raw, err)
	}

	volts := scale * float64(value) / 100
	return Reading{
		Model:   model,
		Volts:   volts,
		Percent: VoltsToPercent(volts),
	}, nil
}

// readRegister invokes `vcgencmd pmicrd <reg>` and returns the value field.
// Output looks like "pmicrd 0x1d: 0x00 c2"; the value is the third field.
func (r *Reader) readRegister(ctx context.Context, reg string) (string, error) {
	out, err := r.run.Output(ctx, "vcgencmd", "pmicrd", reg)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return "", fmt.Errorf("unexpected pmicrd output %q", strings.TrimSpace(out))
	}
	return strings.TrimPrefix(fields[2], "0x"), nil
}

// VoltsToPercent buckets the measured cell voltage into the coarse levels
// the UPS reports: 100/75/50/25/0.
func VoltsToPercent(volts float64) int {
	switch {
	case volts > 4:
		return 100
	case volts > 3.75:
		return 75
	case volts > 3.5:
		return 50
	case volts > 3.25:
		return 25
	default:
		return 0
	}
}
