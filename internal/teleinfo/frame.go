// SPDX-License-Identifier: MIT

// Package teleinfo reads Linky TIC frames (historic mode) from a serial line.
package teleinfo

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Frame control characters (TIC historic mode).
const (
	stx = 0x02 // start of frame
	etx = 0x03 // end of frame
	lf  = 0x0a // start of dataset
	cr  = 0x0d // end of dataset
	sp  = 0x20 // field separator
)

// Labels extracted into Measurements.
const (
	labelBase = "BASE"  // energy index, Wh
	labelPapp = "PAPP"  // apparent power, VA
	labelInst = "IINST" // instantaneous current, A
)

// ErrBadChecksum marks a dataset whose checksum does not match its content.
var ErrBadChecksum = errors.New("teleinfo: bad checksum")

// Frame maps dataset labels to their values for one meter frame.
type Frame map[string]string

// checksum implements the historic-mode checksum: the sum of the bytes of
// "label SP value", truncated to 6 bits, offset into printable ASCII.
func checksum(label, value string) byte {
	var sum int
	for i := 0; i < len(label); i++ {
		sum += int(label[i])
	}
	sum += sp
	for i := 0; i < len(value); i++ {
		sum += int(value[i])
	}
	return byte(sum&0x3f) + 0x20
}

// parseDataset parses one "label SP value SP checksum" group. The checksum
// character ranges over 0x20-0x5F and can itself be SP, so the dataset is
// taken apart from the end rather than split on separators.
func parseDataset(data []byte) (label, value string, err error) {
	if len(data) < 4 || data[len(data)-2] != sp {
		return "", "", fmt.Errorf("teleinfo: malformed dataset %q", data)
	}
	got := data[len(data)-1]
	fields := bytes.SplitN(data[:len(data)-2], []byte{sp}, 2)
	if len(fields) != 2 || len(fields[0]) == 0 {
		return "", "", fmt.Errorf("teleinfo: malformed dataset %q", data)
	}
	label, value = string(fields[0]), string(fields[1])
	if want := checksum(label, value); got != want {
		return "", "", fmt.Errorf("%w: dataset %q: got %q, want %q",
			ErrBadChecksum, label, got, want)
	}
	return label, value, nil
}

// ParseFrame parses the payload between STX and ETX. Datasets failing the
// checksum are dropped; dropped counts are reported so the caller can track
// line quality. An empty frame is an error.
func ParseFrame(raw []byte) (Frame, int, error) {
	frame := make(Frame)
	dropped := 0

	for len(raw) > 0 {
		start := bytes.IndexByte(raw, lf)
		if start < 0 {
			break
		}
		end := bytes.IndexByte(raw[start:], cr)
		if end < 0 {
			break
		}
		dataset := raw[start+1 : start+end]
		raw = raw[start+end+1:]

		label, value, err := parseDataset(dataset)
		if err != nil {
			dropped++
			continue
		}
		frame[label] = value
	}

	if len(frame) == 0 {
		return nil, dropped, fmt.Errorf("teleinfo: no valid dataset in frame (%d dropped)", dropped)
	}
	return frame, dropped, nil
}

// Measurements are the meter values the bridge publishes.
type Measurements struct {
	EnergyWh        uint64
	ApparentPowerVA int
	CurrentA        int
}

// Measurements extracts the published values from a frame. Labels missing
// from the frame keep their zero value; ok reports whether at least one was
// present.
func (f Frame) Measurements() (m Measurements, ok bool) {
	if v, found := f[labelBase]; found {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			m.EnergyWh = n
			ok = true
		}
	}
	if v, found := f[labelPapp]; found {
		if n, err := strconv.Atoi(v); err == nil {
			m.ApparentPowerVA = n
			ok = true
		}
	}
	if v, found := f[labelInst]; found {
		if n, err := strconv.Atoi(v); err == nil {
			m.CurrentA = n
			ok = true
		}
	}
	return m, ok
}
