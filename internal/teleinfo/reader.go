// SPDX-License-Identifier: MIT

package teleinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/mapio/mapio-gpio-ha/internal/metrics"
)

// maxFrameSize bounds the assembly buffer; a historic-mode frame is well
// under 1 KiB, anything larger means we lost sync.
const maxFrameSize = 4096

// Port is the serial line the reader consumes. serial.Port satisfies it;
// tests feed canned bytes.
type Port interface {
	io.ReadCloser
}

// OpenPort opens the serial device with the TIC historic mode parameters
// (1200 baud, 7 data bits, even parity, 1 stop bit).
func OpenPort(device string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: 1200,
		DataBits: 7,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	// A read timeout keeps the loop responsive to context cancellation.
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	return port, nil
}

// Reader assembles frames from the serial byte stream.
type Reader struct {
	port   Port
	logger zerolog.Logger
}

// NewReader creates a reader over an open port.
func NewReader(port Port, logger zerolog.Logger) *Reader {
	return &Reader{port: port, logger: logger}
}

// Run reads frames until ctx is cancelled and sends parsed frames on out.
// Bad-checksum datasets and malformed frames are counted and skipped; I/O
// errors other than timeouts end the loop.
func (r *Reader) Run(ctx context.Context, out chan<- Frame) error {
	defer func() {
		if err := r.port.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close teleinfo port")
		}
	}()

	var assembly bytes.Buffer
	inFrame := false
	buf := make([]byte, 256)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("teleinfo read: %w", err)
		}

		for _, b := range buf[:n] {
			switch b {
			case stx:
				assembly.Reset()
				inFrame = true
			case etx:
				if !inFrame {
					continue
				}
				inFrame = false
				r.emit(ctx, assembly.Bytes(), out)
				assembly.Reset()
			default:
				if !inFrame {
					continue
				}
				if assembly.Len() >= maxFrameSize {
					// Lost sync; drop the partial frame.
					metrics.RecordTeleinfoFrame("malformed")
					assembly.Reset()
					inFrame = false
					continue
				}
				assembly.WriteByte(b)
			}
		}
	}
}

func (r *Reader) emit(ctx context.Context, raw []byte, out chan<- Frame) {
	frame, dropped, err := ParseFrame(raw)
	for i := 0; i < dropped; i++ {
		metrics.RecordTeleinfoFrame("bad_checksum")
	}
	if err != nil {
		metrics.RecordTeleinfoFrame("malformed")
		r.logger.Debug().Err(err).Msg("dropped teleinfo frame")
		return
	}
	metrics.RecordTeleinfoFrame("ok")

	select {
	case out <- frame:
	case <-ctx.Done():
	}
}
