// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mapio/mapio-gpio-ha/internal/metrics"
	"github.com/mapio/mapio-gpio-ha/internal/teleinfo"
)

// ErrRefreshThrottled is returned when a manual refresh arrives faster than
// the limiter allows.
var ErrRefreshThrottled = errors.New("bridge: refresh throttled")

// Run performs an initial refresh and then keeps the sensors current: a
// ticker drives the periodic refresh and teleinfo frames are forwarded as
// they arrive. It blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Refresh(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("initial refresh failed")
	}

	ticker := time.NewTicker(b.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Refresh(ctx); err != nil {
				b.logger.Error().
					Err(err).
					Str("event", "refresh.failed").
					Msg("refresh failed")
			}
		case frame, ok := <-b.deps.TeleinfoFrames:
			if !ok {
				// Reader ended; stop selecting on the closed channel.
				b.deps.TeleinfoFrames = nil
				continue
			}
			b.handleFrame(frame)
		}
	}
}

// Refresh reads the UPS and charger state and publishes both sensors.
func (b *Bridge) Refresh(ctx context.Context) error {
	start := time.Now()
	err := b.refresh(ctx)
	elapsed := time.Since(start).Seconds()

	b.mu.Lock()
	if err != nil {
		b.status.LastError = err.Error()
	} else {
		b.status.LastError = ""
		b.status.LastRefresh = time.Now()
	}
	b.mu.Unlock()

	if err != nil {
		metrics.RecordRefreshFailure(elapsed)
		return err
	}
	metrics.RecordRefreshSuccess(elapsed)
	return nil
}

func (b *Bridge) refresh(ctx context.Context) error {
	reading, err := b.deps.Battery.ReadBattery(ctx)
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}
	if err := b.ups.UpdateState(strconv.Itoa(reading.Percent)); err != nil {
		return err
	}
	metrics.SetUPSPercent(reading.Percent)

	// Charger sense is active low: 0 means external power is present.
	value, err := b.deps.Charger.Get()
	if err != nil {
		return fmt.Errorf("read charger sense: %w", err)
	}
	charging := value == 0
	if err := b.charging.UpdateState(charging); err != nil {
		return err
	}
	metrics.SetCharging(charging)

	b.mu.Lock()
	b.status.UPSPercent = reading.Percent
	b.status.Charging = charging
	b.mu.Unlock()

	b.logger.Debug().
		Str("event", "refresh.done").
		Int("percent", reading.Percent).
		Float64("volts", reading.Volts).
		Bool("charging", charging).
		Msg("sensors refreshed")
	return nil
}

// TriggerRefresh runs a refresh on request, throttled so API callers cannot
// hammer the PMIC.
func (b *Bridge) TriggerRefresh(ctx context.Context) error {
	if !b.manual.Allow() {
		return ErrRefreshThrottled
	}
	return b.Refresh(ctx)
}

// handleFrame publishes the measurements of one teleinfo frame.
func (b *Bridge) handleFrame(frame teleinfo.Frame) {
	if b.ticEnergy == nil {
		return
	}
	m, ok := frame.Measurements()
	if !ok {
		return
	}

	if err := b.ticEnergy.UpdateState(strconv.FormatUint(m.EnergyWh, 10)); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish energy index")
	}
	if err := b.ticPower.UpdateState(strconv.Itoa(m.ApparentPowerVA)); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish apparent power")
	}
	if err := b.ticCurrent.UpdateState(strconv.Itoa(m.CurrentA)); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish current")
	}
}

// LastRun reports the last successful refresh time and last error message,
// for the readiness checker.
func (b *Bridge) LastRun() (time.Time, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.LastRefresh, b.status.LastError
}
