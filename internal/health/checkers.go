// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"
)

// MQTTChecker reports broker connectivity.
type MQTTChecker struct {
	connected func() bool
}

// NewMQTTChecker creates a checker over a connectivity probe.
func NewMQTTChecker(connected func() bool) *MQTTChecker {
	return &MQTTChecker{connected: connected}
}

func (c *MQTTChecker) Name() string { return "mqtt" }

func (c *MQTTChecker) Check(_ context.Context) CheckResult {
	if c.connected() {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "connected to broker",
		}
	}
	return CheckResult{
		Status: StatusUnhealthy,
		Error:  "not connected to broker",
	}
}

// GPIOChecker reports whether the configured gpiochip is present.
type GPIOChecker struct {
	chip  string
	probe func(chip string) error
}

// NewGPIOChecker creates a checker over a chip probe.
func NewGPIOChecker(chip string, probe func(chip string) error) *GPIOChecker {
	return &GPIOChecker{chip: chip, probe: probe}
}

func (c *GPIOChecker) Name() string { return "gpiochip" }

func (c *GPIOChecker) Check(_ context.Context) CheckResult {
	if err := c.probe(c.chip); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.chip,
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: c.chip,
	}
}

// LastRunChecker checks the recency of the last successful refresh. It is
// degraded once the last run is older than three refresh intervals and
// unhealthy when no refresh has ever succeeded or the last run failed.
type LastRunChecker struct {
	interval   time.Duration
	getLastRun func() (time.Time, string)
}

// NewLastRunChecker creates a checker over the bridge's last-run state.
func NewLastRunChecker(interval time.Duration, getLastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{interval: interval, getLastRun: getLastRun}
}

func (c *LastRunChecker) Name() string { return "last_refresh" }

func (c *LastRunChecker) Check(_ context.Context) CheckResult {
	lastRun, lastError := c.getLastRun()

	if lastRun.IsZero() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "no successful refresh yet",
		}
	}

	if lastError != "" {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   lastError,
			Message: "last refresh failed",
		}
	}

	if age := time.Since(lastRun); age > 3*c.interval {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last successful refresh %s ago", age.Round(time.Second)),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "refresh loop running",
	}
}
