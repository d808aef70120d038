// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticChecker struct {
	name   string
	result CheckResult
}

func (c staticChecker) Name() string                      { return c.name }
func (c staticChecker) Check(context.Context) CheckResult { return c.result }

func TestHealthAlwaysHealthyWithoutVerbose(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(staticChecker{"broken", CheckResult{Status: StatusUnhealthy}})

	resp := m.Health(context.Background(), false)
	if resp.Status != StatusHealthy {
		t.Errorf("liveness must stay healthy, got %s", resp.Status)
	}
	if resp.Checks != nil {
		t.Error("non-verbose health must omit checks")
	}
}

func TestHealthVerboseAggregates(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(staticChecker{"ok", CheckResult{Status: StatusHealthy}})
	m.RegisterChecker(staticChecker{"meh", CheckResult{Status: StatusDegraded}})

	resp := m.Health(context.Background(), true)
	if resp.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", resp.Status)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("expected 2 checks, got %d", len(resp.Checks))
	}
}

func TestReadyFalseOnUnhealthy(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(staticChecker{"mqtt", CheckResult{Status: StatusUnhealthy}})

	resp := m.Ready(context.Background())
	if resp.Ready {
		t.Error("expected not ready")
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", resp.Status)
	}
}

func TestServeReadyStatusCodes(t *testing.T) {
	m := NewManager("v1")

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	m.RegisterChecker(staticChecker{"mqtt", CheckResult{Status: StatusUnhealthy}})
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	var resp ReadinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Ready {
		t.Error("body must report not ready")
	}
}

func TestMQTTChecker(t *testing.T) {
	up := NewMQTTChecker(func() bool { return true })
	if got := up.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
	down := NewMQTTChecker(func() bool { return false })
	if got := down.Check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
}

func TestGPIOChecker(t *testing.T) {
	ok := NewGPIOChecker("gpiochip0", func(string) error { return nil })
	if got := ok.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
	missing := NewGPIOChecker("gpiochip9", func(string) error { return errors.New("no such device") })
	if got := missing.Check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
}

func TestLastRunChecker(t *testing.T) {
	interval := 30 * time.Second
	tests := []struct {
		name      string
		lastRun   time.Time
		lastError string
		want      Status
	}{
		{"never ran", time.Time{}, "", StatusUnhealthy},
		{"recent success", time.Now(), "", StatusHealthy},
		{"last run failed", time.Now(), "boom", StatusUnhealthy},
		{"stale", time.Now().Add(-5 * time.Minute), "", StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLastRunChecker(interval, func() (time.Time, string) {
				return tt.lastRun, tt.lastError
			})
			if got := c.Check(context.Background()).Status; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
