// SPDX-License-Identifier: MIT

package daemon

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig holds HTTP server tuning shared by the API and metrics
// listeners.
type ServerConfig struct {
	ListenAddr      string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns sane defaults for a probe/status API.
func DefaultServerConfig(listenAddr, metricsAddr string) ServerConfig {
	return ServerConfig{
		ListenAddr:      listenAddr,
		MetricsAddr:     metricsAddr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Deps are the manager's dependencies.
type Deps struct {
	Logger zerolog.Logger

	// APIHandler serves the status API and probes. Required.
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics; nil disables the
	// metrics listener.
	MetricsHandler http.Handler
}

// Validate checks required dependencies.
func (d Deps) Validate() error {
	if d.APIHandler == nil {
		return errors.New("API handler is required")
	}
	return nil
}
