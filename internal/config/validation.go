// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrInvalidBroker indicates an unusable MQTT broker URL.
	ErrInvalidBroker = errors.New("invalid MQTT broker URL")
)

// Validate checks a resolved configuration for values the daemon cannot run with.
func Validate(cfg AppConfig) error {
	var errs []error

	if err := validateBroker(cfg.MQTTBroker); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.MQTTClientID) == "" {
		errs = append(errs, errors.New("MQTT client id must not be empty"))
	}
	if strings.TrimSpace(cfg.DeviceID) == "" {
		errs = append(errs, errors.New("device id must not be empty"))
	}
	if strings.TrimSpace(cfg.DiscoveryPrefix) == "" {
		errs = append(errs, errors.New("discovery prefix must not be empty"))
	}
	if cfg.RelayPin < 0 {
		errs = append(errs, fmt.Errorf("relay pin must be >= 0 (got %d)", cfg.RelayPin))
	}
	if cfg.ChargerPin < 0 {
		errs = append(errs, fmt.Errorf("charger pin must be >= 0 (got %d)", cfg.ChargerPin))
	}
	if cfg.RefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("refresh interval must be >= 1s (got %s)", cfg.RefreshInterval))
	}
	if err := validateListen("listen address", cfg.ListenAddr); err != nil {
		errs = append(errs, err)
	}
	if cfg.MetricsEnabled {
		if err := validateListen("metrics listen address", cfg.MetricsAddr); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validateBroker(broker string) error {
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBroker)
	}
	u, err := url.Parse(broker)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidBroker, broker, err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidBroker, broker, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidBroker, broker)
	}
	return nil
}

func validateListen(what, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%s must not be empty", what)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s %q: %w", what, addr, err)
	}
	return nil
}
