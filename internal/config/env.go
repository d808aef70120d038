// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mapio/mapio-gpio-ha/internal/log"
)

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, exists := os.LookupEnv(key); exists {
		lowerKey := strings.ToLower(key)
		switch {
		case strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "token"):
			// For sensitive vars, just log that it was set
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		case value == "":
			logger.Debug().
				Str("key", key).
				Str("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		default:
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	logger.Debug().
		Str("key", key).
		Str("default", defaultValue).
		Str("source", "default").
		Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		if i, err := strconv.Atoi(v); err == nil {
			logger.Debug().
				Str("key", key).
				Int("value", i).
				Str("source", "environment").
				Msg("using environment variable")
			return i
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

// ParseDuration reads a duration from environment variable in Go duration
// format (e.g. "30s"). It falls back to default on parse errors or empty
// variables and logs the choice.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		if d, err := time.ParseDuration(v); err == nil {
			logger.Debug().
				Str("key", key).
				Dur("value", d).
				Str("source", "environment").
				Msg("using environment variable")
			return d
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
	}
	return defaultValue
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return defaultValue
		}
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		default:
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Bool("default", defaultValue).
				Msg("invalid boolean in environment variable, using default")
			return defaultValue
		}
	}
	return defaultValue
}

// applyEnv overlays MAPIO_* environment variables on top of cfg.
func applyEnv(cfg AppConfig) AppConfig {
	cfg.DataDir = ParseString("MAPIO_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString("MAPIO_LOG_LEVEL", cfg.LogLevel)

	cfg.MQTTBroker = ParseString("MAPIO_MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTClientID = ParseString("MAPIO_MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.MQTTUsername = ParseString("MAPIO_MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = ParseString("MAPIO_MQTT_PASSWORD", cfg.MQTTPassword)
	cfg.DiscoveryPrefix = ParseString("MAPIO_DISCOVERY_PREFIX", cfg.DiscoveryPrefix)
	cfg.DeviceName = ParseString("MAPIO_DEVICE_NAME", cfg.DeviceName)
	cfg.DeviceID = ParseString("MAPIO_DEVICE_ID", cfg.DeviceID)

	cfg.GPIOChip = ParseString("MAPIO_GPIO_CHIP", cfg.GPIOChip)
	cfg.RelayPin = ParseInt("MAPIO_RELAY_PIN", cfg.RelayPin)
	cfg.ChargerChip = ParseString("MAPIO_CHARGER_CHIP", cfg.ChargerChip)
	cfg.ChargerPin = ParseInt("MAPIO_CHARGER_PIN", cfg.ChargerPin)
	cfg.LEDSysfsRoot = ParseString("MAPIO_LED_SYSFS", cfg.LEDSysfsRoot)

	cfg.RefreshInterval = ParseDuration("MAPIO_REFRESH_INTERVAL", cfg.RefreshInterval)

	cfg.LinkyEnableFile = ParseString("MAPIO_LINKY_ENABLE_FILE", cfg.LinkyEnableFile)
	cfg.LinkyPort = ParseString("MAPIO_LINKY_PORT", cfg.LinkyPort)

	cfg.ListenAddr = ParseString("MAPIO_LISTEN", cfg.ListenAddr)
	cfg.MetricsEnabled = ParseBool("MAPIO_METRICS", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("MAPIO_METRICS_LISTEN", cfg.MetricsAddr)

	return cfg
}
