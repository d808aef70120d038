// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with precedence ENV > file > defaults.
package config

import "time"

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	// General
	DataDir  string
	LogLevel string
	Version  string

	// MQTT / Home Assistant
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	DiscoveryPrefix string
	DeviceName      string
	DeviceID        string

	// GPIO
	GPIOChip     string
	RelayPin     int
	ChargerChip  string
	ChargerPin   int
	LEDSysfsRoot string

	// Refresh
	RefreshInterval time.Duration

	// Linky teleinfo
	LinkyEnableFile string
	LinkyPort       string

	// HTTP
	ListenAddr     string
	MetricsEnabled bool
	MetricsAddr    string
}

// Defaults returns the built-in configuration values. They match the MAPIO
// board wiring: RELAY1 on gpiochip0 line 25, charger sense on gpiochip2
// line 9, LED2 under /sys/class/leds.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:         "/var/lib/mapio-gpio-ha",
		LogLevel:        "info",
		MQTTBroker:      "tcp://localhost:1883",
		MQTTClientID:    "mapio-gpio-ha",
		DiscoveryPrefix: "homeassistant",
		DeviceName:      "MapioGPIO",
		DeviceID:        "mapio-gpio-769251",
		GPIOChip:        "gpiochip0",
		RelayPin:        25,
		ChargerChip:     "gpiochip2",
		ChargerPin:      9,
		LEDSysfsRoot:    "/sys/class/leds",
		RefreshInterval: 30 * time.Second,
		LinkyEnableFile: "/usr/local/homeassistant/enable_linky",
		LinkyPort:       "/dev/ttyAMA0",
		ListenAddr:      ":8090",
		MetricsEnabled:  true,
		MetricsAddr:     ":9091",
	}
}
