// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML configuration file layout. All fields are
// optional; zero values mean "not set" and keep the previous layer's value.
type fileConfig struct {
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	MQTT struct {
		Broker          string `yaml:"broker"`
		ClientID        string `yaml:"clientId"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		DiscoveryPrefix string `yaml:"discoveryPrefix"`
	} `yaml:"mqtt"`

	Device struct {
		Name string `yaml:"name"`
		ID   string `yaml:"id"`
	} `yaml:"device"`

	GPIO struct {
		Chip        string `yaml:"chip"`
		RelayPin    *int   `yaml:"relayPin"`
		ChargerChip string `yaml:"chargerChip"`
		ChargerPin  *int   `yaml:"chargerPin"`
		LEDSysfs    string `yaml:"ledSysfs"`
	} `yaml:"gpio"`

	RefreshInterval string `yaml:"refreshInterval"`

	Linky struct {
		EnableFile string `yaml:"enableFile"`
		Port       string `yaml:"port"`
	} `yaml:"linky"`

	API struct {
		Listen string `yaml:"listen"`
	} `yaml:"api"`

	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"metrics"`
}

// loadFile reads a YAML config file and overlays it on top of cfg.
func loadFile(path string, cfg AppConfig) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.MQTT.Broker != "" {
		cfg.MQTTBroker = fc.MQTT.Broker
	}
	if fc.MQTT.ClientID != "" {
		cfg.MQTTClientID = fc.MQTT.ClientID
	}
	if fc.MQTT.Username != "" {
		cfg.MQTTUsername = fc.MQTT.Username
	}
	if fc.MQTT.Password != "" {
		cfg.MQTTPassword = fc.MQTT.Password
	}
	if fc.MQTT.DiscoveryPrefix != "" {
		cfg.DiscoveryPrefix = fc.MQTT.DiscoveryPrefix
	}
	if fc.Device.Name != "" {
		cfg.DeviceName = fc.Device.Name
	}
	if fc.Device.ID != "" {
		cfg.DeviceID = fc.Device.ID
	}
	if fc.GPIO.Chip != "" {
		cfg.GPIOChip = fc.GPIO.Chip
	}
	if fc.GPIO.RelayPin != nil {
		cfg.RelayPin = *fc.GPIO.RelayPin
	}
	if fc.GPIO.ChargerChip != "" {
		cfg.ChargerChip = fc.GPIO.ChargerChip
	}
	if fc.GPIO.ChargerPin != nil {
		cfg.ChargerPin = *fc.GPIO.ChargerPin
	}
	if fc.GPIO.LEDSysfs != "" {
		cfg.LEDSysfsRoot = fc.GPIO.LEDSysfs
	}
	if fc.RefreshInterval != "" {
		d, err := time.ParseDuration(fc.RefreshInterval)
		if err != nil {
			return cfg, fmt.Errorf("parse refreshInterval %q: %w", fc.RefreshInterval, err)
		}
		cfg.RefreshInterval = d
	}
	if fc.Linky.EnableFile != "" {
		cfg.LinkyEnableFile = fc.Linky.EnableFile
	}
	if fc.Linky.Port != "" {
		cfg.LinkyPort = fc.Linky.Port
	}
	if fc.API.Listen != "" {
		cfg.ListenAddr = fc.API.Listen
	}
	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}
	if fc.Metrics.Listen != "" {
		cfg.MetricsAddr = fc.Metrics.Listen
	}

	return cfg, nil
}
