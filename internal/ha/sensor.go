// SPDX-License-Identifier: MIT

package ha

import (
	"encoding/json"
	"fmt"

	"github.com/mapio/mapio-gpio-ha/internal/metrics"
)

// Sensor is a send-only Home Assistant sensor entity.
type Sensor struct {
	entity
	pub Publisher

	// DeviceClass, Unit and StateClass map onto the discovery fields of
	// the same names; see the Home Assistant sensor documentation.
	DeviceClass string
	Unit        string
	StateClass  string
}

type sensorConfig struct {
	baseConfig
	DeviceClass string `json:"device_class,omitempty"`
	Unit        string `json:"unit_of_measurement,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
}

// NewSensor creates a sensor entity.
func NewSensor(settings Settings, pub Publisher, deviceClass, unit, stateClass string) (*Sensor, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("sensor: %w", err)
	}
	return &Sensor{
		entity:      entity{settings: settings, component: ComponentSensor},
		pub:         pub,
		DeviceClass: deviceClass,
		Unit:        unit,
		StateClass:  stateClass,
	}, nil
}

// DiscoveryConfig returns the retained discovery payload.
func (s *Sensor) DiscoveryConfig() ([]byte, error) {
	cfg := sensorConfig{
		baseConfig:  s.baseConfig(),
		DeviceClass: s.DeviceClass,
		Unit:        s.Unit,
		StateClass:  s.StateClass,
	}
	return json.Marshal(cfg)
}

// Start publishes the discovery config.
func (s *Sensor) Start() error {
	payload, err := s.DiscoveryConfig()
	if err != nil {
		return fmt.Errorf("sensor %s: marshal config: %w", s.settings.ObjectID, err)
	}
	if err := s.pub.Publish(s.ConfigTopic(), 1, true, payload); err != nil {
		return fmt.Errorf("sensor %s: publish config: %w", s.settings.ObjectID, err)
	}
	return nil
}

// UpdateState publishes a new sensor value.
func (s *Sensor) UpdateState(value string) error {
	err := s.pub.Publish(s.StateTopic(), 1, true, []byte(value))
	metrics.RecordPublish(s.settings.ObjectID, err == nil)
	if err != nil {
		return fmt.Errorf("sensor %s: publish state: %w", s.settings.ObjectID, err)
	}
	return nil
}

// Stop is a no-op for send-only sensors; availability is device-wide.
func (s *Sensor) Stop() error { return nil }
