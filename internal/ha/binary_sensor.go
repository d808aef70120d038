// SPDX-License-Identifier: MIT

package ha

import (
	"encoding/json"
	"fmt"

	"github.com/mapio/mapio-gpio-ha/internal/metrics"
)

// BinarySensor is a send-only Home Assistant binary sensor entity.
type BinarySensor struct {
	entity
	pub Publisher

	DeviceClass string
}

type binarySensorConfig struct {
	baseConfig
	DeviceClass string `json:"device_class,omitempty"`
	PayloadOn   string `json:"payload_on"`
	PayloadOff  string `json:"payload_off"`
}

// NewBinarySensor creates a binary sensor entity.
func NewBinarySensor(settings Settings, pub Publisher, deviceClass string) (*BinarySensor, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("binary sensor: %w", err)
	}
	return &BinarySensor{
		entity:      entity{settings: settings, component: ComponentBinarySensor},
		pub:         pub,
		DeviceClass: deviceClass,
	}, nil
}

// DiscoveryConfig returns the retained discovery payload.
func (s *BinarySensor) DiscoveryConfig() ([]byte, error) {
	cfg := binarySensorConfig{
		baseConfig:  s.baseConfig(),
		DeviceClass: s.DeviceClass,
		PayloadOn:   PayloadOn,
		PayloadOff:  PayloadOff,
	}
	return json.Marshal(cfg)
}

// Start publishes the discovery config.
func (s *BinarySensor) Start() error {
	payload, err := s.DiscoveryConfig()
	if err != nil {
		return fmt.Errorf("binary sensor %s: marshal config: %w", s.settings.ObjectID, err)
	}
	if err := s.pub.Publish(s.ConfigTopic(), 1, true, payload); err != nil {
		return fmt.Errorf("binary sensor %s: publish config: %w", s.settings.ObjectID, err)
	}
	return nil
}

// UpdateState publishes a new ON/OFF state.
func (s *BinarySensor) UpdateState(on bool) error {
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}
	err := s.pub.Publish(s.StateTopic(), 1, true, []byte(payload))
	metrics.RecordPublish(s.settings.ObjectID, err == nil)
	if err != nil {
		return fmt.Errorf("binary sensor %s: publish state: %w", s.settings.ObjectID, err)
	}
	return nil
}

// Stop is a no-op; availability is device-wide.
func (s *BinarySensor) Stop() error { return nil }
