// SPDX-License-Identifier: MIT

package ha

import (
	"fmt"
	"regexp"
)

// Component names as Home Assistant knows them.
const (
	ComponentSwitch       = "switch"
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
)

const (
	// PayloadOn and PayloadOff are the state payloads for switches and
	// binary sensors.
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

var objectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Settings carries the identity of one entity.
type Settings struct {
	// Name is the human-readable entity name shown in Home Assistant.
	Name string
	// ObjectID is the topic-safe entity identifier, unique per device.
	ObjectID string
	// Device groups the entity under the board's device page.
	Device Device
	// DiscoveryPrefix is normally "homeassistant".
	DiscoveryPrefix string
	// AvailabilityTopic is the shared device availability topic.
	AvailabilityTopic string
}

func (s Settings) validate() error {
	if s.Name == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	if !objectIDPattern.MatchString(s.ObjectID) {
		return fmt.Errorf("invalid object id %q", s.ObjectID)
	}
	if s.DiscoveryPrefix == "" {
		return fmt.Errorf("discovery prefix must not be empty")
	}
	if s.Device.ID == "" {
		return fmt.Errorf("device id must not be empty")
	}
	return nil
}

// entity is the shared part of every published entity.
type entity struct {
	settings  Settings
	component string
}

func (e *entity) baseTopic() string {
	return fmt.Sprintf("%s/%s/%s/%s",
		e.settings.DiscoveryPrefix, e.component, e.settings.Device.ID, e.settings.ObjectID)
}

// ConfigTopic is where the retained discovery payload is published.
func (e *entity) ConfigTopic() string { return e.baseTopic() + "/config" }

// StateTopic carries the entity state.
func (e *entity) StateTopic() string { return e.baseTopic() + "/state" }

// CommandTopic carries commands from Home Assistant (switches only).
func (e *entity) CommandTopic() string { return e.baseTopic() + "/set" }

// UniqueID is stable across restarts so Home Assistant keeps entity history.
func (e *entity) UniqueID() string {
	return e.settings.Device.ID + "_" + e.settings.ObjectID
}

// Name returns the entity display name.
func (e *entity) Name() string { return e.settings.Name }

// baseConfig holds the discovery fields common to all components.
type baseConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	Device            deviceInfo `json:"device"`
}

func (e *entity) baseConfig() baseConfig {
	return baseConfig{
		Name:              e.settings.Name,
		UniqueID:          e.UniqueID(),
		StateTopic:        e.StateTopic(),
		AvailabilityTopic: e.settings.AvailabilityTopic,
		Device:            e.settings.Device.info(),
	}
}
