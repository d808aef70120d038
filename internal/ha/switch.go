// SPDX-License-Identifier: MIT

package ha

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mapio/mapio-gpio-ha/internal/metrics"
)

// Switch is a Home Assistant switch entity. Commands from Home Assistant
// arrive on the command topic and are dispatched to OnCommand; the switch
// only reports the new state once the command has actually been applied, so
// a failed relay write never shows as flipped in the UI.
type Switch struct {
	entity
	pub Publisher

	// OnCommand is invoked for each ON/OFF command. It must return the
	// state to report back, allowing the handler to refuse a change.
	OnCommand func(on bool) (bool, error)

	// Logger reports publish failures on the command path, where no
	// caller is left to see the error.
	Logger zerolog.Logger
}

type switchConfig struct {
	baseConfig
	CommandTopic string `json:"command_topic"`
	PayloadOn    string `json:"payload_on"`
	PayloadOff   string `json:"payload_off"`
}

// NewSwitch creates a switch entity.
func NewSwitch(settings Settings, pub Publisher) (*Switch, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("switch: %w", err)
	}
	return &Switch{
		entity: entity{settings: settings, component: ComponentSwitch},
		pub:    pub,
	}, nil
}

// DiscoveryConfig returns the retained discovery payload.
func (s *Switch) DiscoveryConfig() ([]byte, error) {
	cfg := switchConfig{
		baseConfig:   s.baseConfig(),
		CommandTopic: s.CommandTopic(),
		PayloadOn:    PayloadOn,
		PayloadOff:   PayloadOff,
	}
	return json.Marshal(cfg)
}

// Start publishes the discovery config and subscribes to commands.
func (s *Switch) Start() error {
	payload, err := s.DiscoveryConfig()
	if err != nil {
		return fmt.Errorf("switch %s: marshal config: %w", s.settings.ObjectID, err)
	}
	if err := s.pub.Publish(s.ConfigTopic(), 1, true, payload); err != nil {
		return fmt.Errorf("switch %s: publish config: %w", s.settings.ObjectID, err)
	}
	return s.pub.Subscribe(s.CommandTopic(), 1, s.handleCommand)
}

func (s *Switch) handleCommand(_ string, payload []byte) {
	var want bool
	switch string(payload) {
	case PayloadOn:
		want = true
	case PayloadOff:
		want = false
	default:
		metrics.RecordCommand(s.settings.ObjectID, "invalid")
		return
	}
	metrics.RecordCommand(s.settings.ObjectID, string(payload))

	if s.OnCommand == nil {
		return
	}
	actual, err := s.OnCommand(want)
	if err != nil {
		// State stays as-is; the handler logs the cause.
		return
	}
	if err := s.SetState(actual); err != nil {
		s.Logger.Error().
			Err(err).
			Str("event", "ha.state_echo_failed").
			Str("entity", s.settings.ObjectID).
			Msg("failed to publish state after command")
	}
}

// SetState publishes the current switch state.
func (s *Switch) SetState(on bool) error {
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}
	err := s.pub.Publish(s.StateTopic(), 1, true, []byte(payload))
	metrics.RecordPublish(s.settings.ObjectID, err == nil)
	if err != nil {
		return fmt.Errorf("switch %s: publish state: %w", s.settings.ObjectID, err)
	}
	return nil
}

// Stop unsubscribes from the command topic.
func (s *Switch) Stop() error {
	return s.pub.Unsubscribe(s.CommandTopic())
}
