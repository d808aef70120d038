// SPDX-License-Identifier: MIT

// Package bridge exposes the board GPIO peripherals to Home Assistant.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mapio/mapio-gpio-ha/internal/bridge/store"
	"github.com/mapio/mapio-gpio-ha/internal/ha"
	"github.com/mapio/mapio-gpio-ha/internal/power"
	"github.com/mapio/mapio-gpio-ha/internal/teleinfo"
)

// OutputLine drives a requested GPIO output.
type OutputLine interface {
	Set(value int) error
	Close() error
}

// InputLine reads a requested GPIO input.
type InputLine interface {
	Get() (int, error)
	Close() error
}

// LEDSetter switches a named sysfs LED.
type LEDSetter interface {
	Set(name string, on bool) error
}

// BatteryReader reads the UPS battery state.
type BatteryReader interface {
	ReadBattery(ctx context.Context) (power.Reading, error)
}

// StateStore persists output positions across restarts.
type StateStore interface {
	Put(state store.OutputState) error
	Get() (store.OutputState, error)
}

// LEDSpec binds a Home Assistant entity to a sysfs LED.
type LEDSpec struct {
	Name     string // entity display name
	ObjectID string // entity object id
	Sysfs    string // directory name under /sys/class/leds
}

// DefaultLEDs are the three user LEDs on the board.
func DefaultLEDs() []LEDSpec {
	return []LEDSpec{
		{Name: "LED_R", ObjectID: "led_r", Sysfs: "LED2_R"},
		{Name: "LED_G", ObjectID: "led_g", Sysfs: "LED2_G"},
		{Name: "LED_B", ObjectID: "led_b", Sysfs: "LED2_B"},
	}
}

// Config is the bridge configuration.
type Config struct {
	Device          ha.Device
	DiscoveryPrefix string
	DataDir         string
	RefreshInterval time.Duration
	LEDs            []LEDSpec
	Teleinfo        bool
}

// Deps are the bridge's collaborators. All fields except TeleinfoFrames are
// required.
type Deps struct {
	Pub     ha.Publisher
	Relay   OutputLine
	Charger InputLine
	LEDs    LEDSetter
	Battery BatteryReader
	States  StateStore
	Logger  zerolog.Logger

	// TeleinfoFrames delivers parsed meter frames; nil disables the
	// teleinfo sensors.
	TeleinfoFrames <-chan teleinfo.Frame
}

// Validate checks that the required collaborators are present.
func (d Deps) Validate() error {
	var errs []error
	if d.Pub == nil {
		errs = append(errs, errors.New("publisher is required"))
	}
	if d.Relay == nil {
		errs = append(errs, errors.New("relay line is required"))
	}
	if d.Charger == nil {
		errs = append(errs, errors.New("charger line is required"))
	}
	if d.LEDs == nil {
		errs = append(errs, errors.New("led setter is required"))
	}
	if d.Battery == nil {
		errs = append(errs, errors.New("battery reader is required"))
	}
	if d.States == nil {
		errs = append(errs, errors.New("state store is required"))
	}
	return errors.Join(errs...)
}

// Status is a point-in-time view for the API and health checks.
type Status struct {
	LastRefresh     time.Time `json:"last_refresh"`
	LastError       string    `json:"last_error,omitempty"`
	Entities        int       `json:"entities"`
	UPSPercent      int       `json:"ups_percent"`
	Charging        bool      `json:"charging"`
	TeleinfoEnabled bool      `json:"teleinfo_enabled"`
}

// Bridge owns the entities and the hardware they mirror.
type Bridge struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	relay      *ha.Switch
	ledSwitch  map[string]*ha.Switch // keyed by object id
	ups        *ha.Sensor
	charging   *ha.BinarySensor
	ticEnergy  *ha.Sensor
	ticPower   *ha.Sensor
	ticCurrent *ha.Sensor

	// manual refresh guard
	manual *rate.Limiter

	mu     sync.Mutex
	state  store.OutputState
	status Status
}

// New creates a bridge. Expose must be called before Run.
func New(cfg Config, deps Deps) (*Bridge, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if len(cfg.LEDs) == 0 {
		cfg.LEDs = DefaultLEDs()
	}
	return &Bridge{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "bridge").Logger(),
		ledSwitch: make(map[string]*ha.Switch),
		manual:    rate.NewLimiter(rate.Every(5*time.Second), 1),
		state:     store.OutputState{LEDs: make(map[string]bool)},
	}, nil
}

func (b *Bridge) settings(name, objectID string) ha.Settings {
	return ha.Settings{
		Name:              name,
		ObjectID:          objectID,
		Device:            b.cfg.Device,
		DiscoveryPrefix:   b.cfg.DiscoveryPrefix,
		AvailabilityTopic: ha.AvailabilityTopic(b.cfg.Device),
	}
}

// Expose restores persisted output state, creates all entities, publishes
// their discovery configs and announces the restored states.
func (b *Bridge) Expose(ctx context.Context) error {
	b.restoreState()

	if err := b.buildEntities(); err != nil {
		return err
	}

	started := []interface{ Start() error }{b.relay, b.ups, b.charging}
	for _, spec := range b.cfg.LEDs {
		started = append(started, b.ledSwitch[spec.ObjectID])
	}
	if b.ticEnergy != nil {
		started = append(started, b.ticEnergy, b.ticPower, b.ticCurrent)
	}
	var g errgroup.Group
	for _, e := range started {
		g.Go(e.Start)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("start entity: %w", err)
	}

	b.mu.Lock()
	b.status.Entities = len(started)
	state := b.state
	b.mu.Unlock()

	// Announce the restored output positions.
	if err := b.relay.SetState(state.Relay); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish initial relay state")
	}
	for _, spec := range b.cfg.LEDs {
		if err := b.ledSwitch[spec.ObjectID].SetState(state.LEDs[spec.Sysfs]); err != nil {
			b.logger.Warn().Err(err).Str("led", spec.Sysfs).Msg("failed to publish initial led state")
		}
	}

	if err := b.writeSnapshot(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to write discovery snapshot")
	}

	b.logger.Info().
		Str("event", "bridge.exposed").
		Int("entities", len(started)).
		Bool("teleinfo", b.ticEnergy != nil).
		Msg("entities exposed to Home Assistant")
	return nil
}

// restoreState reapplies the persisted output positions to the hardware.
// A missing record is normal on first boot.
func (b *Bridge) restoreState() {
	persisted, err := b.deps.States.Get()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn().Err(err).Msg("failed to read persisted state")
		}
		return
	}
	if persisted.LEDs == nil {
		persisted.LEDs = make(map[string]bool)
	}

	if persisted.Relay {
		if err := b.deps.Relay.Set(1); err != nil {
			b.logger.Error().Err(err).Msg("failed to restore relay state")
			persisted.Relay = false
		}
	}
	for _, spec := range b.cfg.LEDs {
		if on := persisted.LEDs[spec.Sysfs]; on {
			if err := b.deps.LEDs.Set(spec.Sysfs, true); err != nil {
				b.logger.Error().Err(err).Str("led", spec.Sysfs).Msg("failed to restore led state")
				persisted.LEDs[spec.Sysfs] = false
			}
		}
	}

	b.mu.Lock()
	b.state = persisted
	b.mu.Unlock()

	b.logger.Info().
		Str("event", "bridge.state_restored").
		Bool("relay", persisted.Relay).
		Msg("restored persisted output state")
}

func (b *Bridge) buildEntities() error {
	var err error

	b.relay, err = ha.NewSwitch(b.settings("RELAY1", "relay1"), b.deps.Pub)
	if err != nil {
		return err
	}
	b.relay.OnCommand = b.onRelayCommand
	b.relay.Logger = b.logger

	for _, spec := range b.cfg.LEDs {
		sw, err := ha.NewSwitch(b.settings(spec.Name, spec.ObjectID), b.deps.Pub)
		if err != nil {
			return err
		}
		sw.OnCommand = b.ledCommandHandler(spec)
		sw.Logger = b.logger
		b.ledSwitch[spec.ObjectID] = sw
	}

	b.ups, err = ha.NewSensor(b.settings("UPS Voltage", "ups"), b.deps.Pub,
		"battery", "%", "measurement")
	if err != nil {
		return err
	}

	b.charging, err = ha.NewBinarySensor(b.settings("Battery charging", "battery_charging"),
		b.deps.Pub, "battery_charging")
	if err != nil {
		return err
	}

	if b.cfg.Teleinfo {
		b.ticEnergy, err = ha.NewSensor(b.settings("Linky energy", "linky_energy"), b.deps.Pub,
			"energy", "Wh", "total_increasing")
		if err != nil {
			return err
		}
		b.ticPower, err = ha.NewSensor(b.settings("Linky apparent power", "linky_power"), b.deps.Pub,
			"apparent_power", "VA", "measurement")
		if err != nil {
			return err
		}
		b.ticCurrent, err = ha.NewSensor(b.settings("Linky current", "linky_current"), b.deps.Pub,
			"current", "A", "measurement")
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) onRelayCommand(on bool) (bool, error) {
	value := 0
	if on {
		value = 1
	}
	if err := b.deps.Relay.Set(value); err != nil {
		b.logger.Error().
			Err(err).
			Str("event", "command.relay_failed").
			Bool("on", on).
			Msg("failed to drive relay")
		return false, err
	}

	b.mu.Lock()
	b.state.Relay = on
	state := b.state
	b.mu.Unlock()
	b.persist(state)

	b.logger.Info().
		Str("event", "command.relay").
		Bool("on", on).
		Msg("relay switched")
	return on, nil
}

func (b *Bridge) ledCommandHandler(spec LEDSpec) func(bool) (bool, error) {
	return func(on bool) (bool, error) {
		if err := b.deps.LEDs.Set(spec.Sysfs, on); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", "command.led_failed").
				Str("led", spec.Sysfs).
				Bool("on", on).
				Msg("failed to drive led")
			return false, err
		}

		b.mu.Lock()
		if b.state.LEDs == nil {
			b.state.LEDs = make(map[string]bool)
		}
		b.state.LEDs[spec.Sysfs] = on
		state := b.state
		b.mu.Unlock()
		b.persist(state)

		b.logger.Info().
			Str("event", "command.led").
			Str("led", spec.Sysfs).
			Bool("on", on).
			Msg("led switched")
		return on, nil
	}
}

func (b *Bridge) persist(state store.OutputState) {
	if err := b.deps.States.Put(state); err != nil {
		b.logger.Warn().Err(err).Msg("failed to persist output state")
	}
}

func (b *Bridge) writeSnapshot() error {
	entities := []ha.Discoverable{b.relay, b.ups, b.charging}
	for _, spec := range b.cfg.LEDs {
		entities = append(entities, b.ledSwitch[spec.ObjectID])
	}
	if b.ticEnergy != nil {
		entities = append(entities, b.ticEnergy, b.ticPower, b.ticCurrent)
	}
	return ha.WriteDiscoverySnapshot(b.cfg.DataDir, entities...)
}

// Status returns the current bridge status.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.status
	s.TeleinfoEnabled = b.cfg.Teleinfo
	return s
}

// Close releases the hardware: the relay is driven low first so the output
// is de-energized no matter what state it was in, then the lines are
// released and the command subscriptions removed.
func (b *Bridge) Close() error {
	var errs []error

	if err := b.deps.Relay.Set(0); err != nil {
		errs = append(errs, fmt.Errorf("drive relay low: %w", err))
	}
	if err := b.deps.Relay.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release relay line: %w", err))
	}
	if err := b.deps.Charger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release charger line: %w", err))
	}

	if b.relay != nil {
		if err := b.relay.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sw := range b.ledSwitch {
		if err := sw.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	b.logger.Info().Str("event", "bridge.closed").Msg("hardware released")
	return nil
}
