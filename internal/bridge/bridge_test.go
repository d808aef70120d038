// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mapio/mapio-gpio-ha/internal/bridge/store"
	"github.com/mapio/mapio-gpio-ha/internal/ha"
	"github.com/mapio/mapio-gpio-ha/internal/power"
	"github.com/mapio/mapio-gpio-ha/internal/teleinfo"
)

// --- fakes ---------------------------------------------------------------

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]string
	handlers  map[string]func(topic string, payload []byte)
	failAll   bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		published: make(map[string][]string),
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("broker gone")
	}
	f.published[topic] = append(f.published[topic], string(payload))
	return nil
}

func (f *fakePublisher) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakePublisher) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakePublisher) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	require.True(t, ok, "no handler on %s", topic)
	handler(topic, []byte(payload))
}

func (f *fakePublisher) last(topic string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published[topic]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (f *fakePublisher) configTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []string
	for topic := range f.published {
		if strings.HasSuffix(topic, "/config") {
			topics = append(topics, topic)
		}
	}
	return topics
}

type fakeOutput struct {
	mu     sync.Mutex
	value  int
	closed bool
	fail   bool
}

func (f *fakeOutput) Set(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("line stuck")
	}
	f.value = v
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeOutput) get() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

type fakeInput struct {
	value int
	err   error
}

func (f *fakeInput) Get() (int, error) { return f.value, f.err }
func (f *fakeInput) Close() error      { return nil }

type fakeLEDs struct {
	mu    sync.Mutex
	state map[string]bool
	fail  bool
}

func newFakeLEDs() *fakeLEDs { return &fakeLEDs{state: make(map[string]bool)} }

func (f *fakeLEDs) Set(name string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sysfs write failed")
	}
	f.state[name] = on
	return nil
}

func (f *fakeLEDs) get(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[name]
}

type fakeBattery struct {
	reading power.Reading
	err     error
}

func (f *fakeBattery) ReadBattery(context.Context) (power.Reading, error) {
	return f.reading, f.err
}

type memStore struct {
	mu    sync.Mutex
	state *store.OutputState
}

func (m *memStore) Put(s store.OutputState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &s
	return nil
}

func (m *memStore) Get() (store.OutputState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return store.OutputState{}, store.ErrNotFound
	}
	return *m.state, nil
}

// --- helpers -------------------------------------------------------------

type fixture struct {
	bridge  *Bridge
	pub     *fakePublisher
	relay   *fakeOutput
	charger *fakeInput
	leds    *fakeLEDs
	battery *fakeBattery
	states  *memStore
}

func newFixture(t *testing.T, mutate func(*Config, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		pub:     newFakePublisher(),
		relay:   &fakeOutput{},
		charger: &fakeInput{value: 1},
		leds:    newFakeLEDs(),
		battery: &fakeBattery{reading: power.Reading{Percent: 75, Volts: 3.9}},
		states:  &memStore{},
	}
	cfg := Config{
		Device: ha.Device{
			Name: "MapioGPIO",
			ID:   "mapio-gpio-test",
		},
		DiscoveryPrefix: "homeassistant",
		DataDir:         t.TempDir(),
		RefreshInterval: 30 * time.Second,
	}
	deps := Deps{
		Pub:     f.pub,
		Relay:   f.relay,
		Charger: f.charger,
		LEDs:    f.leds,
		Battery: f.battery,
		States:  f.states,
		Logger:  zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	b, err := New(cfg, deps)
	require.NoError(t, err)
	f.bridge = b
	return f
}

const (
	relayCommandTopic = "homeassistant/switch/mapio-gpio-test/relay1/set"
	relayStateTopic   = "homeassistant/switch/mapio-gpio-test/relay1/state"
	ledRCommandTopic  = "homeassistant/switch/mapio-gpio-test/led_r/set"
	upsStateTopic     = "homeassistant/sensor/mapio-gpio-test/ups/state"
	chargerStateTopic = "homeassistant/binary_sensor/mapio-gpio-test/battery_charging/state"
)

// --- tests ---------------------------------------------------------------

func TestNewRejectsMissingDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestExposePublishesDiscoveryConfigs(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	// relay + 3 leds + ups + charging
	assert.Len(t, f.pub.configTopics(), 6)
	assert.Equal(t, 6, f.bridge.Status().Entities)
	assert.False(t, f.bridge.Status().TeleinfoEnabled)

	// Initial states announced as off.
	assert.Equal(t, "OFF", f.pub.last(relayStateTopic))
}

func TestExposeWithTeleinfo(t *testing.T) {
	f := newFixture(t, func(cfg *Config, _ *Deps) { cfg.Teleinfo = true })
	require.NoError(t, f.bridge.Expose(context.Background()))

	assert.Len(t, f.pub.configTopics(), 9)
	assert.True(t, f.bridge.Status().TeleinfoEnabled)
}

func TestRelayCommandDrivesLineAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	f.pub.deliver(t, relayCommandTopic, "ON")
	assert.Equal(t, 1, f.relay.get())
	assert.Equal(t, "ON", f.pub.last(relayStateTopic))

	persisted, err := f.states.Get()
	require.NoError(t, err)
	assert.True(t, persisted.Relay)

	f.pub.deliver(t, relayCommandTopic, "OFF")
	assert.Equal(t, 0, f.relay.get())
	assert.Equal(t, "OFF", f.pub.last(relayStateTopic))
}

func TestRelayCommandFailureDoesNotEchoState(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))
	f.relay.fail = true

	before := f.pub.last(relayStateTopic)
	f.pub.deliver(t, relayCommandTopic, "ON")
	assert.Equal(t, before, f.pub.last(relayStateTopic), "state must not change on failure")

	persisted, err := f.states.Get()
	if err == nil {
		assert.False(t, persisted.Relay)
	}
}

func TestLEDCommand(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	f.pub.deliver(t, ledRCommandTopic, "ON")
	assert.True(t, f.leds.get("LED2_R"))

	persisted, err := f.states.Get()
	require.NoError(t, err)
	assert.True(t, persisted.LEDs["LED2_R"])
}

func TestExposeRestoresPersistedState(t *testing.T) {
	states := &memStore{}
	require.NoError(t, states.Put(store.OutputState{
		Relay: true,
		LEDs:  map[string]bool{"LED2_B": true},
	}))

	f := newFixture(t, func(_ *Config, deps *Deps) { deps.States = states })
	f.states = states
	require.NoError(t, f.bridge.Expose(context.Background()))

	assert.Equal(t, 1, f.relay.get(), "relay must be restored")
	assert.True(t, f.leds.get("LED2_B"), "led must be restored")
	assert.Equal(t, "ON", f.pub.last(relayStateTopic))
}

func TestRefreshPublishesSensors(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	// Charger sense low means charging.
	f.charger.value = 0
	require.NoError(t, f.bridge.Refresh(context.Background()))

	assert.Equal(t, "75", f.pub.last(upsStateTopic))
	assert.Equal(t, "ON", f.pub.last(chargerStateTopic))

	status := f.bridge.Status()
	assert.Equal(t, 75, status.UPSPercent)
	assert.True(t, status.Charging)
	assert.False(t, status.LastRefresh.IsZero())
	assert.Empty(t, status.LastError)
}

func TestRefreshNotCharging(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	f.charger.value = 1
	require.NoError(t, f.bridge.Refresh(context.Background()))
	assert.Equal(t, "OFF", f.pub.last(chargerStateTopic))
}

func TestRefreshBatteryFailure(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	f.battery.err = errors.New("vcgencmd exploded")
	err := f.bridge.Refresh(context.Background())
	require.Error(t, err)

	status := f.bridge.Status()
	assert.Contains(t, status.LastError, "vcgencmd exploded")
	assert.True(t, status.LastRefresh.IsZero(), "failed refresh must not count as a run")
}

func TestTriggerRefreshThrottled(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	require.NoError(t, f.bridge.TriggerRefresh(context.Background()))
	err := f.bridge.TriggerRefresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshThrottled)
}

func TestHandleFramePublishesTeleinfo(t *testing.T) {
	f := newFixture(t, func(cfg *Config, _ *Deps) { cfg.Teleinfo = true })
	require.NoError(t, f.bridge.Expose(context.Background()))

	f.bridge.handleFrame(teleinfo.Frame{
		"BASE":  "007651234",
		"PAPP":  "01250",
		"IINST": "005",
	})

	assert.Equal(t, "7651234", f.pub.last("homeassistant/sensor/mapio-gpio-test/linky_energy/state"))
	assert.Equal(t, "1250", f.pub.last("homeassistant/sensor/mapio-gpio-test/linky_power/state"))
	assert.Equal(t, "5", f.pub.last("homeassistant/sensor/mapio-gpio-test/linky_current/state"))
}

func TestRunConsumesTeleinfoFrames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	frames := make(chan teleinfo.Frame, 1)
	f := newFixture(t, func(cfg *Config, deps *Deps) {
		cfg.Teleinfo = true
		cfg.RefreshInterval = time.Hour // keep the ticker quiet
		deps.TeleinfoFrames = frames
	})
	require.NoError(t, f.bridge.Expose(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bridge.Run(ctx) }()

	frames <- teleinfo.Frame{"PAPP": "00420"}

	require.Eventually(t, func() bool {
		return f.pub.last("homeassistant/sensor/mapio-gpio-test/linky_power/state") == "420"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestCloseDrivesRelayLowAndReleases(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Expose(context.Background()))

	f.pub.deliver(t, relayCommandTopic, "ON")
	require.Equal(t, 1, f.relay.get())

	require.NoError(t, f.bridge.Close())
	assert.Equal(t, 0, f.relay.get(), "relay must be driven low on close")
	assert.True(t, f.relay.closed, "relay line must be released")

	f.pub.mu.Lock()
	_, subscribed := f.pub.handlers[relayCommandTopic]
	f.pub.mu.Unlock()
	assert.False(t, subscribed, "command subscription must be removed")
}
