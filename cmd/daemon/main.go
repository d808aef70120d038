// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapio/mapio-gpio-ha/internal/api"
	"github.com/mapio/mapio-gpio-ha/internal/bridge"
	"github.com/mapio/mapio-gpio-ha/internal/bridge/store"
	"github.com/mapio/mapio-gpio-ha/internal/config"
	"github.com/mapio/mapio-gpio-ha/internal/daemon"
	"github.com/mapio/mapio-gpio-ha/internal/gpio"
	"github.com/mapio/mapio-gpio-ha/internal/ha"
	"github.com/mapio/mapio-gpio-ha/internal/health"
	mlog "github.com/mapio/mapio-gpio-ha/internal/log"
	"github.com/mapio/mapio-gpio-ha/internal/power"
	"github.com/mapio/mapio-gpio-ha/internal/teleinfo"
	"github.com/mapio/mapio-gpio-ha/internal/version"
)

// maskBroker removes user info from a broker URL for safe logging.
func maskBroker(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsed.User = nil
	return parsed.String()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	mlog.Configure(mlog.Config{
		Level:   "info",
		Service: "mapio-gpio-ha",
		Version: version.Version,
	})

	logger := mlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Determine config path:
	// - Explicit via --config
	// - Otherwise auto-load ${MAPIO_DATA_DIR}/config.yaml if it exists
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("MAPIO_DATA_DIR", config.Defaults().DataDir))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration
	mlog.Configure(mlog.Config{
		Level:   cfg.LogLevel,
		Service: "mapio-gpio-ha",
		Version: cfg.Version,
	})

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Msg("starting mapio-gpio-ha")

	logger.Info().Msgf("→ Broker: %s (auth: %v)", maskBroker(cfg.MQTTBroker), cfg.MQTTUsername != "")
	logger.Info().Msgf("→ Device: %s (%s)", cfg.DeviceName, cfg.DeviceID)
	logger.Info().Msgf("→ Relay: %s line %d, charger sense: %s line %d", cfg.GPIOChip, cfg.RelayPin, cfg.ChargerChip, cfg.ChargerPin)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)

	// Hardware: relay output, charger sense input, LED sysfs bank.
	relay, err := gpio.RequestOutput(cfg.GPIOChip, cfg.RelayPin)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "gpio.request_failed").
			Str("chip", cfg.GPIOChip).
			Int("line", cfg.RelayPin).
			Msg("failed to request relay line")
	}

	charger, err := gpio.RequestInput(cfg.ChargerChip, cfg.ChargerPin)
	if err != nil {
		relay.Close()
		logger.Fatal().
			Err(err).
			Str("event", "gpio.request_failed").
			Str("chip", cfg.ChargerChip).
			Int("line", cfg.ChargerPin).
			Msg("failed to request charger sense line")
	}

	leds := gpio.NewLEDBank(cfg.LEDSysfsRoot)
	battery := power.NewReader(nil)

	states, err := store.Open(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		relay.Close()
		charger.Close()
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Str("data_dir", cfg.DataDir).
			Msg("failed to open state store")
	}

	device := ha.Device{
		Name:         cfg.DeviceName,
		ID:           cfg.DeviceID,
		Manufacturer: "Vilokan",
		Model:        "MAPIO",
		SWVersion:    version.Version,
	}

	conn, err := ha.Connect(ha.ClientConfig{
		Broker:            cfg.MQTTBroker,
		ClientID:          cfg.MQTTClientID,
		Username:          cfg.MQTTUsername,
		Password:          cfg.MQTTPassword,
		AvailabilityTopic: ha.AvailabilityTopic(device),
		ConnectTimeout:    30 * time.Second,
		Logger:            mlog.WithComponent("mqtt"),
	})
	if err != nil {
		states.Close()
		relay.Close()
		charger.Close()
		logger.Fatal().
			Err(err).
			Str("event", "mqtt.connect_failed").
			Str("broker", maskBroker(cfg.MQTTBroker)).
			Msg("failed to connect to MQTT broker")
	}

	// Teleinfo is opt-in via a marker file so boards without a Linky meter
	// never touch the serial port.
	var (
		frames    chan teleinfo.Frame
		ticReader *teleinfo.Reader
	)
	if _, statErr := os.Stat(cfg.LinkyEnableFile); statErr == nil {
		port, portErr := teleinfo.OpenPort(cfg.LinkyPort)
		if portErr != nil {
			logger.Error().
				Err(portErr).
				Str("event", "teleinfo.open_failed").
				Str("port", cfg.LinkyPort).
				Msg("teleinfo enabled but serial port unavailable, continuing without it")
		} else {
			frames = make(chan teleinfo.Frame, 8)
			ticReader = teleinfo.NewReader(port, mlog.WithComponent("teleinfo"))
			logger.Info().Msgf("→ Teleinfo: enabled on %s", cfg.LinkyPort)
		}
	} else {
		logger.Info().Msg("→ Teleinfo: disabled")
	}

	br, err := bridge.New(bridge.Config{
		Device:          device,
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		DataDir:         cfg.DataDir,
		RefreshInterval: cfg.RefreshInterval,
		LEDs:            bridge.DefaultLEDs(),
		Teleinfo:        ticReader != nil,
	}, bridge.Deps{
		Pub:            conn,
		Relay:          relay,
		Charger:        charger,
		LEDs:           leds,
		Battery:        battery,
		States:         states,
		Logger:         mlog.WithComponent("bridge"),
		TeleinfoFrames: frames,
	})
	if err != nil {
		conn.Close()
		states.Close()
		relay.Close()
		charger.Close()
		logger.Fatal().
			Err(err).
			Str("event", "bridge.init_failed").
			Msg("failed to create bridge")
	}

	if err := br.Expose(ctx); err != nil {
		conn.Close()
		states.Close()
		relay.Close()
		charger.Close()
		logger.Fatal().
			Err(err).
			Str("event", "bridge.expose_failed").
			Msg("failed to announce entities")
	}

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(health.NewMQTTChecker(conn.Connected))
	healthMgr.RegisterChecker(health.NewGPIOChecker(cfg.GPIOChip, gpio.ChipAvailable))
	healthMgr.RegisterChecker(health.NewLastRunChecker(cfg.RefreshInterval, br.LastRun))

	apiServer := api.New(healthMgr, br)

	metricsAddr := ""
	var metricsHandler = promhttp.Handler()
	if cfg.MetricsEnabled {
		metricsAddr = cfg.MetricsAddr
	} else {
		metricsHandler = nil
	}

	mgr, err := daemon.NewManager(
		daemon.DefaultServerConfig(cfg.ListenAddr, metricsAddr),
		daemon.Deps{
			Logger:         mlog.Base(),
			APIHandler:     apiServer.Handler(),
			MetricsHandler: metricsHandler,
		},
	)
	if err != nil {
		logger.Fatal().
			Err(err).
			Msg("failed to create daemon manager")
	}

	mgr.AddRunner("bridge", br.Run)
	if ticReader != nil {
		mgr.AddRunner("teleinfo", func(ctx context.Context) error {
			return ticReader.Run(ctx, frames)
		})
	}

	// Hot reload: watch the config file and honor SIGHUP. Log-level changes
	// apply live; hardware and broker settings need a restart.
	if effectiveConfigPath != "" {
		holder := config.NewHolder(cfg, loader, effectiveConfigPath)
		reloaded := make(chan config.AppConfig, 1)
		holder.Subscribe(reloaded)
		mgr.AddRunner("config-watch", holder.Watch)
		mgr.AddRunner("config-reload", func(ctx context.Context) error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-hup:
					if err := holder.Reload(ctx); err != nil {
						logger.Error().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed, keeping previous configuration")
					}
				case next := <-reloaded:
					mlog.Configure(mlog.Config{
						Level:   next.LogLevel,
						Service: "mapio-gpio-ha",
						Version: next.Version,
					})
					logger.Info().
						Str("event", "config.reloaded").
						Str("log_level", next.LogLevel).
						Msg("configuration reloaded")
				}
			}
		})
	}

	// LIFO: bridge teardown runs first, then the broker disconnect, then
	// the state store.
	mgr.RegisterShutdownHook("state-store", func(ctx context.Context) error {
		return states.Close()
	})
	mgr.RegisterShutdownHook("mqtt", func(ctx context.Context) error {
		conn.Close()
		return nil
	})
	mgr.RegisterShutdownHook("bridge", func(ctx context.Context) error {
		return br.Close()
	})

	if err := mgr.Start(ctx); err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
		os.Exit(1)
	}
}
