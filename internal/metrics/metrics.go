// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapio_refresh_total",
		Help: "Refresh cycles by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapio_refresh_duration_seconds",
		Help:    "Duration of a refresh cycle",
		Buckets: prometheus.DefBuckets,
	})

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapio_mqtt_publish_total",
		Help: "MQTT state publishes per entity by outcome",
	}, []string{"entity", "outcome"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapio_commands_total",
		Help: "Commands received from Home Assistant per entity and action",
	}, []string{"entity", "action"})

	teleinfoFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapio_teleinfo_frames_total",
		Help: "Teleinfo frames read by outcome",
	}, []string{"outcome"}) // outcome=ok|bad_checksum|malformed

	upsPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapio_ups_battery_percent",
		Help: "Last reported UPS battery level",
	})

	onCharge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapio_battery_charging",
		Help: "1 when external power is present, 0 otherwise",
	})

	mqttConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapio_mqtt_connected",
		Help: "1 while the MQTT connection is up",
	})
)

// RecordRefreshSuccess records a completed refresh cycle.
func RecordRefreshSuccess(seconds float64) {
	refreshTotal.WithLabelValues("success").Inc()
	refreshDuration.Observe(seconds)
}

// RecordRefreshFailure records a failed refresh cycle.
func RecordRefreshFailure(seconds float64) {
	refreshTotal.WithLabelValues("failure").Inc()
	refreshDuration.Observe(seconds)
}

// RecordPublish records an MQTT state publish for an entity.
func RecordPublish(entity string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	publishTotal.WithLabelValues(entity, outcome).Inc()
}

// RecordCommand records a command received from Home Assistant.
func RecordCommand(entity, action string) {
	commandsTotal.WithLabelValues(entity, action).Inc()
}

// RecordTeleinfoFrame records the outcome of reading one teleinfo frame.
func RecordTeleinfoFrame(outcome string) {
	teleinfoFrames.WithLabelValues(outcome).Inc()
}

// SetUPSPercent publishes the last read battery level.
func SetUPSPercent(percent int) {
	upsPercent.Set(float64(percent))
}

// SetCharging publishes the charger presence state.
func SetCharging(charging bool) {
	if charging {
		onCharge.Set(1)
	} else {
		onCharge.Set(0)
	}
}

// SetMQTTConnected tracks broker connectivity.
func SetMQTTConnected(connected bool) {
	if connected {
		mqttConnected.Set(1)
	} else {
		mqttConnected.Set(0)
	}
}
