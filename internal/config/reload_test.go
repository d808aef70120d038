// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func writeConfigFile(t *testing.T, path, broker string) {
	t.Helper()
	content := "mqtt:\n  broker: " + broker + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestHolderReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "tcp://one.local:1883")

	loader := NewLoader(configPath, "v-test")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	h := NewHolder(initial, loader, configPath)
	if got := h.Current().MQTTBroker; got != "tcp://one.local:1883" {
		t.Fatalf("unexpected initial broker: %s", got)
	}

	writeConfigFile(t, configPath, "tcp://two.local:1883")
	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if got := h.Current().MQTTBroker; got != "tcp://two.local:1883" {
		t.Errorf("expected reloaded broker, got %s", got)
	}
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "tcp://good.local:1883")

	loader := NewLoader(configPath, "v-test")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	h := NewHolder(initial, loader, configPath)

	// Invalid scheme must be rejected and the old config retained.
	writeConfigFile(t, configPath, "http://bad.local:1883")
	if err := h.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error for invalid broker")
	}
	if got := h.Current().MQTTBroker; got != "tcp://good.local:1883" {
		t.Errorf("expected old broker retained, got %s", got)
	}
}

func TestHolderSubscribeReceivesReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "tcp://one.local:1883")

	loader := NewLoader(configPath, "v-test")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	h := NewHolder(initial, loader, configPath)

	ch := make(chan AppConfig, 1)
	h.Subscribe(ch)

	writeConfigFile(t, configPath, "tcp://two.local:1883")
	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.MQTTBroker != "tcp://two.local:1883" {
			t.Errorf("listener got stale config: %s", cfg.MQTTBroker)
		}
	case <-time.After(time.Second):
		t.Fatal("listener did not receive reloaded config")
	}
}

func TestHolderWatchPicksUpWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "tcp://one.local:1883")

	loader := NewLoader(configPath, "v-test")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	h := NewHolder(initial, loader, configPath)

	ch := make(chan AppConfig, 1)
	h.Subscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)
	writeConfigFile(t, configPath, "tcp://two.local:1883")

	select {
	case cfg := <-ch:
		if cfg.MQTTBroker != "tcp://two.local:1883" {
			t.Errorf("watch delivered stale config: %s", cfg.MQTTBroker)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not trigger reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}
