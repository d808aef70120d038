// SPDX-License-Identifier: MIT

package ha

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Discoverable is implemented by every entity type.
type Discoverable interface {
	ConfigTopic() string
	DiscoveryConfig() ([]byte, error)
}

// WriteDiscoverySnapshot writes all discovery payloads, keyed by config
// topic, to <dir>/discovery.json. The write is atomic so a reader never sees
// a half-written file. The snapshot exists for debugging: it is exactly what
// Home Assistant received.
func WriteDiscoverySnapshot(dir string, entities ...Discoverable) error {
	snapshot := make(map[string]json.RawMessage, len(entities))
	for _, e := range entities {
		payload, err := e.DiscoveryConfig()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", e.ConfigTopic(), err)
		}
		snapshot[e.ConfigTopic()] = payload
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "discovery.json")
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
