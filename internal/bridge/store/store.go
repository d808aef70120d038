// SPDX-License-Identifier: MIT

// Package store persists the last commanded output states so a restart can
// restore the relay and LEDs instead of dropping everything to off.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var stateKey = []byte("outputs")

// ErrNotFound is returned when no state has been persisted yet.
var ErrNotFound = errors.New("store: no persisted state")

// OutputState is the persisted record of output positions.
type OutputState struct {
	Relay bool            `json:"relay"`
	LEDs  map[string]bool `json:"leds"`
}

// StateStore persists output state in a local badger database.
type StateStore struct {
	db *badger.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*StateStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", path, err)
	}
	return &StateStore{db: db}, nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error { return s.db.Close() }

// Put persists the current output state.
func (s *StateStore) Put(state OutputState) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, buf)
	})
}

// Get returns the last persisted output state.
func (s *StateStore) Get() (OutputState, error) {
	var out OutputState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return OutputState{}, ErrNotFound
	}
	if err != nil {
		return OutputState{}, fmt.Errorf("read state: %w", err)
	}
	return out, nil
}
