// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package sysctl

import "os"

// Memory is an in-memory Manager used by tests. It records how often each
// key was written so callers can assert on write counts.
type Memory struct {
	Values map[string]string
	Writes map[string]int
}

// NewMemory returns a Memory seeded with the given values.
func NewMemory(values map[string]string) *Memory {
	if values == nil {
		values = make(map[string]string)
	}
	return &Memory{
		Values: values,
		Writes: make(map[string]int),
	}
}

// Get implements Manager.
func (m *Memory) Get(key string) (string, error) {
	value, ok := m.Values[key]
	if !ok {
		return "", &Error{Key: key, Err: os.ErrNotExist}
	}
	return value, nil
}

// Ensure implements Manager.
func (m *Memory) Ensure(key, value string) error {
	current, err := m.Get(key)
	if err != nil {
		return err
	}
	if current == value {
		return nil
	}

	m.Values[key] = value
	m.Writes[key]++
	return nil
}
