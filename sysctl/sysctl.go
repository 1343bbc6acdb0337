// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package sysctl

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func sysctlLogger() *logrus.Entry {
	return logrus.WithField("source", "sysctl")
}

// Manager reads and sets kernel network parameters addressed by dotted keys
// like "net.ipv4.ip_forward". Writes are host or namespace wide, not
// transactional, and never undone on later failure.
type Manager interface {
	// Get returns the current value of key. It fails with an *Error when
	// the key does not exist or is inaccessible.
	Get(key string) (string, error)

	// Ensure sets key to value unless it already holds that value. It
	// issues at most one write and none when the stored value already
	// matches.
	Ensure(key, value string) error
}

// Error is a failed access to a kernel parameter.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sysctl %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a Manager backed by /proc/sys.
func New() Manager {
	return &procManager{}
}

type procManager struct{}

func keyPath(key string) string {
	return "/proc/sys/" + strings.ReplaceAll(key, ".", "/")
}

func (p *procManager) Get(key string) (string, error) {
	sysctlLogger().WithField("key", key).Debug("Getting sysctl value")

	data, err := os.ReadFile(keyPath(key))
	if err != nil {
		return "", &Error{Key: key, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *procManager) Ensure(key, value string) error {
	current, err := p.Get(key)
	if err != nil {
		return err
	}
	if current == value {
		return nil
	}

	sysctlLogger().WithFields(logrus.Fields{
		"key":   key,
		"value": value,
	}).Debug("Setting sysctl value")

	if err := os.WriteFile(keyPath(key), []byte(value), 0644); err != nil {
		return &Error{Key: key, Err: err}
	}
	return nil
}
