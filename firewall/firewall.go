// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package firewall

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/smartin015/netavark/network/types"
)

func firewallLogger() *logrus.Entry {
	return logrus.WithField("source", "firewall")
}

// ErrNoBackend is returned by New when no supported firewall backend is
// available on the host. It is an ordinary error the caller can handle,
// never a process abort.
var ErrNoBackend = errors.New("no supported firewall backend found")

// Driver installs and removes the firewall state for container networks.
//
// Setup calls are not idempotent against re-invocation with the same
// arguments: no existing-rule check is performed, a second call for the same
// handle installs duplicate jump rules unless the backend itself deduplicates.
type Driver interface {
	// Name identifies the backend.
	Name() string

	// SetupNetwork installs the baseline NAT and isolation state for a
	// bridge network. The handle is the deterministic per-network rule
	// handle used to name chains. Never called for macvlan networks.
	SetupNetwork(network types.Network, handle string) error

	// TeardownNetwork removes the state installed by SetupNetwork.
	TeardownNetwork(network types.Network, handle string) error

	// SetupPortForward installs DNAT rules publishing each host port to
	// the corresponding container port on containerIP within subnet.
	// The handlePrefix scopes the rules to one container and network so
	// concurrent containers never overwrite each other.
	SetupPortForward(containerID string, ports []types.PortMapping, containerIP net.IP, subnet *net.IPNet, networkName, handlePrefix string) error

	// TeardownPortForward removes the state installed by SetupPortForward.
	TeardownPortForward(containerID string, ports []types.PortMapping, containerIP net.IP, subnet *net.IPNet, networkName, handlePrefix string) error
}

// New probes the installed backends and returns the first supported one.
// The probe runs once per invocation; the result is injected into whatever
// component needs firewall access.
func New() (Driver, error) {
	driver, err := newIptablesDriver()
	if err == nil {
		firewallLogger().WithField("backend", driver.Name()).Debug("Selected firewall backend")
		return driver, nil
	}
	firewallLogger().WithError(err).Debug("iptables backend not available")

	driver, err = newNftablesDriver()
	if err == nil {
		firewallLogger().WithField("backend", driver.Name()).Debug("Selected firewall backend")
		return driver, nil
	}
	firewallLogger().WithError(err).Debug("nftables backend not available")

	return nil, ErrNoBackend
}
