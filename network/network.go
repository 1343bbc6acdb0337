// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package network

import (
	"fmt"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/sirupsen/logrus"

	"github.com/smartin015/netavark/network/types"
)

func networkLogger() *logrus.Entry {
	return logrus.WithField("source", "network")
}

// DriverKind is the closed set of network drivers this runtime knows about.
// Unsupported driver strings map to DriverUnsupported and must be rejected
// at the dispatch site, they are valid input rather than programming errors.
type DriverKind int

const (
	// DriverUnsupported is any driver string this runtime does not handle.
	DriverUnsupported DriverKind = iota

	// DriverBridge is a network backed by a host bridge and veth pairs.
	DriverBridge

	// DriverMacvlan is a network giving the container a macvlan interface
	// with direct L2 access to a host interface.
	DriverMacvlan
)

// ParseDriver maps a driver string from the options document to a DriverKind.
func ParseDriver(driver string) DriverKind {
	switch driver {
	case "bridge":
		return DriverBridge
	case "macvlan":
		return DriverMacvlan
	default:
		return DriverUnsupported
	}
}

// String converts a DriverKind back to its driver string.
func (k DriverKind) String() string {
	switch k {
	case DriverBridge:
		return "bridge"
	case DriverMacvlan:
		return "macvlan"
	default:
		return "unsupported"
	}
}

// Constructor creates the host and namespace side interfaces for one network
// and assigns the container addresses on it.
type Constructor interface {
	// Configure attaches the namespace at nsPath to the given network and
	// returns the resulting interface and address state. A failed
	// Configure is fatal for the setup of that network.
	Configure(perOpts *types.PerNetworkOptions, network *types.Network, nsPath string) (*types.StatusBlock, error)
}

// CheckNamespacePath verifies that path refers to a network namespace.
func CheckNamespacePath(path string) error {
	if path == "" {
		return fmt.Errorf("namespace path cannot be empty")
	}
	if err := ns.IsNSorErr(path); err != nil {
		return err
	}
	return nil
}
