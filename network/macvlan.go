// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package network

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/smartin015/netavark/network/types"
)

// Macvlan attaches a container namespace to a macvlan backed network. The
// container interface has direct L2 access to the parent host interface, so
// no firewall or NAT state is involved.
type Macvlan struct{}

// Configure implements Constructor.
func (m *Macvlan) Configure(perOpts *types.PerNetworkOptions, network *types.Network, nsPath string) (*types.StatusBlock, error) {
	if network.NetworkInterface == "" {
		return nil, fmt.Errorf("no parent interface given for macvlan network")
	}

	networkLogger().WithFields(logrus.Fields{
		"parent": network.NetworkInterface,
		"netns":  nsPath,
	}).Debug("Configuring macvlan network")

	netHandle, err := netlink.NewHandle()
	if err != nil {
		return nil, err
	}
	defer netHandle.Delete()

	parent, err := netHandle.LinkByName(network.NetworkInterface)
	if err != nil {
		return nil, fmt.Errorf("Could not find parent interface %s: %s", network.NetworkInterface, err)
	}

	tmpName, err := generateInterfaceName("mv")
	if err != nil {
		return nil, err
	}

	mvLink, err := createLink(netHandle, tmpName, &netlink.Macvlan{
		LinkAttrs: netlink.LinkAttrs{ParentIndex: parent.Attrs().Index},
	})
	if err != nil {
		return nil, fmt.Errorf("Could not create macvlan interface: %s", err)
	}

	nsHandle, err := netns.GetFromPath(nsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open namespace %s", nsPath)
	}
	defer nsHandle.Close()

	if err := netHandle.LinkSetNsFd(mvLink, int(nsHandle)); err != nil {
		return nil, fmt.Errorf("Could not move macvlan %s into namespace: %s", tmpName, err)
	}

	return configureContainerInterface(tmpName, perOpts, network, nsPath)
}
