// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/smartin015/netavark/firewall"
	"github.com/smartin015/netavark/network"
)

var teardownCLICommand = cli.Command{
	Name:  "teardown",
	Usage: "Remove the firewall state of a container network namespace",
	ArgsUsage: `<namespace-path>

   <namespace-path> is the path to the network namespace whose firewall
   state should be removed. The networks are read from the options document
   given with --file.`,
	Action: func(context *cli.Context) error {
		nsPath := context.Args().First()
		if nsPath == "" {
			return fmt.Errorf("Missing network namespace path")
		}

		return teardownNetworks(nsPath, context.GlobalString("file"))
	},
}

// teardownNetworks removes the port forward rules and per-network chains
// installed by setup for every bridge network in the options document.
// Interfaces inside the namespace disappear with the namespace itself.
func teardownNetworks(nsPath, optionsPath string) error {
	if err := checkNamespacePathFunc(nsPath); err != nil {
		return fmt.Errorf("invalid namespace path: %v", err)
	}

	navLog.Debug("Tearing down...")

	opts, err := loadNetworkOptionsFunc(optionsPath)
	if err != nil {
		return &netavarkError{Message: err.Error(), Errno: 1}
	}

	driver, err := newFirewallDriverFunc()
	if err != nil {
		return err
	}

	for _, netName := range opts.NetworkNames() {
		netInfo := opts.NetworkInfo[netName]

		navLog.WithFields(logrus.Fields{
			"network": netName,
			"driver":  netInfo.Driver,
		}).Debug("Tearing down network")

		switch network.ParseDriver(netInfo.Driver) {
		case network.DriverBridge:
			handle := firewall.NetworkHash(netName)

			if len(opts.PortMappings) > 0 {
				perOpts, ok := opts.Networks[netName]
				if ok && len(perOpts.StaticIPs) > 0 && len(netInfo.Subnets) > 0 {
					err := driver.TeardownPortForward(opts.ContainerID,
						opts.PortMappings, perOpts.StaticIPs[0],
						&netInfo.Subnets[0].Subnet.IPNet, netName,
						handle[:firewall.MaxHashSize])
					if err != nil {
						return err
					}
				}
			}

			if err := driver.TeardownNetwork(netInfo, handle); err != nil {
				return err
			}

		case network.DriverMacvlan:
			// No firewall state was installed for macvlan networks.

		case network.DriverUnsupported:
			return fmt.Errorf("unknown network driver %s", netInfo.Driver)
		}
	}

	navLog.Debug("Teardown complete")
	return nil
}
