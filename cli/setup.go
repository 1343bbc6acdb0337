// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/smartin015/netavark/firewall"
	"github.com/smartin015/netavark/network"
	"github.com/smartin015/netavark/network/types"
	"github.com/smartin015/netavark/sysctl"
)

const ipv4ForwardKey = "net.ipv4.ip_forward"

var setupCLICommand = cli.Command{
	Name:  "setup",
	Usage: "Set up a container network namespace",
	ArgsUsage: `<namespace-path>

   <namespace-path> is the path to the network namespace that should be
   configured, e.g. /run/netns/example. The networks to join are read from
   the options document given with --file.`,
	Action: func(context *cli.Context) error {
		nsPath := context.Args().First()
		if nsPath == "" {
			return fmt.Errorf("Missing network namespace path")
		}

		response, err := setupNetworks(nsPath, context.GlobalString("file"))
		if err != nil {
			return err
		}

		data, err := json.Marshal(response)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

// Collaborators of the setup flow, swapped by tests.
var (
	checkNamespacePathFunc = network.CheckNamespacePath
	loadNetworkOptionsFunc = types.LoadNetworkOptions
	newFirewallDriverFunc  = firewall.New
	newSysctlManagerFunc   = sysctl.New

	networkConstructors = map[network.DriverKind]network.Constructor{
		network.DriverBridge:  &network.Bridge{},
		network.DriverMacvlan: &network.Macvlan{},
	}
)

// setupNetworks attaches the namespace at nsPath to every network in the
// options document, in document order. The first failure aborts all
// remaining work; networks already configured stay configured, there is no
// rollback.
func setupNetworks(nsPath, optionsPath string) (map[string]types.StatusBlock, error) {
	if err := checkNamespacePathFunc(nsPath); err != nil {
		return nil, fmt.Errorf("invalid namespace path: %v", err)
	}

	navLog.Debug("Setting up...")

	opts, err := loadNetworkOptionsFunc(optionsPath)
	if err != nil {
		return nil, &netavarkError{Message: err.Error(), Errno: 1}
	}

	driver, err := newFirewallDriverFunc()
	if err != nil {
		return nil, err
	}

	mgr := newSysctlManagerFunc()

	// Forwarding is a precondition for every network, enable it once
	// before any per-network work.
	if err := mgr.Ensure(ipv4ForwardKey, "1"); err != nil {
		return nil, err
	}

	response := make(map[string]types.StatusBlock)

	for _, netName := range opts.NetworkNames() {
		netInfo := opts.NetworkInfo[netName]

		navLog.WithFields(logrus.Fields{
			"network": netName,
			"driver":  netInfo.Driver,
		}).Debug("Setting up network")

		switch network.ParseDriver(netInfo.Driver) {
		case network.DriverBridge:
			status, perOpts, err := configureNetwork(network.DriverBridge, netName, &netInfo, opts, nsPath)
			if err != nil {
				return nil, err
			}
			response[netName] = *status

			handle := firewall.NetworkHash(netName)
			if err := driver.SetupNetwork(netInfo, handle); err != nil {
				return nil, err
			}

			if len(opts.PortMappings) > 0 {
				if err := setupPortForwarding(driver, mgr, opts, perOpts, &netInfo, netName, handle); err != nil {
					return nil, err
				}
			}

		case network.DriverMacvlan:
			status, _, err := configureNetwork(network.DriverMacvlan, netName, &netInfo, opts, nsPath)
			if err != nil {
				return nil, err
			}
			response[netName] = *status
			// macvlan interfaces have direct L2 access, no firewall or
			// sysctl state is installed for them.

		case network.DriverUnsupported:
			return nil, fmt.Errorf("unknown network driver %s", netInfo.Driver)
		}
	}

	navLog.Debug("Setup complete")
	return response, nil
}

func configureNetwork(kind network.DriverKind, netName string, netInfo *types.Network, opts *types.NetworkOptions, nsPath string) (*types.StatusBlock, *types.PerNetworkOptions, error) {
	perOpts, ok := opts.Networks[netName]
	if !ok {
		return nil, nil, fmt.Errorf("network options for network %s not found", netName)
	}

	status, err := networkConstructors[kind].Configure(&perOpts, netInfo, nsPath)
	if err != nil {
		return nil, nil, err
	}
	return status, &perOpts, nil
}

func setupPortForwarding(driver firewall.Driver, mgr sysctl.Manager, opts *types.NetworkOptions, perOpts *types.PerNetworkOptions, netInfo *types.Network, netName, handle string) error {
	// Traffic from localhost only reaches published ports once
	// route_localnet is enabled on the bridge interface.
	if netInfo.NetworkInterface != "" {
		key := fmt.Sprintf("net.ipv4.conf.%s.route_localnet", netInfo.NetworkInterface)
		if err := mgr.Ensure(key, "1"); err != nil {
			return err
		}
	}

	if len(perOpts.StaticIPs) == 0 {
		return fmt.Errorf("no container ip provided")
	}
	if len(netInfo.Subnets) == 0 {
		return fmt.Errorf("no network address provided")
	}

	// Only the first static IP and subnet are published. The options
	// accept lists, but additional entries are not used here.
	return driver.SetupPortForward(opts.ContainerID, opts.PortMappings,
		perOpts.StaticIPs[0], &netInfo.Subnets[0].Subnet.IPNet, netName,
		handle[:firewall.MaxHashSize])
}
