// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package network

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/smartin015/netavark/network/types"
)

const defaultContainerIfName = "eth0"

// Bridge attaches a container namespace to a bridge backed network. It
// ensures the host bridge exists, creates a veth pair, moves the peer end
// into the namespace and assigns the container addresses.
type Bridge struct{}

// Configure implements Constructor.
func (b *Bridge) Configure(perOpts *types.PerNetworkOptions, network *types.Network, nsPath string) (*types.StatusBlock, error) {
	if network.NetworkInterface == "" {
		return nil, fmt.Errorf("no bridge interface name given")
	}

	networkLogger().WithFields(logrus.Fields{
		"bridge": network.NetworkInterface,
		"netns":  nsPath,
	}).Debug("Configuring bridge network")

	netHandle, err := netlink.NewHandle()
	if err != nil {
		return nil, err
	}
	defer netHandle.Delete()

	brLink, err := ensureBridge(netHandle, network)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to set up bridge %s", network.NetworkInterface)
	}

	hostName, err := generateInterfaceName("veth")
	if err != nil {
		return nil, err
	}
	peerName, err := generateInterfaceName("veth")
	if err != nil {
		return nil, err
	}

	hostVeth, err := createLink(netHandle, hostName, &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{MasterIndex: brLink.Attrs().Index},
		PeerName:  peerName,
	})
	if err != nil {
		return nil, fmt.Errorf("Could not create veth pair: %s", err)
	}

	if err := netHandle.LinkSetUp(hostVeth); err != nil {
		return nil, fmt.Errorf("Could not enable veth %s: %s", hostName, err)
	}

	peerLink, err := netHandle.LinkByName(peerName)
	if err != nil {
		return nil, fmt.Errorf("Could not find veth peer %s: %s", peerName, err)
	}

	nsHandle, err := netns.GetFromPath(nsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open namespace %s", nsPath)
	}
	defer nsHandle.Close()

	if err := netHandle.LinkSetNsFd(peerLink, int(nsHandle)); err != nil {
		return nil, fmt.Errorf("Could not move veth %s into namespace: %s", peerName, err)
	}

	return configureContainerInterface(peerName, perOpts, network, nsPath)
}

// ensureBridge returns the host bridge for the network, creating it and
// assigning the subnet gateway addresses if it does not exist yet.
func ensureBridge(netHandle *netlink.Handle, network *types.Network) (netlink.Link, error) {
	brLink, err := getLinkByName(netHandle, network.NetworkInterface, &netlink.Bridge{})
	if err != nil {
		brLink, err = createLink(netHandle, network.NetworkInterface, &netlink.Bridge{})
		if err != nil {
			return nil, err
		}
	}

	addrs, err := netHandle.AddrList(brLink, netlink.FAMILY_ALL)
	if err != nil {
		return nil, err
	}

	for _, subnet := range network.Subnets {
		if subnet.Gateway == nil {
			continue
		}

		gwAddr := netlink.Addr{IPNet: &net.IPNet{
			IP:   subnet.Gateway,
			Mask: subnet.Subnet.Mask,
		}}

		present := false
		for _, addr := range addrs {
			if addr.IPNet != nil && addr.IP.Equal(subnet.Gateway) {
				present = true
				break
			}
		}
		if present {
			continue
		}

		if err := netHandle.AddrAdd(brLink, &gwAddr); err != nil {
			return nil, fmt.Errorf("Could not assign gateway address %s to bridge: %s", gwAddr.IPNet, err)
		}
	}

	if err := netHandle.LinkSetUp(brLink); err != nil {
		return nil, fmt.Errorf("Could not enable bridge %s: %s", network.NetworkInterface, err)
	}

	return brLink, nil
}

// configureContainerInterface renames the moved link, assigns the container
// addresses and default route inside the namespace, and reports the result.
func configureContainerInterface(tmpName string, perOpts *types.PerNetworkOptions, network *types.Network, nsPath string) (*types.StatusBlock, error) {
	ifName := perOpts.InterfaceName
	if ifName == "" {
		ifName = defaultContainerIfName
	}

	addrs, netAddrs, gateway, err := containerAddresses(perOpts.StaticIPs, network.Subnets)
	if err != nil {
		return nil, err
	}

	macAddress := perOpts.StaticMAC
	if macAddress == "" {
		macAddress, err = generateRandomPrivateMacAddr()
		if err != nil {
			return nil, fmt.Errorf("Could not generate MAC address: %s", err)
		}
	}
	hwAddr, err := net.ParseMAC(macAddress)
	if err != nil {
		return nil, fmt.Errorf("Invalid MAC address %s: %s", macAddress, err)
	}
	macAddress = hwAddr.String()

	err = DoNetNS(nsPath, func() error {
		link, err := netlink.LinkByName(tmpName)
		if err != nil {
			return fmt.Errorf("Could not find interface %s in namespace: %s", tmpName, err)
		}

		if err := netlink.LinkSetName(link, ifName); err != nil {
			return fmt.Errorf("Could not rename interface %s to %s: %s", tmpName, ifName, err)
		}

		link, err = netlink.LinkByName(ifName)
		if err != nil {
			return err
		}

		if err := netlink.LinkSetHardwareAddr(link, hwAddr); err != nil {
			return fmt.Errorf("Could not set MAC address on %s: %s", ifName, err)
		}

		if err := setIPs(link, addrs); err != nil {
			return fmt.Errorf("Could not assign addresses to %s: %s", ifName, err)
		}

		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("Could not enable interface %s: %s", ifName, err)
		}

		if gateway != nil {
			route := &netlink.Route{Gw: gateway}
			if err := netlink.RouteAdd(route); err != nil {
				return fmt.Errorf("Could not add default route via %s: %s", gateway, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &types.StatusBlock{
		Interfaces: map[string]types.NetInterface{
			ifName: {
				Subnets:    netAddrs,
				MacAddress: macAddress,
			},
		},
	}, nil
}

// containerAddresses resolves the addresses to assign inside the namespace.
// Every static IP must fall into one of the network subnets; when no static
// IP is requested one address per subnet is derived from the subnet itself.
// The returned gateway is the one of the first subnet that declares one.
func containerAddresses(staticIPs []net.IP, subnets []types.Subnet) ([]netlink.Addr, []types.NetAddress, net.IP, error) {
	if len(subnets) == 0 {
		return nil, nil, nil, fmt.Errorf("no subnet provided for network")
	}

	ips := staticIPs
	if len(ips) == 0 {
		for _, subnet := range subnets {
			ips = append(ips, deriveAddress(subnet))
		}
	}

	var (
		addrs    []netlink.Addr
		netAddrs []types.NetAddress
		gateway  net.IP
	)

	for _, ip := range ips {
		subnet, err := containingSubnet(ip, subnets)
		if err != nil {
			return nil, nil, nil, err
		}

		ipNet := net.IPNet{IP: ip, Mask: subnet.Subnet.Mask}
		addrs = append(addrs, netlink.Addr{IPNet: &ipNet})
		netAddrs = append(netAddrs, types.NetAddress{
			IPNet:   types.IPNet{IPNet: ipNet},
			Gateway: subnet.Gateway,
		})

		if gateway == nil && subnet.Gateway != nil {
			gateway = subnet.Gateway
		}
	}

	return addrs, netAddrs, gateway, nil
}

func containingSubnet(ip net.IP, subnets []types.Subnet) (*types.Subnet, error) {
	for i := range subnets {
		if subnets[i].Subnet.Contains(ip) {
			return &subnets[i], nil
		}
	}
	return nil, fmt.Errorf("static ip %s not in any subnet of this network", ip)
}

// deriveAddress picks an address for the container when none was requested:
// the address after the gateway when the subnet has one, otherwise the
// second host address of the subnet.
func deriveAddress(subnet types.Subnet) net.IP {
	base := subnet.Subnet.IP.Mask(subnet.Subnet.Mask)
	if subnet.Gateway != nil {
		return nextIP(subnet.Gateway)
	}
	return nextIP(nextIP(base))
}

func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}
