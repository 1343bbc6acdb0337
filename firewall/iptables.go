// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package firewall

import (
	"fmt"
	"net"
	"strconv"

	"github.com/coreos/go-iptables/iptables"

	"github.com/smartin015/netavark/network/types"
)

const (
	natTable    = "nat"
	filterTable = "filter"

	natChainPrefix = "NETAVARK-"
	dnChainPrefix  = "NETAVARK-DN-"
)

type iptablesDriver struct {
	ipt *iptables.IPTables
}

// newIptablesDriver probes for a usable iptables backend. Listing the nat
// table verifies both the iptables binary and kernel support.
func newIptablesDriver() (Driver, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, err
	}
	if _, err := ipt.ListChains(natTable); err != nil {
		return nil, err
	}
	return &iptablesDriver{ipt: ipt}, nil
}

func (d *iptablesDriver) Name() string {
	return "iptables"
}

func natChainName(handle string) string {
	return natChainPrefix + handle
}

func dnChainName(handlePrefix string) string {
	return dnChainPrefix + handlePrefix
}

func (d *iptablesDriver) SetupNetwork(network types.Network, handle string) error {
	chain := natChainName(handle)

	// ClearChain creates the chain when it is missing. The baseline rules
	// below are re-appended on every call; the jump rules in the builtin
	// chains are appended without an existing-rule check.
	if err := d.ipt.ClearChain(natTable, chain); err != nil {
		return fmt.Errorf("failed to create NAT chain %s: %v", chain, err)
	}

	for _, subnet := range network.Subnets {
		cidr := subnet.Subnet.String()

		// Traffic staying inside the subnet is not masqueraded.
		if err := d.ipt.Append(natTable, chain, "-d", cidr, "-j", "ACCEPT"); err != nil {
			return fmt.Errorf("failed to add NAT rule for %s: %v", cidr, err)
		}
		if err := d.ipt.Append(natTable, "POSTROUTING", "-s", cidr, "-j", chain); err != nil {
			return fmt.Errorf("failed to add POSTROUTING jump for %s: %v", cidr, err)
		}

		// Allow forwarded traffic to and from the subnet.
		if err := d.ipt.Append(filterTable, "FORWARD", "-d", cidr,
			"-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"); err != nil {
			return fmt.Errorf("failed to add FORWARD rule for %s: %v", cidr, err)
		}
		if err := d.ipt.Append(filterTable, "FORWARD", "-s", cidr, "-j", "ACCEPT"); err != nil {
			return fmt.Errorf("failed to add FORWARD rule for %s: %v", cidr, err)
		}
	}

	// Everything else leaving the network is masqueraded, except multicast.
	if err := d.ipt.Append(natTable, chain, "!", "-d", "224.0.0.0/4", "-j", "MASQUERADE"); err != nil {
		return fmt.Errorf("failed to add masquerade rule for chain %s: %v", chain, err)
	}

	return nil
}

func (d *iptablesDriver) TeardownNetwork(network types.Network, handle string) error {
	chain := natChainName(handle)

	for _, subnet := range network.Subnets {
		cidr := subnet.Subnet.String()

		if err := d.ipt.DeleteIfExists(natTable, "POSTROUTING", "-s", cidr, "-j", chain); err != nil {
			return fmt.Errorf("failed to remove POSTROUTING jump for %s: %v", cidr, err)
		}
		if err := d.ipt.DeleteIfExists(filterTable, "FORWARD", "-d", cidr,
			"-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"); err != nil {
			return fmt.Errorf("failed to remove FORWARD rule for %s: %v", cidr, err)
		}
		if err := d.ipt.DeleteIfExists(filterTable, "FORWARD", "-s", cidr, "-j", "ACCEPT"); err != nil {
			return fmt.Errorf("failed to remove FORWARD rule for %s: %v", cidr, err)
		}
	}

	if err := d.ipt.ClearAndDeleteChain(natTable, chain); err != nil {
		return fmt.Errorf("failed to remove NAT chain %s: %v", chain, err)
	}
	return nil
}

func (d *iptablesDriver) SetupPortForward(containerID string, ports []types.PortMapping, containerIP net.IP, subnet *net.IPNet, networkName, handlePrefix string) error {
	if containerIP == nil {
		return fmt.Errorf("no container ip provided")
	}
	if subnet == nil {
		return fmt.Errorf("no network address provided")
	}

	chain := dnChainName(handlePrefix)
	if err := d.ipt.ClearChain(natTable, chain); err != nil {
		return fmt.Errorf("failed to create DNAT chain %s: %v", chain, err)
	}

	for _, pm := range ports {
		hostPort := strconv.Itoa(int(pm.HostPort))
		dest := net.JoinHostPort(containerIP.String(), strconv.Itoa(int(pm.ContainerPort)))

		rule := []string{"-p", pm.Protocol, "--dport", hostPort, "-j", "DNAT", "--to-destination", dest}
		if pm.HostIP != "" {
			rule = append([]string{"-d", pm.HostIP}, rule...)
		}
		if err := d.ipt.Append(natTable, chain, rule...); err != nil {
			return fmt.Errorf("failed to add DNAT rule for port %s: %v", hostPort, err)
		}

		// Hairpin: traffic from the subnet to the published port of its
		// own container must be masqueraded to come back.
		if err := d.ipt.Append(natTable, "POSTROUTING",
			"-s", subnet.String(), "-d", containerIP.String(),
			"-p", pm.Protocol, "--dport", strconv.Itoa(int(pm.ContainerPort)),
			"-j", "MASQUERADE"); err != nil {
			return fmt.Errorf("failed to add hairpin rule for port %s: %v", hostPort, err)
		}
	}

	// Route host-local traffic through the DNAT chain.
	if err := d.ipt.Append(natTable, "PREROUTING",
		"-m", "addrtype", "--dst-type", "LOCAL", "-j", chain); err != nil {
		return fmt.Errorf("failed to add PREROUTING jump to %s: %v", chain, err)
	}
	if err := d.ipt.Append(natTable, "OUTPUT",
		"-m", "addrtype", "--dst-type", "LOCAL", "-j", chain); err != nil {
		return fmt.Errorf("failed to add OUTPUT jump to %s: %v", chain, err)
	}

	return nil
}

func (d *iptablesDriver) TeardownPortForward(containerID string, ports []types.PortMapping, containerIP net.IP, subnet *net.IPNet, networkName, handlePrefix string) error {
	if containerIP == nil {
		return fmt.Errorf("no container ip provided")
	}
	if subnet == nil {
		return fmt.Errorf("no network address provided")
	}

	chain := dnChainName(handlePrefix)

	if err := d.ipt.DeleteIfExists(natTable, "PREROUTING",
		"-m", "addrtype", "--dst-type", "LOCAL", "-j", chain); err != nil {
		return fmt.Errorf("failed to remove PREROUTING jump to %s: %v", chain, err)
	}
	if err := d.ipt.DeleteIfExists(natTable, "OUTPUT",
		"-m", "addrtype", "--dst-type", "LOCAL", "-j", chain); err != nil {
		return fmt.Errorf("failed to remove OUTPUT jump to %s: %v", chain, err)
	}

	for _, pm := range ports {
		if err := d.ipt.DeleteIfExists(natTable, "POSTROUTING",
			"-s", subnet.String(), "-d", containerIP.String(),
			"-p", pm.Protocol, "--dport", strconv.Itoa(int(pm.ContainerPort)),
			"-j", "MASQUERADE"); err != nil {
			return fmt.Errorf("failed to remove hairpin rule: %v", err)
		}
	}

	if err := d.ipt.ClearAndDeleteChain(natTable, chain); err != nil {
		return fmt.Errorf("failed to remove DNAT chain %s: %v", chain, err)
	}
	return nil
}
