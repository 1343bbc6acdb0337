// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package types

import (
	"encoding/json"
	"fmt"
	"net"
)

// NetworkOptions describes the networks a container should be attached to.
// It is produced once by the config loader and read-only afterwards.
type NetworkOptions struct {
	// ContainerID is the unique identifier of the container.
	ContainerID string `json:"container_id"`

	// ContainerName is the name of the container.
	ContainerName string `json:"container_name,omitempty"`

	// PortMappings are the ports which should be published for the
	// container. They apply to every bridge network the container joins.
	PortMappings []PortMapping `json:"port_mappings,omitempty"`

	// NetworkInfo maps network names to their full network description.
	NetworkInfo map[string]Network `json:"network_info"`

	// Networks maps network names to the container specific options
	// for that network.
	Networks map[string]PerNetworkOptions `json:"networks"`

	// networkOrder records the order in which networks appeared in the
	// options document. Processing must follow this order.
	networkOrder []string
}

// NetworkNames returns the network names in the order they appeared in the
// options document.
func (o *NetworkOptions) NetworkNames() []string {
	if o.networkOrder != nil {
		return o.networkOrder
	}

	names := make([]string, 0, len(o.NetworkInfo))
	for name := range o.NetworkInfo {
		names = append(names, name)
	}
	return names
}

// Network describes a single logical network.
type Network struct {
	// Driver is the network driver, e.g. "bridge" or "macvlan".
	Driver string `json:"driver"`

	// NetworkInterface is the host interface the network is bound to:
	// the bridge name for bridge networks, the parent interface for
	// macvlan networks.
	NetworkInterface string `json:"network_interface,omitempty"`

	// Subnets are the subnets of this network.
	Subnets []Subnet `json:"subnets,omitempty"`

	// Options are driver specific options.
	Options map[string]string `json:"options,omitempty"`
}

// Subnet is a single subnet of a network.
type Subnet struct {
	// Subnet is the CIDR network address.
	Subnet IPNet `json:"subnet"`

	// Gateway is the gateway address within this subnet, may be unset.
	Gateway net.IP `json:"gateway,omitempty"`
}

// PerNetworkOptions are the container specific options for one network.
type PerNetworkOptions struct {
	// StaticIPs are the addresses requested for the container on this
	// network.
	StaticIPs []net.IP `json:"static_ips,omitempty"`

	// InterfaceName is the desired name of the interface inside the
	// container namespace.
	InterfaceName string `json:"interface_name,omitempty"`

	// StaticMAC is the hardware address requested for the interface,
	// empty means a generated one.
	StaticMAC string `json:"static_mac,omitempty"`
}

// PortMapping is a published port of the container.
type PortMapping struct {
	// HostIP is the address the host port is bound to, empty means all
	// addresses.
	HostIP string `json:"host_ip,omitempty"`

	// ContainerPort is the port inside the container.
	ContainerPort uint16 `json:"container_port"`

	// HostPort is the port on the host.
	HostPort uint16 `json:"host_port"`

	// Protocol is the lower case transport protocol, e.g. "tcp".
	Protocol string `json:"protocol"`
}

// StatusBlock is the result of configuring one network for a container.
type StatusBlock struct {
	// Interfaces maps the configured interface names inside the
	// container namespace to their addressing state.
	Interfaces map[string]NetInterface `json:"interfaces,omitempty"`
}

// NetInterface is one configured interface inside the container namespace.
type NetInterface struct {
	// Subnets are the addresses assigned to the interface together with
	// their gateways.
	Subnets []NetAddress `json:"subnets,omitempty"`

	// MacAddress is the hardware address of the interface.
	MacAddress string `json:"mac_address"`
}

// NetAddress is one assigned address on an interface.
type NetAddress struct {
	// IPNet is the address in CIDR form.
	IPNet IPNet `json:"ipnet"`

	// Gateway is the gateway used for this address, may be unset.
	Gateway net.IP `json:"gateway,omitempty"`
}

// IPNet is a net.IPNet that marshals to and from its CIDR string form.
type IPNet struct {
	net.IPNet
}

// ParseCIDR parses s into an IPNet, keeping the host bits of the address.
func ParseCIDR(s string) (IPNet, error) {
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return IPNet{}, err
	}
	ipNet.IP = ip
	return IPNet{*ipNet}, nil
}

// MarshalJSON implements json.Marshaler.
func (n IPNet) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *IPNet) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseCIDR(s)
	if err != nil {
		return fmt.Errorf("invalid CIDR address %q: %v", s, err)
	}
	*n = parsed
	return nil
}
