// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package firewall

import (
	"bytes"
	"fmt"
	"net"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/smartin015/netavark/network/types"
)

const (
	nftTableName            = "netavark"
	nftPostroutingChainName = "postrouting"
	nftPreroutingChainName  = "prerouting"
	nftOutputChainName      = "output"
	nftForwardChainName     = "forward"
)

type nftablesDriver struct {
	conn *nftables.Conn
}

// newNftablesDriver probes for nftables kernel support.
func newNftablesDriver() (Driver, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, err
	}
	if _, err := conn.ListTables(); err != nil {
		return nil, err
	}
	return &nftablesDriver{conn: conn}, nil
}

func (d *nftablesDriver) Name() string {
	return "nftables"
}

// nftBase holds the netavark table and its base chains.
type nftBase struct {
	table   *nftables.Table
	post    *nftables.Chain
	pre     *nftables.Chain
	out     *nftables.Chain
	forward *nftables.Chain
}

// baseChains declares the netavark table and its base chains. The kernel
// treats redeclaration as a no-op, so this is safe to run on every call.
// The output chain catches locally generated traffic to published ports the
// same way the prerouting chain catches inbound traffic.
func (d *nftablesDriver) baseChains() nftBase {
	table := d.conn.AddTable(&nftables.Table{
		Name:   nftTableName,
		Family: nftables.TableFamilyIPv4,
	})

	post := d.conn.AddChain(&nftables.Chain{
		Name:     nftPostroutingChainName,
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: nftables.ChainPriorityNATSource,
	})

	pre := d.conn.AddChain(&nftables.Chain{
		Name:     nftPreroutingChainName,
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPrerouting,
		Priority: nftables.ChainPriorityNATDest,
	})

	out := d.conn.AddChain(&nftables.Chain{
		Name:     nftOutputChainName,
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityNATDest,
	})

	forward := d.conn.AddChain(&nftables.Chain{
		Name:     nftForwardChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
	})

	return nftBase{table: table, post: post, pre: pre, out: out, forward: forward}
}

func subnetMatch(offset uint32, subnet *net.IPNet) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           subnet.Mask,
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     subnet.IP.Mask(subnet.Mask).To4(),
		},
	}
}

const (
	saddrOffset uint32 = 12
	daddrOffset uint32 = 16
)

// localDaddrMatch matches packets whose destination address is local to the
// host.
func localDaddrMatch() []expr.Any {
	return []expr.Any{
		&expr.Fib{
			Register:       1,
			ResultADDRTYPE: true,
			FlagDADDR:      true,
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     binaryutil.NativeEndian.PutUint32(unix.RTN_LOCAL),
		},
	}
}

// establishedMatch matches packets belonging to a related or established
// conntrack entry.
func establishedMatch() []expr.Any {
	return []expr.Any{
		&expr.Ct{Register: 1, Key: expr.CtKeySTATE},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryutil.NativeEndian.PutUint32(expr.CtStateBitRELATED | expr.CtStateBitESTABLISHED),
			Xor:            binaryutil.NativeEndian.PutUint32(0),
		},
		&expr.Cmp{
			Op:       expr.CmpOpNeq,
			Register: 1,
			Data:     binaryutil.NativeEndian.PutUint32(0),
		},
	}
}

func (d *nftablesDriver) SetupNetwork(network types.Network, handle string) error {
	base := d.baseChains()
	tag := "nv-" + handle

	chain := d.conn.AddChain(&nftables.Chain{
		Name:  tag,
		Table: base.table,
	})

	for _, subnet := range network.Subnets {
		sn := &subnet.Subnet.IPNet

		// postrouting: ip saddr <subnet> jump nv-<handle>
		d.conn.AddRule(&nftables.Rule{
			Table: base.table,
			Chain: base.post,
			Exprs: append(subnetMatch(saddrOffset, sn),
				&expr.Verdict{Kind: expr.VerdictJump, Chain: chain.Name},
			),
			UserData: []byte(tag),
		})

		// nv-<handle>: ip daddr <subnet> return
		d.conn.AddRule(&nftables.Rule{
			Table: base.table,
			Chain: chain,
			Exprs: append(subnetMatch(daddrOffset, sn),
				&expr.Verdict{Kind: expr.VerdictReturn},
			),
		})

		// forward: ip daddr <subnet> ct state related,established accept
		d.conn.AddRule(&nftables.Rule{
			Table: base.table,
			Chain: base.forward,
			Exprs: append(append(subnetMatch(daddrOffset, sn), establishedMatch()...),
				&expr.Verdict{Kind: expr.VerdictAccept},
			),
			UserData: []byte(tag),
		})

		// forward: ip saddr <subnet> accept
		d.conn.AddRule(&nftables.Rule{
			Table: base.table,
			Chain: base.forward,
			Exprs: append(subnetMatch(saddrOffset, sn),
				&expr.Verdict{Kind: expr.VerdictAccept},
			),
			UserData: []byte(tag),
		})
	}

	// nv-<handle>: masquerade
	d.conn.AddRule(&nftables.Rule{
		Table: base.table,
		Chain: chain,
		Exprs: []expr.Any{&expr.Masq{}},
	})

	if err := d.conn.Flush(); err != nil {
		return fmt.Errorf("failed to apply nftables rules for network %s: %v", handle, err)
	}
	return nil
}

func (d *nftablesDriver) TeardownNetwork(network types.Network, handle string) error {
	base := d.baseChains()
	table := base.table

	if err := d.deleteTaggedRules(table, base.post, "nv-"+handle); err != nil {
		return err
	}
	if err := d.deleteTaggedRules(table, base.forward, "nv-"+handle); err != nil {
		return err
	}

	chain := &nftables.Chain{Name: "nv-" + handle, Table: table}
	d.conn.FlushChain(chain)
	d.conn.DelChain(chain)

	if err := d.conn.Flush(); err != nil {
		return fmt.Errorf("failed to remove nftables rules for network %s: %v", handle, err)
	}
	return nil
}

func (d *nftablesDriver) SetupPortForward(containerID string, ports []types.PortMapping, containerIP net.IP, subnet *net.IPNet, networkName, handlePrefix string) error {
	if containerIP == nil {
		return fmt.Errorf("no container ip provided")
	}
	if subnet == nil {
		return fmt.Errorf("no network address provided")
	}

	ip4 := containerIP.To4()
	if ip4 == nil {
		return fmt.Errorf("container ip %s is not an IPv4 address", containerIP)
	}

	base := d.baseChains()
	table := base.table
	post := base.post
	tag := "nv-dn-" + handlePrefix

	chain := d.conn.AddChain(&nftables.Chain{
		Name:  tag,
		Table: table,
	})

	// prerouting/output: fib daddr type local jump nv-dn-<prefix>.
	// The output hook catches locally generated traffic to published
	// ports, mirroring the prerouting jump for inbound traffic.
	for _, hook := range []*nftables.Chain{base.pre, base.out} {
		d.conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: hook,
			Exprs: append(localDaddrMatch(),
				&expr.Verdict{Kind: expr.VerdictJump, Chain: chain.Name},
			),
			UserData: []byte(tag),
		})
	}

	for _, pm := range ports {
		proto, err := protocolNumber(pm.Protocol)
		if err != nil {
			return err
		}

		exprs := []expr.Any{
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseTransportHeader,
				Offset:       2, // dport
				Len:          2,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.BigEndian.PutUint16(pm.HostPort),
			},
			&expr.Immediate{Register: 1, Data: ip4},
			&expr.Immediate{Register: 2, Data: binaryutil.BigEndian.PutUint16(pm.ContainerPort)},
			&expr.NAT{
				Type:        expr.NATTypeDestNAT,
				Family:      unix.NFPROTO_IPV4,
				RegAddrMin:  1,
				RegProtoMin: 2,
			},
		}

		d.conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: exprs,
		})

		// Hairpin: connections from the subnet back to the published
		// container port must be masqueraded.
		hairpin := append(subnetMatch(saddrOffset, subnet),
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       daddrOffset,
				Len:          4,
			},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip4},
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseTransportHeader,
				Offset:       2,
				Len:          2,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.BigEndian.PutUint16(pm.ContainerPort),
			},
			&expr.Masq{},
		)
		d.conn.AddRule(&nftables.Rule{
			Table:    table,
			Chain:    post,
			Exprs:    hairpin,
			UserData: []byte(tag),
		})
	}

	if err := d.conn.Flush(); err != nil {
		return fmt.Errorf("failed to apply port forward rules for %s: %v", containerID, err)
	}
	return nil
}

func (d *nftablesDriver) TeardownPortForward(containerID string, ports []types.PortMapping, containerIP net.IP, subnet *net.IPNet, networkName, handlePrefix string) error {
	base := d.baseChains()
	table := base.table
	tag := "nv-dn-" + handlePrefix

	for _, hook := range []*nftables.Chain{base.pre, base.out, base.post} {
		if err := d.deleteTaggedRules(table, hook, tag); err != nil {
			return err
		}
	}

	chain := &nftables.Chain{Name: tag, Table: table}
	d.conn.FlushChain(chain)
	d.conn.DelChain(chain)

	if err := d.conn.Flush(); err != nil {
		return fmt.Errorf("failed to remove port forward rules for %s: %v", containerID, err)
	}
	return nil
}

// deleteTaggedRules removes all rules in chain whose user data equals tag.
func (d *nftablesDriver) deleteTaggedRules(table *nftables.Table, chain *nftables.Chain, tag string) error {
	rules, err := d.conn.GetRules(table, chain)
	if err != nil {
		return fmt.Errorf("failed to list rules of chain %s: %v", chain.Name, err)
	}

	for _, rule := range rules {
		if !bytes.Equal(rule.UserData, []byte(tag)) {
			continue
		}
		if err := d.conn.DelRule(rule); err != nil {
			return fmt.Errorf("failed to delete rule from chain %s: %v", chain.Name, err)
		}
	}
	return nil
}

func protocolNumber(protocol string) (byte, error) {
	switch protocol {
	case "tcp":
		return unix.IPPROTO_TCP, nil
	case "udp":
		return unix.IPPROTO_UDP, nil
	case "sctp":
		return unix.IPPROTO_SCTP, nil
	default:
		return 0, fmt.Errorf("unsupported protocol %s", protocol)
	}
}
