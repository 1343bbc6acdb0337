// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package types

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNetworkOptions(t *testing.T) {
	assert := assert.New(t)

	doc := `{
		"container_id": "6ce776ff58d9",
		"container_name": "web",
		"port_mappings": [
			{"host_ip": "127.0.0.1", "host_port": 8080, "container_port": 80, "protocol": "tcp"}
		],
		"network_info": {
			"podman": {
				"driver": "bridge",
				"network_interface": "podman0",
				"subnets": [{"subnet": "10.88.0.0/24", "gateway": "10.88.0.1"}]
			}
		},
		"networks": {
			"podman": {"static_ips": ["10.88.0.5"], "interface_name": "eth0"}
		}
	}`

	opts, err := ParseNetworkOptions([]byte(doc))
	assert.NoError(err)

	assert.Equal("6ce776ff58d9", opts.ContainerID)
	assert.Len(opts.PortMappings, 1)
	assert.Equal(uint16(8080), opts.PortMappings[0].HostPort)
	assert.Equal(uint16(80), opts.PortMappings[0].ContainerPort)
	assert.Equal("tcp", opts.PortMappings[0].Protocol)

	netInfo, ok := opts.NetworkInfo["podman"]
	assert.True(ok)
	assert.Equal("bridge", netInfo.Driver)
	assert.Equal("podman0", netInfo.NetworkInterface)
	assert.Len(netInfo.Subnets, 1)
	assert.Equal("10.88.0.0/24", netInfo.Subnets[0].Subnet.String())
	assert.True(netInfo.Subnets[0].Gateway.Equal(net.ParseIP("10.88.0.1")))

	perOpts, ok := opts.Networks["podman"]
	assert.True(ok)
	assert.Len(perOpts.StaticIPs, 1)
	assert.True(perOpts.StaticIPs[0].Equal(net.ParseIP("10.88.0.5")))
	assert.Equal("eth0", perOpts.InterfaceName)
}

func TestParseNetworkOptionsOrder(t *testing.T) {
	assert := assert.New(t)

	// Document order differs from the lexicographic order a map range
	// would tend to produce.
	doc := `{
		"container_id": "abc",
		"network_info": {
			"zebra": {"driver": "bridge"},
			"middle": {"driver": "macvlan"},
			"alpha": {"driver": "bridge"}
		},
		"networks": {"zebra": {}, "middle": {}, "alpha": {}}
	}`

	opts, err := ParseNetworkOptions([]byte(doc))
	assert.NoError(err)
	assert.Equal([]string{"zebra", "middle", "alpha"}, opts.NetworkNames())
}

func TestParseNetworkOptionsInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := ParseNetworkOptions([]byte(`{not json`))
	assert.Error(err)

	_, err = ParseNetworkOptions([]byte(`{"network_info": {"a": {"subnets": [{"subnet": "not-a-cidr"}]}}}`))
	assert.Error(err)
}

func TestLoadNetworkOptions(t *testing.T) {
	assert := assert.New(t)

	doc := `{"container_id": "abc", "network_info": {"podman": {"driver": "bridge"}}, "networks": {"podman": {}}}`

	path := filepath.Join(t.TempDir(), "options.json")
	assert.NoError(os.WriteFile(path, []byte(doc), 0644))

	opts, err := LoadNetworkOptions(path)
	assert.NoError(err)
	assert.Equal("abc", opts.ContainerID)

	_, err = LoadNetworkOptions(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(err)
}

func TestIPNetRoundTrip(t *testing.T) {
	assert := assert.New(t)

	parsed, err := ParseCIDR("10.88.0.5/24")
	assert.NoError(err)

	// The host bits are kept.
	assert.Equal("10.88.0.5/24", parsed.String())

	data, err := json.Marshal(parsed)
	assert.NoError(err)
	assert.Equal(`"10.88.0.5/24"`, string(data))

	var decoded IPNet
	assert.NoError(json.Unmarshal(data, &decoded))
	assert.Equal(parsed.String(), decoded.String())

	assert.Error(json.Unmarshal([]byte(`"10.88.0.5"`), &decoded))
	assert.Error(json.Unmarshal([]byte(`42`), &decoded))
}

func TestNetworkNamesWithoutOrder(t *testing.T) {
	assert := assert.New(t)

	// Options built in code rather than parsed have no recorded order,
	// every network must still be returned.
	opts := &NetworkOptions{
		NetworkInfo: map[string]Network{
			"a": {Driver: "bridge"},
			"b": {Driver: "macvlan"},
		},
	}
	assert.ElementsMatch([]string{"a", "b"}, opts.NetworkNames())
}
