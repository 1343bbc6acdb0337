// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkHashLength(t *testing.T) {
	assert := assert.New(t)

	for _, name := range []string{"a", "podman", "my-network", "a-very-long-network-name-that-exceeds-the-hash-size"} {
		hash := NetworkHash(name)
		assert.Len(hash, MaxHashSize)
	}
}

func TestNetworkHashStable(t *testing.T) {
	assert := assert.New(t)

	first := NetworkHash("podman")
	for i := 0; i < 10; i++ {
		assert.Equal(first, NetworkHash("podman"))
	}

	// Known digest prefix, guards against accidental algorithm changes
	// that would orphan rules installed by earlier versions.
	assert.Equal("1d8721804f16f", first)
}

func TestNetworkHashDistinct(t *testing.T) {
	assert := assert.New(t)

	assert.NotEqual(NetworkHash("podman"), NetworkHash("podman1"))
	assert.NotEqual(NetworkHash("a"), NetworkHash("b"))
}

func TestNetworkHashCharset(t *testing.T) {
	assert := assert.New(t)

	hash := NetworkHash("my-network")
	for _, c := range hash {
		legal := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		assert.True(legal, "character %q is not legal in a chain name", c)
	}
}
