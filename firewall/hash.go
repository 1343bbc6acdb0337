// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package firewall

import (
	"crypto/sha512"
	"encoding/hex"
)

// MaxHashSize is the fixed length of a network rule handle. It keeps chain
// names within the iptables chain name limit once the backend prefixes are
// added.
const MaxHashSize = 13

// NetworkHash derives the rule handle for a network name: a deterministic,
// fixed-length string using only characters legal in chain names. Teardown
// and concurrent invocations recompute the identical handle from the name
// alone, no shared storage is involved. Collisions between distinct names
// are not prevented, only made improbable by the underlying digest.
func NetworkHash(name string) string {
	sum := sha512.Sum512([]byte(name))
	return hex.EncodeToString(sum[:])[:MaxHashSize]
}
