// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// LoadNetworkOptions reads and decodes the network options document at path.
// The document key order of "network_info" is preserved so that networks are
// processed in the order the caller listed them.
func LoadNetworkOptions(path string) (*NetworkOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	opts, err := ParseNetworkOptions(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load network options from %s: %v", path, err)
	}
	return opts, nil
}

// ParseNetworkOptions decodes a network options document.
func ParseNetworkOptions(data []byte) (*NetworkOptions, error) {
	opts := new(NetworkOptions)
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, err
	}

	order, err := networkInfoKeyOrder(data)
	if err != nil {
		return nil, err
	}
	opts.networkOrder = order

	if len(order) != len(opts.NetworkInfo) {
		return nil, fmt.Errorf("duplicate network names in network_info")
	}

	return opts, nil
}

// networkInfoKeyOrder re-reads the document with a token decoder to recover
// the order of the "network_info" object keys, which encoding/json drops
// when unmarshalling into a map.
func networkInfoKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	// Enter the top level object.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in options document", keyTok)
		}

		if key != "network_info" {
			// Skip the value of this key entirely.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		openTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := openTok.(json.Delim); !ok || delim != '{' {
			// null or a non-object value, nothing to order.
			return nil, nil
		}

		var names []string
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			name, ok := nameTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v in network_info", nameTok)
			}
			names = append(names, name)

			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
		return names, nil
	}

	return nil, nil
}
