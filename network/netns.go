// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package network

import (
	"runtime"

	"github.com/containernetworking/plugins/pkg/ns"
)

// DoNetNS runs cb inside the network namespace at netNSPath. It is free from
// any call to a go routine, and it calls into runtime.LockOSThread(), meaning
// it won't be executed in a different thread than the one expected by the
// caller.
func DoNetNS(netNSPath string, cb func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	currentNS, err := ns.GetCurrentNS()
	if err != nil {
		return err
	}
	defer currentNS.Close()

	targetNS, err := ns.GetNS(netNSPath)
	if err != nil {
		return err
	}
	defer targetNS.Close()

	if err := targetNS.Set(); err != nil {
		return err
	}
	defer currentNS.Set()

	return cb()
}
