// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package session

import (
	"os"

	"golang.org/x/sys/unix"
)

// acquireLock takes an advisory flock(2) on a sidecar lock file next
// to path. The sidecar survives atomic renames of the state file
// itself, so writers in different processes always contend on the
// same inode. Blocks until the lock is granted.
//
// Outputs:
//   - unlock: releases the lock and closes the sidecar.
//   - error: only when the sidecar cannot be opened or locked.
func acquireLock(path string, exclusive bool) (func(), error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, err
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
