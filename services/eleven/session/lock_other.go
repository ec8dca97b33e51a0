// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !unix

package session

// acquireLock degrades to a no-op where flock(2) is unavailable; the
// atomic rename still protects readers in the same filesystem.
func acquireLock(path string, exclusive bool) (func(), error) {
	return func() {}, nil
}
