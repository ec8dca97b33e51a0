// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package credentials resolves the API key and keeps it sealed in
// memory.
//
// Resolution order: ELEVEN_API_KEY, then XAI_API_KEY, then the macOS
// Keychain. The key is returned as a memguard enclave so it stays
// encrypted in process memory until the moment a client needs it.
package credentials

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/awnumar/memguard"
)

// Environment variables checked before the keychain.
const (
	EnvKey       = "ELEVEN_API_KEY"
	EnvKeyLegacy = "XAI_API_KEY"
)

// Keychain coordinates for the stored key.
const (
	keychainService = "eleven-term"
	keychainAccount = "xai-api-key"
)

// ErrNoCredentials means no API key could be found anywhere.
var ErrNoCredentials = errors.New("no API key found; set " + EnvKey + " or store one in the keychain")

// Resolve locates the API key and seals it.
//
// Outputs:
//   - *memguard.Enclave holding the key; open it only at the point of
//     use and destroy the buffer immediately after.
//   - error: ErrNoCredentials when nothing is configured.
func Resolve() (*memguard.Enclave, error) {
	for _, env := range []string{EnvKey, EnvKeyLegacy} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return memguard.NewEnclave([]byte(v)), nil
		}
	}

	if key, ok := fromKeychain(); ok {
		return memguard.NewEnclave([]byte(key)), nil
	}
	return nil, ErrNoCredentials
}

// StoreInKeychain saves the key in the macOS Keychain, replacing any
// previous entry. Only available on darwin.
func StoreInKeychain(key string) error {
	if runtime.GOOS != "darwin" {
		return errors.New("keychain storage is only available on macOS")
	}
	// -U updates an existing item instead of failing.
	cmd := exec.Command("security", "add-generic-password",
		"-s", keychainService, "-a", keychainAccount, "-w", key, "-U")
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.New("keychain write failed: " + strings.TrimSpace(string(out)))
	}
	return nil
}

func fromKeychain() (string, bool) {
	if runtime.GOOS != "darwin" {
		return "", false
	}
	out, err := exec.Command("security", "find-generic-password",
		"-s", keychainService, "-a", keychainAccount, "-w").Output()
	if err != nil {
		return "", false
	}
	key := strings.TrimSpace(string(out))
	return key, key != ""
}
