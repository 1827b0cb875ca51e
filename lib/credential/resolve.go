// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"fmt"
	"os"
	"strings"
)

// Source says where to find the access token.
type Source struct {
	// EnvVar names an environment variable. Checked first.
	EnvVar string

	// File is an age-encrypted token file, used when EnvVar is unset or
	// empty. IdentityFile decrypts it.
	File         string
	IdentityFile string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Resolve loads the token from the first configured source that has
// one. The caller must Close the result.
func Resolve(source Source) (*Token, error) {
	lookup := source.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if source.EnvVar != "" {
		if value, ok := lookup(source.EnvVar); ok && strings.TrimSpace(value) != "" {
			return NewToken([]byte(strings.TrimSpace(value)))
		}
	}

	if source.File == "" {
		if source.EnvVar != "" {
			return nil, fmt.Errorf("credential: %s is not set and no token file is configured", source.EnvVar)
		}
		return nil, fmt.Errorf("credential: no token source configured")
	}
	if source.IdentityFile == "" {
		return nil, fmt.Errorf("credential: token file %s needs an identity file", source.File)
	}

	ciphertext, err := os.ReadFile(source.File)
	if err != nil {
		return nil, fmt.Errorf("credential: reading token file: %w", err)
	}
	identity, err := os.ReadFile(source.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("credential: reading identity file: %w", err)
	}
	defer zero(identity)
	return Unseal(ciphertext, identity)
}
