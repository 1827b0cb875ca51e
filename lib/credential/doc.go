// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential resolves the bot's Matrix access token.
//
// The token comes from an environment variable (optionally seeded from
// a .env file by the config package) or from an age-encrypted file
// decrypted with a local identity file. Either way it ends up in a
// [Token], an mlocked mapping outside the Go heap that is zeroed on
// Close.
//
// [Seal] and [GenerateIdentity] back the "token seal" and "token
// keygen" CLI commands that produce the encrypted file and identity.
package credential
