// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads calltally's configuration file.
//
// Configuration comes from a single file named by the CALLTALLY_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery and no search path. Files ending
// in .json or .jsonc are accepted as well as YAML; comments and
// trailing commas are stripped with tidwall/jsonc before parsing.
//
// The file may carry development and production sections that override
// base values when [Config].Environment matches.
//
// ${HOME}, ${CALLTALLY_STATE} and ${VAR:-default} are expanded in path
// fields after loading. No other environment variable overrides a
// config value; the Matrix access token is read from the environment
// variable the file names, optionally seeded from a .env file by
// [Config.LoadEnvFile].
package config
