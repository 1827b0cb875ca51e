// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration for the files calltally
// writes for itself: the Matrix sync position and counter archives.
// The Matrix API itself speaks JSON and does not go through here.
//
// Encoding is deterministic (RFC 8949 core deterministic encoding).
// Values implementing encoding.TextMarshaler, building.Code among them,
// are written as text, so an archive shows "UK7" rather than 7.
package codec
