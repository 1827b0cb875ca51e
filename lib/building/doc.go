// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package building defines the fixed set of tracked building codes
// (UK1 through UK14) and the extractor that recognizes them in free-form
// chat text.
//
// [Code] is a small integer type with a total order by number. [All]
// returns every code in ascending order and is the canonical iteration
// order for snapshots and reports.
//
// [Extractor] is the recognition contract. [RegexExtractor] is the
// default implementation: it accepts the Latin prefix "UK" or the
// Cyrillic "УК" in any case, optionally followed by whitespace, hyphens
// or underscores, then one or two digits. The first occurrence in the
// text wins. Values outside 1..14 are rejected rather than clamped.
//
// This package depends on no other calltally packages.
package building
