// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encoder = newEncMode()
	decoder = newDecMode()
)

func newEncMode() cbor.EncMode {
	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	options.TextMarshaler = cbor.TextMarshalerTextString
	mode, err := options.EncMode()
	if err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}
	return mode
}

// newDecMode configures decoding of files calltally did not necessarily
// write itself, such as an archive handed to import.
func newDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 16,
		IndefLength:     cbor.IndefLengthForbidden,
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}
	return mode
}

// Marshal encodes v deterministically: equal values give equal bytes.
func Marshal(v any) ([]byte, error) {
	return encoder.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are skipped; duplicate
// map keys and indefinite-length items are rejected.
func Unmarshal(data []byte, v any) error {
	return decoder.Unmarshal(data, v)
}

// Diagnose renders data in CBOR diagnostic notation for debugging.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
