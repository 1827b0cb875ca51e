// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package building

import (
	"fmt"
	"strconv"
	"strings"
)

// Count is the number of tracked buildings.
const Count = 14

// Code identifies one tracked building. Valid codes are 1..Count; the
// zero value is not a valid code.
type Code int

// Valid reports whether c is within 1..Count.
func (c Code) Valid() bool {
	return c >= 1 && c <= Count
}

// Index returns the zero-based position of c in [All]. Panics on an
// invalid code: callers obtain codes from Parse, Extract or All.
func (c Code) Index() int {
	if !c.Valid() {
		panic(fmt.Sprintf("building: invalid code %d", int(c)))
	}
	return int(c) - 1
}

// String returns the display label, e.g. "UK7".
func (c Code) String() string {
	return "UK" + strconv.Itoa(int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("building: invalid code %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse parses a canonical label ("UK7", "uk7", "УК7") or a bare number
// ("7"). Unlike Extract it requires the whole input to be a code.
func Parse(label string) (Code, error) {
	trimmed := strings.TrimSpace(strings.ToLower(label))
	for _, prefix := range []string{"uk", "ук"} {
		if strings.HasPrefix(trimmed, prefix) {
			trimmed = trimmed[len(prefix):]
			break
		}
	}
	number, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("building: invalid code %q", label)
	}
	code := Code(number)
	if !code.Valid() {
		return 0, fmt.Errorf("building: code %q out of range 1-%d", label, Count)
	}
	return code, nil
}

// All returns every valid code in ascending order.
func All() []Code {
	codes := make([]Code, Count)
	for index := range codes {
		codes[index] = Code(index + 1)
	}
	return codes
}
