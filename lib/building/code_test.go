// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package building

import "testing"

func TestAllOrdered(t *testing.T) {
	codes := All()
	if len(codes) != Count {
		t.Fatalf("len(All()) = %d, want %d", len(codes), Count)
	}
	for index, code := range codes {
		if code.Index() != index {
			t.Errorf("All()[%d].Index() = %d", index, code.Index())
		}
		if index > 0 && codes[index-1] >= code {
			t.Errorf("All() not ascending at %d: %v >= %v", index, codes[index-1], code)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Code
		wantErr bool
	}{
		{"UK7", 7, false},
		{"uk14", 14, false},
		{"УК1", 1, false},
		{" 3 ", 3, false},
		{"UK15", 0, true},
		{"UK0", 0, true},
		{"UK", 0, true},
		{"UK1 and UK2", 0, true},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			code, err := Parse(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %d, want error", test.input, code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", test.input, err)
			}
			if code != test.want {
				t.Errorf("Parse(%q) = %d, want %d", test.input, code, test.want)
			}
		})
	}
}

func TestCodeTextRoundTrip(t *testing.T) {
	for _, code := range All() {
		text, err := code.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", code, err)
		}
		var decoded Code
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if decoded != code {
			t.Errorf("round trip %d -> %q -> %d", code, text, decoded)
		}
	}

	if _, err := Code(0).MarshalText(); err == nil {
		t.Error("MarshalText(0) succeeded, want error")
	}
}

func TestIndexPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Index on invalid code did not panic")
		}
	}()
	_ = Code(Count + 1).Index()
}
