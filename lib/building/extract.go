// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package building

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Extractor recognizes a building code in free-form message text.
// Implementations must not panic; unrecognized input returns false.
type Extractor interface {
	Extract(text string) (Code, bool)
}

// codePattern matches a prefix, optional separators, and one or two
// digits. The trailing word boundary is checked separately because RE2's
// \b only understands ASCII word characters.
var codePattern = regexp.MustCompile(`(?:uk|ук)[\s\x{00A0}\-_]*(\d{1,2})`)

// RegexExtractor is the default [Extractor].
type RegexExtractor struct{}

// Extract returns the first building code mentioned in text.
func (RegexExtractor) Extract(text string) (code Code, ok bool) {
	defer func() {
		if recover() != nil {
			code, ok = 0, false
		}
	}()

	lowered := strings.ToLower(text)
	for _, match := range codePattern.FindAllStringSubmatchIndex(lowered, -1) {
		end := match[1]
		if !boundaryAt(lowered, end) {
			continue
		}
		number, err := strconv.Atoi(lowered[match[2]:match[3]])
		if err != nil {
			return 0, false
		}
		candidate := Code(number)
		if !candidate.Valid() {
			return 0, false
		}
		return candidate, true
	}
	return 0, false
}

// Extract runs the default extractor.
func Extract(text string) (Code, bool) {
	return RegexExtractor{}.Extract(text)
}

// boundaryAt reports whether position is the end of a word: end of text,
// or followed by a rune that is not a letter, digit or underscore.
func boundaryAt(text string, position int) bool {
	if position >= len(text) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(text[position:])
	return !(unicode.IsLetter(next) || unicode.IsDigit(next) || next == '_')
}
