// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Token holds a secret in an anonymous mmap region. It must not be
// copied. Reading a closed Token panics.
type Token struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewToken copies source into protected memory and zeroes source.
func NewToken(source []byte) (*Token, error) {
	if len(source) == 0 {
		return nil, errors.New("credential: token is empty")
	}

	data, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("credential: mmap failed: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("credential: mlock failed: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("credential: madvise(MADV_DONTDUMP) failed: %w", err)
	}

	copy(data, source)
	zero(source)
	return &Token{data: data}, nil
}

// String returns a heap copy of the token for API boundaries that need
// a string, such as an Authorization header.
func (t *Token) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		panic("credential: read from closed token")
	}
	return string(t.data)
}

// Len returns the token length in bytes.
func (t *Token) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}

// Close zeroes, unlocks and unmaps the token. Idempotent.
func (t *Token) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	zero(t.data)
	var firstError error
	if err := unix.Munlock(t.data); err != nil {
		firstError = fmt.Errorf("credential: munlock failed: %w", err)
	}
	if err := unix.Munmap(t.data); err != nil && firstError == nil {
		firstError = fmt.Errorf("credential: munmap failed: %w", err)
	}
	t.data = nil
	return firstError
}

func zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
