// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry keeps the set of chats that receive scheduled
// reports.
//
// The set is persisted as a text file with one chat ID per line, in
// registration order. Every mutation rewrites the file atomically via
// [atomicfile.Write], so a crash leaves either the old or the new set on
// disk. Blank lines and lines starting with '#' are ignored on load,
// which lets an operator seed the file by hand.
package registry

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/bureau-foundation/calltally/lib/atomicfile"
)

// Registry is a durable, ordered set of chat IDs. Safe for concurrent
// use.
type Registry struct {
	path string

	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

// Open loads the registry at path. A missing file is an empty registry.
// An empty path keeps the registry in memory only.
func Open(path string) (*Registry, error) {
	registry := &Registry{path: path, index: make(map[string]struct{})}
	if path == "" {
		return registry, nil
	}

	data, err := atomicfile.ReadOptional(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", path, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		registry.insertLocked(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("registry: parsing %s: %w", path, err)
	}
	return registry, nil
}

// Path returns the backing file, or "" for an in-memory registry.
func (r *Registry) Path() string {
	return r.path
}

// Add registers chatID. Returns true when the chat was not already
// present. On a persistence failure the in-memory set is left
// unchanged.
func (r *Registry) Add(chatID string) (bool, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || strings.ContainsAny(chatID, "\r\n") {
		return false, fmt.Errorf("registry: invalid chat ID %q", chatID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[chatID]; exists {
		return false, nil
	}
	r.insertLocked(chatID)
	if err := r.saveLocked(); err != nil {
		r.removeLocked(chatID)
		return false, err
	}
	return true, nil
}

// Remove unregisters chatID. Returns true when the chat was present.
func (r *Registry) Remove(chatID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	position := r.positionLocked(chatID)
	if position < 0 {
		return false, nil
	}
	r.removeLocked(chatID)
	if err := r.saveLocked(); err != nil {
		r.order = append(r.order[:position], append([]string{chatID}, r.order[position:]...)...)
		r.index[chatID] = struct{}{}
		return false, err
	}
	return true, nil
}

// Contains reports whether chatID is registered.
func (r *Registry) Contains(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.index[chatID]
	return exists
}

// List returns a copy of the registered chat IDs in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered chats.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) insertLocked(chatID string) {
	if _, exists := r.index[chatID]; exists {
		return
	}
	r.index[chatID] = struct{}{}
	r.order = append(r.order, chatID)
}

func (r *Registry) removeLocked(chatID string) {
	position := r.positionLocked(chatID)
	if position < 0 {
		return
	}
	delete(r.index, chatID)
	r.order = append(r.order[:position], r.order[position+1:]...)
}

func (r *Registry) positionLocked(chatID string) int {
	if _, exists := r.index[chatID]; !exists {
		return -1
	}
	for position, candidate := range r.order {
		if candidate == chatID {
			return position
		}
	}
	return -1
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	var buffer bytes.Buffer
	for _, chatID := range r.order {
		buffer.WriteString(chatID)
		buffer.WriteByte('\n')
	}
	if err := atomicfile.Write(r.path, buffer.Bytes(), 0600); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return nil
}
