// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func TestOpenMissingFile(t *testing.T) {
	registry, err := Open(filepath.Join(t.TempDir(), "chats.txt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if registry.Len() != 0 {
		t.Errorf("Len = %d, want 0", registry.Len())
	}
}

func TestAddRemovePersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.txt")
	registry, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, chatID := range []string{"!a:example.org", "!b:example.org", "!c:example.org"} {
		added, err := registry.Add(chatID)
		if err != nil || !added {
			t.Fatalf("Add(%q) = %v, %v", chatID, added, err)
		}
	}
	added, err := registry.Add("!a:example.org")
	if err != nil || added {
		t.Errorf("duplicate Add = %v, %v; want false, nil", added, err)
	}

	removed, err := registry.Remove("!b:example.org")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = registry.Remove("!missing:example.org")
	if err != nil || removed {
		t.Errorf("Remove of absent chat = %v, %v; want false, nil", removed, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "!a:example.org\n!c:example.org\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := reopened.List(), []string{"!a:example.org", "!c:example.org"}; !slices.Equal(got, want) {
		t.Errorf("reopened List = %v, want %v", got, want)
	}
	if !reopened.Contains("!c:example.org") || reopened.Contains("!b:example.org") {
		t.Error("reopened Contains disagrees with the saved set")
	}
}

func TestOpenSkipsCommentsAndDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.txt")
	content := "# seeded by hand\n\n!a:example.org\n  !b:example.org  \n!a:example.org\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	registry, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := registry.List(), []string{"!a:example.org", "!b:example.org"}; !slices.Equal(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	registry, _ := Open("")
	for _, chatID := range []string{"", "   ", "!a\n!b"} {
		if _, err := registry.Add(chatID); err == nil {
			t.Errorf("Add(%q) succeeded", chatID)
		}
	}
}

func TestAddRollsBackOnWriteFailure(t *testing.T) {
	registry, err := Open(filepath.Join(t.TempDir(), "missing", "chats.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := registry.Add("!a:example.org"); err == nil {
		t.Fatal("Add into a missing directory succeeded")
	}
	if registry.Contains("!a:example.org") || registry.Len() != 0 {
		t.Error("failed Add left the chat registered")
	}
}

func TestListIsACopy(t *testing.T) {
	registry, _ := Open("")
	registry.Add("!a:example.org")
	list := registry.List()
	list[0] = "!mutated:example.org"
	if !registry.Contains("!a:example.org") {
		t.Error("mutating List result changed the registry")
	}
}

func TestConcurrentAdd(t *testing.T) {
	registry, err := Open(filepath.Join(t.TempDir(), "chats.txt"))
	if err != nil {
		t.Fatal(err)
	}
	var wait sync.WaitGroup
	for range 8 {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for _, chatID := range []string{"!a:x", "!b:x", "!c:x"} {
				if _, err := registry.Add(chatID); err != nil {
					t.Errorf("Add: %v", err)
				}
			}
		}()
	}
	wait.Wait()
	if registry.Len() != 3 {
		t.Errorf("Len = %d, want 3", registry.Len())
	}
}
