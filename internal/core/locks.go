package core

import (
	"sort"
	"sync"
)

// keyedMutex serialises writers per document key within the process. Entries
// are reference counted and dropped when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is held and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockAll takes every distinct key in sorted order so that two callers
// locking overlapping sets cannot deadlock.
func (k *keyedMutex) LockAll(keys []string) func() {
	uniq := make(map[string]struct{}, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := uniq[key]; dup {
			continue
		}
		uniq[key] = struct{}{}
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)
	releases := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		releases = append(releases, k.Lock(key))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

// size reports live entries; used by tests to check cleanup.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func lockKey(tenant, kind, id string) string {
	return tenant + "/" + kind + "/" + id
}
