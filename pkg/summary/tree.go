// Package summary models the GC fragment of a container summary: a flat
// tree of named entries, each either a fresh blob or a handle referencing
// the same entry in the previously acknowledged summary. Handles are how
// incremental summaries stay small as the graph grows.
package summary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates summary tree entries.
type Kind string

const (
	// KindBlob is a fresh blob carrying serialized data.
	KindBlob Kind = "blob"

	// KindHandle references the entry with the same key in the previous
	// acknowledged summary instead of re-uploading identical data.
	KindHandle Kind = "handle"
)

// Entry is one named node in the summary tree.
type Entry struct {
	Kind Kind `json:"kind"`

	// Data holds the serialized blob contents. Set only for KindBlob.
	Data json.RawMessage `json:"data,omitempty"`
}

// Tree is the GC summary fragment produced by Summarize and consumed at
// container load.
type Tree struct {
	Entries map[string]Entry `json:"entries"`
}

// NewTree returns an empty summary tree.
func NewTree() *Tree {
	return &Tree{Entries: make(map[string]Entry)}
}

// AddBlob JSON-encodes v and stores it as a fresh blob under key.
func (t *Tree) AddBlob(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode summary blob %q: %w", key, err)
	}
	t.Entries[key] = Entry{Kind: KindBlob, Data: data}
	return nil
}

// AddRawBlob stores already-serialized data as a fresh blob under key.
func (t *Tree) AddRawBlob(key string, data []byte) {
	t.Entries[key] = Entry{Kind: KindBlob, Data: json.RawMessage(data)}
}

// AddHandle stores a handle under key, referencing the same key in the
// previous acknowledged summary.
func (t *Tree) AddHandle(key string) {
	t.Entries[key] = Entry{Kind: KindHandle}
}

// Has reports whether key is present.
func (t *Tree) Has(key string) bool {
	_, ok := t.Entries[key]
	return ok
}

// IsHandle reports whether the entry under key is a handle.
func (t *Tree) IsHandle(key string) bool {
	e, ok := t.Entries[key]
	return ok && e.Kind == KindHandle
}

// Blob returns the raw blob data under key. False when the key is absent
// or is a handle.
func (t *Tree) Blob(key string) (json.RawMessage, bool) {
	e, ok := t.Entries[key]
	if !ok || e.Kind != KindBlob {
		return nil, false
	}
	return e.Data, true
}

// Decode JSON-decodes the blob under key into v.
func (t *Tree) Decode(key string, v any) error {
	data, ok := t.Blob(key)
	if !ok {
		return fmt.Errorf("summary blob %q not present", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode summary blob %q: %w", key, err)
	}
	return nil
}

// Keys returns all entry keys, sorted.
func (t *Tree) Keys() []string {
	keys := make([]string, 0, len(t.Entries))
	for key := range t.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// KeysByPrefix returns the sorted entry keys starting with prefix.
func (t *Tree) KeysByPrefix(prefix string) []string {
	var keys []string
	for key := range t.Entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Counts returns how many entries are fresh blobs versus handles.
func (t *Tree) Counts() (fresh, reused int) {
	for _, e := range t.Entries {
		if e.Kind == KindHandle {
			reused++
		} else {
			fresh++
		}
	}
	return fresh, reused
}
