package summary

import (
	"encoding/json"
	"testing"
)

func TestTreeBlobRoundTrip(t *testing.T) {
	tree := NewTree()

	type record struct {
		Routes []string `json:"routes"`
	}

	if err := tree.AddBlob("gc_tree", record{Routes: []string{"/a", "/b"}}); err != nil {
		t.Fatalf("AddBlob failed: %v", err)
	}

	var got record
	if err := tree.Decode("gc_tree", &got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got.Routes) != 2 || got.Routes[0] != "/a" {
		t.Errorf("Decoded = %+v, want routes [/a /b]", got)
	}
}

func TestTreeHandles(t *testing.T) {
	tree := NewTree()
	tree.AddHandle("gc_tombstones")
	tree.AddRawBlob("gc_deleted", []byte(`["/x"]`))

	if !tree.IsHandle("gc_tombstones") {
		t.Error("gc_tombstones should be a handle")
	}
	if tree.IsHandle("gc_deleted") {
		t.Error("gc_deleted should not be a handle")
	}
	if _, ok := tree.Blob("gc_tombstones"); ok {
		t.Error("Blob() on a handle should report false")
	}

	fresh, reused := tree.Counts()
	if fresh != 1 || reused != 1 {
		t.Errorf("Counts = (%d, %d), want (1, 1)", fresh, reused)
	}
}

func TestTreeKeysByPrefix(t *testing.T) {
	tree := NewTree()
	tree.AddRawBlob("gc_tree_1", []byte(`{}`))
	tree.AddRawBlob("gc_tree_0", []byte(`{}`))
	tree.AddRawBlob("gc_deleted", []byte(`[]`))

	keys := tree.KeysByPrefix("gc_tree")
	if len(keys) != 2 || keys[0] != "gc_tree_0" || keys[1] != "gc_tree_1" {
		t.Errorf("KeysByPrefix = %v, want [gc_tree_0 gc_tree_1]", keys)
	}
}

func TestTreeJSONStable(t *testing.T) {
	tree := NewTree()
	tree.AddRawBlob("gc_metadata", []byte(`{"gcVersion":4}`))

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back Tree
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.Has("gc_metadata") || back.IsHandle("gc_metadata") {
		t.Errorf("round-tripped tree lost gc_metadata blob: %+v", back)
	}
}
