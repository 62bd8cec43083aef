package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodoc/pkg/gc"
)

func TestDocumentAddNode(t *testing.T) {
	doc := NewDocument("doc1")

	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, []string{"app"}))
	assert.ErrorIs(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil), ErrNodeExists)

	node, ok := doc.Node("/a")
	require.True(t, ok)
	assert.True(t, node.Loaded)
	assert.Equal(t, gc.NodeTypeDataStore, node.Type)
	assert.Equal(t, []string{"app"}, node.PackagePath)
}

func TestDocumentReferenceClock(t *testing.T) {
	doc := NewDocument("doc1")

	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil))
	t0 := doc.ReferenceTimestampMs()

	// Every mutating operation advances sequenced time; reads do not.
	require.NoError(t, doc.AddReference("/a", "/b"))
	assert.Equal(t, t0+1, doc.ReferenceTimestampMs())

	_, _ = doc.Node("/a")
	assert.Equal(t, t0+1, doc.ReferenceTimestampMs())

	doc.AdvanceTime(100)
	assert.Equal(t, t0+101, doc.ReferenceTimestampMs())
}

func TestDocumentReferenceListener(t *testing.T) {
	doc := NewDocument("doc1")
	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil))

	var gotFrom, gotTo string
	doc.OnReferenceAdded(func(fromPath, toPath string) {
		gotFrom, gotTo = fromPath, toPath
		// Re-entering the document from the listener must not deadlock.
		_, _ = doc.Node(fromPath)
	})

	require.NoError(t, doc.AddReference("/a", "/missing"))
	assert.Equal(t, "/a", gotFrom)
	assert.Equal(t, "/missing", gotTo)
}

func TestDocumentUpdateListenerDeniesLoad(t *testing.T) {
	doc := NewDocument("doc1")
	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil))
	require.NoError(t, doc.UnloadNode("/a"))

	denied := errors.New("denied")
	doc.OnNodeUpdated(func(path string, reason gc.UpdateReason, timestampMs int64, packagePath []string) error {
		assert.Equal(t, gc.ReasonLoaded, reason)
		return denied
	})

	assert.ErrorIs(t, doc.LoadNode("/a"), denied)

	node, ok := doc.Node("/a")
	require.True(t, ok)
	assert.False(t, node.Loaded, "denied load must not mark the node loaded")
}

func TestDocumentRemoveReference(t *testing.T) {
	doc := NewDocument("doc1")
	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil))
	require.NoError(t, doc.AddReference("/a", "/b"))
	require.NoError(t, doc.AddReference("/a", "/c"))

	require.NoError(t, doc.RemoveReference("/a", "/b"))
	node, _ := doc.Node("/a")
	assert.Equal(t, []string{"/c"}, node.Routes)

	// Removing a missing route is a no-op.
	require.NoError(t, doc.RemoveReference("/a", "/b"))
}

func TestDocumentGCData(t *testing.T) {
	doc := NewDocument("doc1")
	require.NoError(t, doc.AddNode("/root", gc.NodeTypeDataStore, nil))
	require.NoError(t, doc.AddRoot("/root"))
	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil))
	require.NoError(t, doc.AddReference("/root", "/a"))
	require.NoError(t, doc.UnloadNode("/a"))

	// Plain runs only see loaded nodes.
	data := doc.gcData(false)
	assert.Equal(t, []string{"/root"}, data.Roots)
	_, ok := data.Nodes["/a"]
	assert.False(t, ok)

	// Full GC realizes every node.
	data = doc.gcData(true)
	_, ok = data.Nodes["/a"]
	assert.True(t, ok)
}

func TestDocumentClose(t *testing.T) {
	doc := NewDocument("doc1")
	require.NoError(t, doc.AddNode("/a", gc.NodeTypeDataStore, nil))

	doc.Close(nil)
	closed, err := doc.Closed()
	assert.True(t, closed)
	assert.NoError(t, err)

	assert.ErrorIs(t, doc.AddNode("/b", gc.NodeTypeOther, nil), ErrDocumentClosed)
	assert.ErrorIs(t, doc.AddReference("/a", "/b"), ErrDocumentClosed)
	assert.ErrorIs(t, doc.LoadNode("/a"), ErrDocumentClosed)
}
