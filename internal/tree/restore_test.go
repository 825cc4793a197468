package tree

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
	"github.com/roach88/statetree/internal/testutil"
)

func buildFolders(t *testing.T) (*Tree, route.Snapshot) {
	t.Helper()
	ctx := context.Background()
	tr, root := startTree(t, &folder{Name: "root", Subs: []string{"a", "b"}})
	subs, err := tr.Current(root.ID(), "subs")
	require.NoError(t, err)
	err = Update(ctx, tr, subs[0].ID, func(n *folder) error {
		n.Subs = []string{"x"}
		return nil
	})
	require.NoError(t, err)

	snap, err := tr.Snapshot()
	require.NoError(t, err)
	return tr, snap
}

func TestSnapshot_CapturesTree(t *testing.T) {
	tr, snap := buildFolders(t)
	require.NoError(t, snap.Validate())

	root, err := tr.Root()
	require.NoError(t, err)
	assert.Equal(t, root.ID(), snap.Root)
	assert.Len(t, snap.Nodes, 4)
	// Every node declares subs and note.
	assert.Len(t, snap.Routes, 1+4*2)

	var state folder
	require.NoError(t, json.Unmarshal(snap.Nodes[root.ID()].State, &state))
	assert.Equal(t, "root", state.Name)
	assert.Equal(t, []string{"a", "b"}, state.Subs)
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	_, snap := buildFolders(t)
	want, err := snap.Hash()
	require.NoError(t, err)

	// Round-trip through JSON as a persisted snapshot would.
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var loaded route.Snapshot
	require.NoError(t, json.Unmarshal(data, &loaded))

	restored := New(&folder{}, WithIDGenerator(testutil.NewSequenceGenerator("r")))
	defer restored.Close()
	root, err := restored.Restore(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, snap.Root, root.ID())
	assert.Equal(t, Counts{NodeStarts: 4}, flush(restored))

	again, err := restored.Snapshot()
	require.NoError(t, err)
	got, err := again.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info := restored.Info()
	assert.Equal(t, 4, info.NodeCount)
	assert.Equal(t, 2, info.MaxDepth)

	// The restored tree keeps reconciling against the restored records.
	err = Update(ctx, restored, root.ID(), func(n *folder) error {
		n.Subs = []string{"b"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Counts{NodeStops: 2, NodeUpdates: 1}, flush(restored))
	subs, err := Children[*folder](restored, root.ID(), "subs")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "b", subs[0].Name)
	assert.Equal(t, "root/b", subs[0].Label)

	_, err = restored.Restore(ctx, loaded)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func emptyListSnapshot(t *testing.T) (route.Snapshot, route.FieldID) {
	t.Helper()
	tr, root := startTree(t, &listRoot{})
	snap, err := tr.Snapshot()
	require.NoError(t, err)
	return snap, route.Field(root.ID(), "children")
}

func TestRestore_ShapeMismatch(t *testing.T) {
	snap, field := emptyListSnapshot(t)
	snap.Routes[field] = route.MaybeSingle{}

	tr := newTestTree(&listRoot{})
	defer tr.Close()
	_, err := tr.Restore(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, router.IsShapeMismatch(err))
	var sm *router.ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, route.ShapeList, sm.Want)
	assert.Equal(t, route.ShapeMaybeSingle, sm.Got)
	assert.False(t, tr.Info().Started)
	assert.Equal(t, 0, tr.Info().NodeCount)
}

func TestRestore_RecordNotFound(t *testing.T) {
	snap, field := emptyListSnapshot(t)
	delete(snap.Routes, field)

	tr := newTestTree(&listRoot{})
	defer tr.Close()
	_, err := tr.Restore(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, router.IsRecordNotFound(err))
	assert.False(t, tr.Info().Started)
}

func TestRestore_DropsUndeclaredRoutes(t *testing.T) {
	ctx := context.Background()
	src, root := startTree(t, &listRoot{IDs: []int{1, 2}})
	snap, err := src.Snapshot()
	require.NoError(t, err)
	field := route.Field(root.ID(), "children")
	require.Contains(t, snap.Routes, field)

	tr := newTestTree(&item{})
	defer tr.Close()
	sc, err := tr.Restore(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, root.ID(), sc.ID())
	assert.Equal(t, 1, tr.Info().NodeCount)

	_, ok := tr.Record(field)
	assert.False(t, ok)
	rec, ok := tr.Record(route.RootField)
	require.True(t, ok)
	assert.Equal(t, snap.Routes[route.RootField], rec)

	again, err := tr.Snapshot()
	require.NoError(t, err)
	require.NoError(t, again.Validate())
	assert.Len(t, again.Routes, 1)
	assert.Len(t, again.Nodes, 1)
}

func TestRestore_InvalidSnapshot(t *testing.T) {
	snap, _ := emptyListSnapshot(t)
	delete(snap.Routes, route.RootField)

	tr := newTestTree(&listRoot{})
	defer tr.Close()
	_, err := tr.Restore(context.Background(), snap)
	assert.Error(t, err)
}

func TestSnapshot_ConcurrentCallers(t *testing.T) {
	tr, _ := buildFolders(t)

	var wg sync.WaitGroup
	hashes := make([]string, 8)
	for i := range hashes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := tr.Snapshot()
			if err != nil {
				return
			}
			hashes[i], _ = snap.Hash()
		}(i)
	}
	wg.Wait()
	for _, h := range hashes {
		assert.Equal(t, hashes[0], h)
		assert.NotEmpty(t, h)
	}
}

type custom struct {
	router.Leaf
	Value string
}

func (custom) Restore(state []byte) (router.Node, error) {
	return custom{Value: "restored:" + string(state)}, nil
}

func TestDecodeNode(t *testing.T) {
	n, err := decodeNode(&item{}, json.RawMessage(`{"id":3,"state":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, &item{ID: 3, State: "x"}, n)

	n, err = decodeNode(paneA{}, nil)
	require.NoError(t, err)
	assert.Equal(t, paneA{}, n)

	n, err = decodeNode(custom{}, json.RawMessage(`"v"`))
	require.NoError(t, err)
	assert.Equal(t, custom{Value: `restored:"v"`}, n)

	_, err = decodeNode(&item{}, json.RawMessage(`{"id":"nope"}`))
	assert.Error(t, err)
}
