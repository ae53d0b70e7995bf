package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSubsurfaceRejectsCycles(t *testing.T) {
	m := NewManager(nil)
	root := newTestSurface(t, m, 1)
	mid := newTestSurface(t, m, 2)
	leaf := newTestSurface(t, m, 3)

	require.NoError(t, m.AddSubsurface(mid, root))
	require.NoError(t, m.AddSubsurface(leaf, mid))

	assert.ErrorIs(t, m.AddSubsurface(root, leaf), ErrCycle)
	assert.ErrorIs(t, m.AddSubsurface(root, root), ErrCycle)
	assert.ErrorIs(t, m.AddSubsurface(leaf, root), ErrAlreadySubsurface)

	toplevel := newTestSurface(t, m, 4)
	require.NoError(t, toplevel.SetRole(RoleToplevel))
	assert.ErrorIs(t, m.AddSubsurface(toplevel, root), ErrRoleConflict)

	assert.Same(t, mid, leaf.Parent())
	assert.Equal(t, []*Surface{mid}, root.Children())
}

func TestSynchronizedSubsurfaceCachesState(t *testing.T) {
	m := NewManager(nil)
	parent := newTestSurface(t, m, 1)
	child := newTestSurface(t, m, 2)
	require.NoError(t, m.AddSubsurface(child, parent))
	assert.True(t, m.IsSync(child))

	first := &testBuffer{name: "first", w: 1, h: 1}
	second := &testBuffer{name: "second", w: 1, h: 1}

	child.Attach(first, 0, 0)
	child.Damage(Rect{Width: 1, Height: 1})
	m.Commit(child)
	assert.Nil(t, child.Snapshot().Buffer, "cached until the parent commits")

	child.Attach(second, 0, 0)
	child.Damage(Rect{X: 1, Width: 1, Height: 1})
	m.Commit(child)
	assert.Equal(t, 1, first.released, "superseded cached buffer is released")

	m.Commit(parent)
	cur := child.Snapshot()
	assert.Same(t, second, cur.Buffer)
	assert.Len(t, cur.Damage, 2, "cached damage accumulates")
}

func TestDesynchronizedSubsurface(t *testing.T) {
	m := NewManager(nil)
	parent := newTestSurface(t, m, 1)
	child := newTestSurface(t, m, 2)
	require.NoError(t, m.AddSubsurface(child, parent))

	buf := &testBuffer{w: 1, h: 1}
	child.Attach(buf, 0, 0)
	m.Commit(child)
	assert.Nil(t, child.Snapshot().Buffer)

	require.NoError(t, m.SetSync(child, false))
	assert.Same(t, buf, child.Snapshot().Buffer, "leaving sync mode applies the cache")

	other := &testBuffer{w: 1, h: 1}
	child.Attach(other, 0, 0)
	m.Commit(child)
	assert.Same(t, other, child.Snapshot().Buffer)

	t.Run("sync ancestor forces sync", func(t *testing.T) {
		grandchild := newTestSurface(t, m, 3)
		require.NoError(t, m.AddSubsurface(grandchild, child))
		require.NoError(t, m.SetSync(grandchild, false))
		assert.False(t, m.IsSync(grandchild))

		require.NoError(t, m.SetSync(child, true))
		assert.True(t, m.IsSync(grandchild))
	})
}

func TestPositionAppliesOnParentCommit(t *testing.T) {
	m := NewManager(nil)
	parent := newTestSurface(t, m, 1)
	child := newTestSurface(t, m, 2)
	require.NoError(t, m.AddSubsurface(child, parent))

	require.NoError(t, m.SetPosition(child, 10, 20))
	x, y := child.Position()
	assert.Zero(t, x)
	assert.Zero(t, y)

	m.Commit(parent)
	x, y = child.Position()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)

	assert.ErrorIs(t, m.SetPosition(parent, 1, 1), ErrNotSubsurface)
}

func TestRestack(t *testing.T) {
	m := NewManager(nil)
	parent := newTestSurface(t, m, 1)
	a := newTestSurface(t, m, 2)
	b := newTestSurface(t, m, 3)
	c := newTestSurface(t, m, 4)
	for _, s := range []*Surface{a, b, c} {
		require.NoError(t, m.AddSubsurface(s, parent))
	}
	assert.Equal(t, []*Surface{a, b, c}, parent.Children())

	require.NoError(t, m.PlaceAbove(a, c))
	assert.Equal(t, []*Surface{b, c, a}, parent.Children())

	require.NoError(t, m.PlaceBelow(a, b))
	assert.Equal(t, []*Surface{a, b, c}, parent.Children())

	require.NoError(t, m.PlaceBelow(c, parent))
	below, above := parent.Stack()
	assert.Equal(t, []*Surface{c}, below)
	assert.Equal(t, []*Surface{a, b}, above)

	require.NoError(t, m.PlaceAbove(c, parent))
	below, above = parent.Stack()
	assert.Empty(t, below)
	assert.Equal(t, []*Surface{c, a, b}, above)

	stranger := newTestSurface(t, m, 5)
	assert.ErrorIs(t, m.PlaceAbove(a, stranger), ErrBadSibling)
	assert.ErrorIs(t, m.PlaceAbove(a, a), ErrBadSibling)
	assert.Equal(t, []*Surface{c, a, b}, parent.Children())
}

func TestDestroyPromotesChildren(t *testing.T) {
	m := NewManager(nil)
	root := newTestSurface(t, m, 1)
	before := newTestSurface(t, m, 2)
	mid := newTestSurface(t, m, 3)
	after := newTestSurface(t, m, 4)
	leafA := newTestSurface(t, m, 5)
	leafB := newTestSurface(t, m, 6)

	require.NoError(t, m.AddSubsurface(before, root))
	require.NoError(t, m.AddSubsurface(mid, root))
	require.NoError(t, m.AddSubsurface(after, root))
	require.NoError(t, m.AddSubsurface(leafA, mid))
	require.NoError(t, m.AddSubsurface(leafB, mid))

	require.NoError(t, m.Destroy(mid.ID()))

	assert.Equal(t, []*Surface{before, leafA, leafB, after}, root.Children())
	assert.Same(t, root, leafA.Parent())
	assert.Same(t, root, leafB.Parent())
	assert.Nil(t, mid.Parent())
	assert.Empty(t, mid.Children())

	t.Run("destroying a root orphans its children", func(t *testing.T) {
		require.NoError(t, m.Destroy(root.ID()))
		assert.Nil(t, before.Parent())
		assert.False(t, m.IsSync(before))

		buf := &testBuffer{w: 1, h: 1}
		before.Attach(buf, 0, 0)
		m.Commit(before)
		assert.Same(t, buf, before.Snapshot().Buffer)
		assert.False(t, before.Mapped())
	})
}

func TestDetachSubsurface(t *testing.T) {
	m := NewManager(nil)
	parent := newTestSurface(t, m, 1)
	child := newTestSurface(t, m, 2)
	require.NoError(t, m.AddSubsurface(child, parent))

	child.Attach(&testBuffer{w: 1, h: 1}, 0, 0)
	m.Commit(child)

	m.DetachSubsurface(child)
	assert.Empty(t, parent.Children())
	assert.Nil(t, child.Parent())
	assert.Equal(t, RoleSubsurface, child.Role())

	m.Commit(parent)
	assert.Nil(t, child.Snapshot().Buffer, "cached state is dropped")

	// A new wl_subsurface may be created for the same surface
	require.NoError(t, m.AddSubsurface(child, parent))
}

func TestRegion(t *testing.T) {
	r := NewRegion(Rect{X: 0, Y: 0, Width: 10, Height: 10})
	r.Add(Rect{X: 5, Y: 5, Width: 10, Height: 10})
	assert.Equal(t, int64(175), r.Area(), "overlap counted once")

	r.Subtract(Rect{X: 2, Y: 2, Width: 2, Height: 2})
	assert.Equal(t, int64(171), r.Area())
	assert.False(t, r.Contains(3, 3))
	assert.True(t, r.Contains(1, 1))
	assert.True(t, r.Contains(14, 14))
	assert.False(t, r.Contains(15, 15))
	assert.False(t, r.Contains(12, 2))

	for i, a := range r.Rects() {
		for j, b := range r.Rects() {
			if i != j {
				_, overlap := a.Intersect(b)
				assert.False(t, overlap, "rects %v and %v overlap", a, b)
			}
		}
	}

	r.Add(Rect{Width: 0, Height: 5})
	r.Subtract(Rect{X: -100, Y: -100, Width: 1000, Height: 1000})
	assert.True(t, r.Empty())

	var nilRegion *Region
	assert.Nil(t, nilRegion.Clone())
}
