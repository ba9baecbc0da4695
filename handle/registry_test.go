package handle_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kavionic/padoskernel/handle"
)

func TestAllocStartsAfterReserved(t *testing.T) {
	r := handle.New()
	h := r.Alloc("thread-a")
	require.GreaterOrEqual(t, uint32(h), uint32(2))
}

func TestReservedHandlesViaSet(t *testing.T) {
	r := handle.New()
	r.Set(handle.IdleThreadHandle, "idle")
	r.Set(handle.InitThreadHandle, "init")

	obj, ok := r.Get(handle.IdleThreadHandle)
	require.True(t, ok)
	require.Equal(t, "idle", obj)

	require.Panics(t, func() { r.Alloc("x"); r.Set(handle.Handle(99), "nope") })
}

func TestFreeReusesSlotButInvalidatesStaleHandle(t *testing.T) {
	r := handle.New()
	h1 := r.Alloc("obj1")
	require.True(t, r.Free(h1))
	h2 := r.Alloc("obj2")
	require.NotEqual(t, h1, h2, "a recycled slot must carry a new generation so the stale handle can't alias it")

	_, ok := r.Get(h1)
	require.False(t, ok, "a handle from before its slot was freed and reused must not resolve")

	obj2, ok := r.Get(h2)
	require.True(t, ok)
	require.Equal(t, "obj2", obj2)
}

func TestFreeThenAllocDoesNotGrowCounterUnbounded(t *testing.T) {
	r := handle.New()
	h1 := r.Alloc("obj1")
	require.True(t, r.Free(h1))
	h2 := r.Alloc("obj2")
	h3 := r.Alloc("obj3")
	require.NotEqual(t, h2, h3, "two live allocations must never share a handle")
}

func TestGetMissingHandle(t *testing.T) {
	r := handle.New()
	_, ok := r.Get(handle.Handle(12345))
	require.False(t, ok)
}

func TestFreeReservedHandleFails(t *testing.T) {
	r := handle.New()
	r.Set(handle.InitThreadHandle, "init")
	require.False(t, r.Free(handle.InitThreadHandle))
}

func TestEachVisitsAllAssigned(t *testing.T) {
	r := handle.New()
	h1 := r.Alloc("a")
	h2 := r.Alloc("b")
	seen := map[handle.Handle]any{}
	r.Each(func(h handle.Handle, obj any) { seen[h] = obj })
	require.Equal(t, "a", seen[h1])
	require.Equal(t, "b", seen[h2])
}

func TestGetNextWalksInHandleOrderSkippingFilteredOut(t *testing.T) {
	r := handle.New()
	h1 := r.Alloc("a")
	h2 := r.Alloc("b")
	h3 := r.Alloc("c")

	h, obj, ok := r.GetNext(handle.Handle(0), nil)
	require.True(t, ok)
	require.Equal(t, h1, h)
	require.Equal(t, "a", obj)

	h, obj, ok = r.GetNext(h, nil)
	require.True(t, ok)
	require.Equal(t, h2, h)
	require.Equal(t, "b", obj)

	// A filter that rejects "b" should skip straight to "c".
	h, obj, ok = r.GetNext(h1, func(_ handle.Handle, v any) bool { return v != "b" })
	require.True(t, ok)
	require.Equal(t, h3, h)
	require.Equal(t, "c", obj)

	_, _, ok = r.GetNext(h3, nil)
	require.False(t, ok, "iterating past the last handle reports no more entries")
}

func TestGetNextSkipsFreedHandles(t *testing.T) {
	r := handle.New()
	h1 := r.Alloc("a")
	h2 := r.Alloc("b")
	require.True(t, r.Free(h1))

	h, obj, ok := r.GetNext(handle.Handle(0), nil)
	require.True(t, ok)
	require.Equal(t, h2, h)
	require.Equal(t, "b", obj)
}
