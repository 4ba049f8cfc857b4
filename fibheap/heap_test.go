package fibheap_test

import (
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/delaneyj/rekoil/fibheap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	h := fibheap.NewOrdered[int](fibheap.Min)

	handles := map[int]fibheap.Handle{}
	for _, v := range []int{5, 3, 8, 1} {
		handles[v] = h.Insert(v)
	}

	top, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, top)

	require.NoError(t, h.UpdateKey(handles[1], 9))
	top, _ = h.Peek()
	assert.Equal(t, 3, top)

	require.NoError(t, h.Delete(handles[3]))
	top, _ = h.Peek()
	assert.Equal(t, 5, top)
	assert.Equal(t, 3, h.Len())

	v, err := h.Value(handles[1])
	require.NoError(t, err)
	assert.Equal(t, 9, v, "handle survives an increase")
}

func TestEmpty(t *testing.T) {
	h := fibheap.NewOrdered[float64](fibheap.Max)

	_, ok := h.Peek()
	assert.False(t, ok)
	_, ok = h.ExtractExtreme()
	assert.False(t, ok)
	assert.Equal(t, "", h.Render())
}

func TestExtractOrder(t *testing.T) {
	for _, dir := range []fibheap.Direction{fibheap.Min, fibheap.Max} {
		t.Run(dir.String(), func(t *testing.T) {
			rnd := rand.New(rand.NewSource(42))
			h := fibheap.NewOrdered[int](dir)

			var want []int
			for i := 0; i < 500; i++ {
				v := rnd.Intn(1000)
				want = append(want, v)
				h.Insert(v)
			}
			slices.Sort(want)
			if dir == fibheap.Max {
				slices.Reverse(want)
			}

			got := make([]int, 0, len(want))
			for h.Len() > 0 {
				v, ok := h.ExtractExtreme()
				require.True(t, ok)
				got = append(got, v)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestRandomOperationsMatchModel(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	h := fibheap.NewOrdered[int](fibheap.Min)

	type entry struct {
		handle fibheap.Handle
		value  int
	}
	var live []entry

	modelMin := func() int {
		m := live[0].value
		for _, e := range live[1:] {
			m = min(m, e.value)
		}
		return m
	}

	for step := 0; step < 5000; step++ {
		switch op := rnd.Intn(10); {
		case op < 4 || len(live) == 0:
			v := rnd.Intn(10_000)
			live = append(live, entry{h.Insert(v), v})
		case op < 7:
			i := rnd.Intn(len(live))
			v := rnd.Intn(10_000)
			require.NoError(t, h.UpdateKey(live[i].handle, v))
			live[i].value = v
		case op < 9:
			i := rnd.Intn(len(live))
			require.NoError(t, h.Delete(live[i].handle))
			live = slices.Delete(live, i, i+1)
		default:
			want := modelMin()
			got, ok := h.ExtractExtreme()
			require.True(t, ok)
			require.Equal(t, want, got)
			i := slices.IndexFunc(live, func(e entry) bool {
				return e.value == want && !h.Contains(e.handle)
			})
			require.GreaterOrEqual(t, i, 0)
			live = slices.Delete(live, i, i+1)
		}

		require.Equal(t, len(live), h.Len())
		if len(live) > 0 {
			got, ok := h.Peek()
			require.True(t, ok)
			require.Equal(t, modelMin(), got, "step %d", step)
		}
	}

	for _, e := range live {
		v, err := h.Value(e.handle)
		require.NoError(t, err)
		assert.Equal(t, e.value, v)
	}
}

func TestUpdateKeyDirections(t *testing.T) {
	h := fibheap.NewOrdered[int](fibheap.Max)
	var handles []fibheap.Handle
	for i := 0; i < 32; i++ {
		handles = append(handles, h.Insert(i))
	}

	// force a consolidated forest so cuts have parents to leave
	v, _ := h.ExtractExtreme()
	assert.Equal(t, 31, v)

	require.NoError(t, h.UpdateKey(handles[3], 100))
	top, _ := h.Peek()
	assert.Equal(t, 100, top)

	require.NoError(t, h.UpdateKey(handles[3], -1))
	top, _ = h.Peek()
	assert.Equal(t, 30, top)

	for want := 30; want >= 0; want-- {
		if want == 3 {
			continue
		}
		got, _ := h.ExtractExtreme()
		require.Equal(t, want, got)
	}
	got, _ := h.ExtractExtreme()
	assert.Equal(t, -1, got)
}

func TestHandleValidation(t *testing.T) {
	a := fibheap.NewOrdered[int](fibheap.Min)
	b := fibheap.NewOrdered[int](fibheap.Min)

	ha := a.Insert(1)
	b.Insert(1)

	assert.ErrorIs(t, b.UpdateKey(ha, 0), fibheap.ErrForeignHandle)
	assert.ErrorIs(t, b.Delete(ha), fibheap.ErrForeignHandle)
	assert.ErrorIs(t, b.Delete(fibheap.Handle{}), fibheap.ErrForeignHandle)

	require.NoError(t, a.Delete(ha))
	assert.ErrorIs(t, a.Delete(ha), fibheap.ErrStaleHandle)

	// the slot is reused with a new generation
	hb := a.Insert(2)
	assert.ErrorIs(t, a.UpdateKey(ha, 3), fibheap.ErrStaleHandle)
	v, err := a.Value(hb)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	a.Clear()
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.Contains(hb))
}

func TestRender(t *testing.T) {
	h := fibheap.NewOrdered[int](fibheap.Min)
	for _, v := range []int{4, 2, 7, 1, 9} {
		h.Insert(v)
	}
	h.ExtractExtreme()

	out := h.Render()
	for _, want := range []string{"> 2", "4", "7", "9"} {
		assert.True(t, strings.Contains(out, want), "missing %q in\n%s", want, out)
	}
}
