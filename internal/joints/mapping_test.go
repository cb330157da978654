package joints

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/quadsim/internal/dynamo"
)

func nativeGo1(t *testing.T) IndexMap {
	t.Helper()
	m, err := FromOrder(Go1DescriptionOrder)
	require.NoError(t, err)
	return m
}

func TestNewIndexMap_Rejects(t *testing.T) {
	t.Parallel()

	copyExternal := func() map[Name]int {
		m := make(map[Name]int, len(Go1External))
		for k, v := range Go1External {
			m[k] = v
		}
		return m
	}

	tests := []struct {
		name   string
		mutate func(map[Name]int)
	}{
		{"too few joints", func(m map[Name]int) { delete(m, FRHip) }},
		{"too many joints", func(m map[Name]int) { m["extra_joint"] = 3 }},
		{"duplicate index", func(m map[Name]int) { m[FRHip] = m[FLHip] }},
		{"negative index", func(m map[Name]int) { m[FRHip] = -1 }},
		{"index past end", func(m map[Name]int) { m[FRHip] = 12 }},
		{"empty name", func(m map[Name]int) { delete(m, FRHip); m[""] = 1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := copyExternal()
			tt.mutate(m)
			_, err := NewIndexMap(m)
			assert.ErrorIs(t, err, dynamo.ErrConfiguration)
		})
	}
}

func TestFromOrder_Duplicate(t *testing.T) {
	names := append([]Name{}, Go1DescriptionOrder...)
	names[5] = names[0]
	_, err := FromOrder(names)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestRemap_Permutation(t *testing.T) {
	ext := MustIndexMap(Go1External)
	native := nativeGo1(t)

	var v dynamo.JointVector
	for n, i := range Go1External {
		// Tag each slot with its native index so the permutation is visible.
		ni, _ := native.Index(n)
		v[i] = float64(ni)
	}

	out := Remap(v, ext, native)
	for i := range out {
		assert.Equal(t, float64(i), out[i], "native slot %d (%s)", i, native.Name(i))
	}
}

func TestRemap_RoundTrip(t *testing.T) {
	ext := MustIndexMap(Go1External)
	native := nativeGo1(t)
	toNative := NewRemapper(ext, native)
	toExternal := toNative.Inverse()

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 100; trial++ {
		var v dynamo.JointVector
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		back := toExternal.Apply(toNative.Apply(v))
		if diff := cmp.Diff(v, back); diff != "" {
			t.Fatalf("round trip changed vector (-want +got):\n%s", diff)
		}
		assert.Equal(t, back, Remap(Remap(v, ext, native), native, ext))
	}
}

func TestRemap_Identity(t *testing.T) {
	ext := MustIndexMap(Go1External)
	v := dynamo.JointVector{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	assert.Equal(t, v, Remap(v, ext, ext))
}

func TestNewRemapper_MismatchPanics(t *testing.T) {
	ext := MustIndexMap(Go1External)
	other := make(map[Name]int, len(Go1External))
	for k, v := range Go1External {
		other[k] = v
	}
	delete(other, RLCalf)
	other["tail_joint"] = Go1External[RLCalf]
	mismatched := MustIndexMap(other)

	assert.False(t, ext.SameNames(mismatched))
	assert.Equal(t, []Name{RLCalf}, ext.Missing(mismatched))
	assert.Panics(t, func() { NewRemapper(ext, mismatched) })
}

func TestIndexMap_VectorValues(t *testing.T) {
	native := nativeGo1(t)
	v, err := native.Vector(Go1Standing)
	require.NoError(t, err)

	assert.Equal(t, -0.1, v[0], "FR hip leads the description order")
	assert.Equal(t, 0.8, v[1])
	assert.Equal(t, -1.5, v[2])
	assert.Equal(t, Go1Standing, native.Values(v))

	partial := map[Name]float64{FRHip: 0}
	_, err = native.Vector(partial)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestLinkNameAndLeg(t *testing.T) {
	assert.Equal(t, "FR_hip", LinkName(FRHip))
	assert.Equal(t, "RL_calf", LinkName(RLCalf))
	assert.Equal(t, "RR", Leg(RRThigh))
}
