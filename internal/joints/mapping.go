// Package joints maps per-joint vectors between joint orderings.
//
// A robot has two orderings of the same twelve joints: the native one the
// engine produces while enumerating the description, and the external one
// the policy expects. An [IndexMap] is an immutable bijection from joint name
// to index; a [Remapper] permutes a [dynamo.JointVector] from one ordering to
// the other without touching the values.
package joints

import (
	"fmt"
	"sort"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// Name identifies a joint, stable across orderings.
type Name string

// IndexMap is a validated bijection from joint name onto 0..JointCount-1.
// The zero value is empty and unusable; build one with NewIndexMap or
// FromOrder.
type IndexMap struct {
	byName  map[Name]int
	byIndex [dynamo.JointCount]Name
}

// NewIndexMap validates m and copies it. It fails with ErrConfiguration when
// m is not a bijection onto 0..JointCount-1.
func NewIndexMap(m map[Name]int) (IndexMap, error) {
	if len(m) != dynamo.JointCount {
		return IndexMap{}, dynamo.Configf("index map has %d joints, want %d", len(m), dynamo.JointCount)
	}

	im := IndexMap{byName: make(map[Name]int, len(m))}
	for name, idx := range m {
		if name == "" {
			return IndexMap{}, dynamo.Configf("index map has an empty joint name")
		}
		if idx < 0 || idx >= dynamo.JointCount {
			return IndexMap{}, dynamo.Configf("joint %s index %d out of range [0,%d)", name, idx, dynamo.JointCount)
		}
		if prev := im.byIndex[idx]; prev != "" {
			return IndexMap{}, dynamo.Configf("joints %s and %s share index %d", prev, name, idx)
		}
		im.byName[name] = idx
		im.byIndex[idx] = name
	}
	return im, nil
}

// FromOrder builds an IndexMap where names[i] has index i.
func FromOrder(names []Name) (IndexMap, error) {
	m := make(map[Name]int, len(names))
	for i, n := range names {
		if _, dup := m[n]; dup {
			return IndexMap{}, dynamo.Configf("joint %s listed twice", n)
		}
		m[n] = i
	}
	return NewIndexMap(m)
}

// MustIndexMap is NewIndexMap for package-level tables known to be valid.
func MustIndexMap(m map[Name]int) IndexMap {
	im, err := NewIndexMap(m)
	if err != nil {
		panic(err)
	}
	return im
}

func (m IndexMap) Len() int { return len(m.byName) }

func (m IndexMap) Index(n Name) (int, bool) {
	i, ok := m.byName[n]
	return i, ok
}

// Name returns the joint at index i.
func (m IndexMap) Name(i int) Name {
	return m.byIndex[i]
}

// Names returns joint names in index order.
func (m IndexMap) Names() []Name {
	out := make([]Name, dynamo.JointCount)
	copy(out, m.byIndex[:])
	return out
}

// SameNames reports whether both maps cover exactly the same joints.
func (m IndexMap) SameNames(o IndexMap) bool {
	if m.Len() != o.Len() {
		return false
	}
	for n := range m.byName {
		if _, ok := o.byName[n]; !ok {
			return false
		}
	}
	return true
}

// Missing lists names present in m but absent from o, sorted.
func (m IndexMap) Missing(o IndexMap) []Name {
	var out []Name
	for n := range m.byName {
		if _, ok := o.byName[n]; !ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Vector lays out per-name values in this ordering. Every joint must have
// a value.
func (m IndexMap) Vector(values map[Name]float64) (dynamo.JointVector, error) {
	var v dynamo.JointVector
	for i, n := range m.byIndex {
		x, ok := values[n]
		if !ok {
			return v, dynamo.Configf("no value for joint %s", n)
		}
		v[i] = x
	}
	return v, nil
}

// Values is the inverse of Vector.
func (m IndexMap) Values(v dynamo.JointVector) map[Name]float64 {
	out := make(map[Name]float64, dynamo.JointCount)
	for i, n := range m.byIndex {
		out[n] = v[i]
	}
	return out
}

// Remapper permutes vectors from one ordering to another.
type Remapper struct {
	// src[k] is the source index feeding destination index k.
	src [dynamo.JointCount]int
}

// NewRemapper precomputes the permutation from -> to. The maps must share an
// identical name set; violating that is a programming error and panics.
// Callers that take maps from configuration check SameNames first.
func NewRemapper(from, to IndexMap) Remapper {
	if from.Len() != dynamo.JointCount || !from.SameNames(to) {
		panic(fmt.Sprintf("joints: remap between mismatched orderings (missing %v)", from.Missing(to)))
	}
	var r Remapper
	for n, fi := range from.byName {
		r.src[to.byName[n]] = fi
	}
	return r
}

// Apply returns v' with v'[to[name]] = v[from[name]].
func (r Remapper) Apply(v dynamo.JointVector) dynamo.JointVector {
	var out dynamo.JointVector
	for k, i := range r.src {
		out[k] = v[i]
	}
	return out
}

// Inverse returns the remapper for the opposite direction.
func (r Remapper) Inverse() Remapper {
	var inv Remapper
	for k, i := range r.src {
		inv.src[i] = k
	}
	return inv
}

// Remap is a one-shot NewRemapper(from, to).Apply(v).
func Remap(v dynamo.JointVector, from, to IndexMap) dynamo.JointVector {
	return NewRemapper(from, to).Apply(v)
}
