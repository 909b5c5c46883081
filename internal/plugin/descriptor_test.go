package plugin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func stub(id string, deps ...Dependency) Descriptor {
	return Descriptor{ID: id, Deps: deps, New: func(*Context) (Plugin, error) { return Base{}, nil }}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stub("pet")))
	require.ErrorIs(t, r.Register(stub("pet")), ErrDuplicatePlugin)
	require.ErrorIs(t, r.Register(Descriptor{ID: "nobody"}), ErrInvalidDescriptor)
	require.ErrorIs(t, r.Register(stub(" ")), ErrInvalidDescriptor)

	require.NoError(t, r.Register(stub("petstate")))
	require.NoError(t, r.Register(stub("petstate/digest")))
	d, ok := r.Get("petstate/digest")
	require.True(t, ok)
	require.Equal(t, []Dependency{On("petstate")}, d.Deps)

	require.Equal(t, []string{"pet", "petstate", "petstate/digest"}, ids(r.All()))
}

func TestRegistry_NestedWithoutParentHasNoImplicitDep(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stub("orphan/child")))
	d, _ := r.Get("orphan/child")
	require.Empty(t, d.Deps)
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	require.Panics(t, func() { r.MustRegister(stub("a"), stub("a")) })
}

func TestDescriptor_Satisfies(t *testing.T) {
	pet := Descriptor{ID: "pet", Provides: []Capability{"pet", "position"}}
	require.True(t, pet.Satisfies(On("pet")))
	require.True(t, pet.Satisfies(Needs("position")))
	require.False(t, pet.Satisfies(Needs("mood")))
	require.False(t, pet.Satisfies(On("move")))
	require.Equal(t, "cap:position", Needs("position").String())
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name    string
		descs   []Descriptor
		want    []string
		wantErr bool
	}{
		{
			name:  "dependents follow dependencies",
			descs: []Descriptor{stub("idle", On("move")), stub("move", Needs("pet")), {ID: "pet", Provides: []Capability{"pet"}}},
			want:  []string{"pet", "move", "idle"},
		},
		{
			name:  "independent plugins keep discovery order",
			descs: []Descriptor{stub("clock"), stub("think"), stub("envinfo")},
			want:  []string{"clock", "think", "envinfo"},
		},
		{
			name:  "missing dependency is appended without error",
			descs: []Descriptor{stub("ghost", On("missing")), stub("x"), stub("y", On("x"))},
			want:  []string{"x", "y", "ghost"},
		},
		{
			name:  "transitively missing is not a cycle",
			descs: []Descriptor{stub("b", On("a")), stub("a", On("missing")), stub("c")},
			want:  []string{"c", "b", "a"},
		},
		{
			name:    "cycle is an error and still returns everything",
			descs:   []Descriptor{stub("a", On("b")), stub("b", On("a")), stub("c")},
			want:    []string{"c", "a", "b"},
			wantErr: true,
		},
		{
			name:    "self dependency is a cycle",
			descs:   []Descriptor{stub("loop", On("loop"))},
			want:    []string{"loop"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Order(tt.descs)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrDependencyCycle)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, ids(got))
		})
	}
}

func TestOrder_CycleNamesMembers(t *testing.T) {
	_, err := Order([]Descriptor{stub("a", On("b")), stub("b", On("a")), stub("ok")})
	require.ErrorContains(t, err, "a, b")
}

func TestOrder_RespectsDependencies(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		descs := make([]Descriptor, n)
		for i := range descs {
			id := fmt.Sprintf("p%d", i)
			var deps []Dependency
			for j := 0; j < i; j++ {
				if rapid.Float64Range(0, 1).Draw(rt, "edge") < 0.3 {
					deps = append(deps, On(fmt.Sprintf("p%d", j)))
				}
			}
			descs[i] = stub(id, deps...)
		}
		perm := rapid.Permutation(descs).Draw(rt, "discovery")

		got, err := Order(perm)
		if err != nil {
			rt.Fatalf("acyclic graph reported: %v", err)
		}
		if len(got) != n {
			rt.Fatalf("got %d plugins, want %d", len(got), n)
		}
		pos := make(map[string]int)
		for i, d := range got {
			pos[d.ID] = i
		}
		for _, d := range got {
			for _, dep := range d.Deps {
				if pos[dep.ID] >= pos[d.ID] {
					rt.Fatalf("%s ordered before its dependency %s: %v", d.ID, dep.ID, ids(got))
				}
			}
		}
	})
}
