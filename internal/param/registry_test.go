package param

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

func ptr(v float64) *float64 { return &v }

func cubicParams() List {
	a := Bounded("p.cell.length_a", 5, 0, math.Inf(1), "Å")
	b := Bounded("p.cell.length_b", 5, 0, math.Inf(1), "Å")
	b.Expr = Ref{Key: a.Key}
	c := Bounded("p.cell.length_c", 5, 0, math.Inf(1), "Å")
	c.Expr = Ref{Key: a.Key}
	return List{a, b, c}
}

func TestRegistryVectorOrderFollowsInsertion(t *testing.T) {
	scale := New("e.linked_phases.p.scale", 1, "")
	zero := New("e.instrument.zero_shift", 0, "deg")

	reg, err := NewBuilder().
		Add(cubicParams(), List{scale, zero}).
		Free("e.instrument.zero_shift", nil, nil).
		Free("p.cell.length_a", ptr(4.5), ptr(5.5)).
		Free("e.linked_phases.p.scale", nil, nil).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"p.cell.length_a", "e.linked_phases.p.scale", "e.instrument.zero_shift"}, reg.FreeKeys())
	assert.Equal(t, []float64{5, 1, 0}, reg.Vector())
	assert.Equal(t, 5, reg.Len())

	lo, hi := reg.Bounds()
	assert.Equal(t, 4.5, lo[0])
	assert.Equal(t, 5.5, hi[0])
}

func TestRegistryApplyResolvesConstraints(t *testing.T) {
	reg, err := NewBuilder().Add(cubicParams()).Free("p.cell.length_a", nil, nil).Build()
	require.NoError(t, err)

	_, err = reg.Apply([]float64{5.2})
	require.NoError(t, err)

	b, _ := reg.Get("p.cell.length_b")
	c, _ := reg.Get("p.cell.length_c")
	assert.Equal(t, 5.2, b.Value)
	assert.Equal(t, 5.2, c.Value)
}

func TestRegistryApplyClampsAndReflects(t *testing.T) {
	tests := []struct {
		name string
		mode ir.BoundMode
		in   float64
		want float64
	}{
		{"clamp upper", ir.BoundClamp, 5.7, 5.5},
		{"clamp lower", ir.BoundClamp, 4.0, 4.5},
		{"reflect upper", ir.BoundReflect, 5.7, 5.3},
		{"reflect lower", ir.BoundReflect, 4.4, 4.6},
		{"reflect far", ir.BoundReflect, 9, 4.5},
		{"inside", ir.BoundReflect, 5.1, 5.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewBuilder().
				Add(cubicParams()).
				Free("p.cell.length_a", ptr(4.5), ptr(5.5)).
				WithBoundMode(tt.mode).
				Build()
			require.NoError(t, err)

			got, err := reg.Apply([]float64{tt.in})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got[0], 1e-12)
			assert.InDelta(t, tt.want, reg.Vector()[0], 1e-12)
		})
	}
}

func TestRegistryApplyWrongLength(t *testing.T) {
	reg, err := NewBuilder().Add(cubicParams()).Free("p.cell.length_a", nil, nil).Build()
	require.NoError(t, err)
	_, err = reg.Apply([]float64{1, 2})
	assert.Error(t, err)
}

func TestRegistryDeduplicatesSharedParameter(t *testing.T) {
	shared := cubicParams()
	reg, err := NewBuilder().Add(shared, shared).Build()
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryDuplicateKey(t *testing.T) {
	_, err := NewBuilder().Add(cubicParams(), cubicParams()).Build()
	require.Error(t, err)
	assert.True(t, ir.IsModelValidation(err))
}

func TestRegistryConstraintCycle(t *testing.T) {
	tests := []struct {
		name        string
		constraints map[string]string
		path        []string
	}{
		{
			name:        "two node",
			constraints: map[string]string{"x": "y + 1", "y": "x * 2"},
			path:        []string{"x", "y", "x"},
		},
		{
			name:        "self reference",
			constraints: map[string]string{"z": "z / 2"},
			path:        []string{"z", "z"},
		},
		{
			name:        "three node",
			constraints: map[string]string{"x": "z", "y": "x", "z": "y + w"},
			path:        []string{"x", "z", "y", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder().Add(List{New("w", 1, ""), New("x", 1, ""), New("y", 1, ""), New("z", 1, "")})
			for target, text := range tt.constraints {
				b.Constrain(target, text)
			}
			_, err := b.Build()
			require.Error(t, err)
			require.True(t, ir.IsConstraintCycle(err))

			var cycle *ir.ConstraintCycleError
			require.ErrorAs(t, err, &cycle)
			assert.Equal(t, tt.path, cycle.Path)
		})
	}
}

func TestRegistryChainedConstraintsResolveInOrder(t *testing.T) {
	reg, err := NewBuilder().
		Add(List{New("c", 0, ""), New("b", 0, ""), New("a", 2, "")}).
		Constrain("c", "b * 10").
		Constrain("b", "a + 1").
		Free("a", nil, nil).
		Build()
	require.NoError(t, err)

	c, _ := reg.Get("c")
	assert.Equal(t, 30.0, c.Value)

	_, err = reg.Apply([]float64{4})
	require.NoError(t, err)
	assert.Equal(t, 50.0, c.Value)
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"unknown reference", func() *Builder {
			return NewBuilder().Add(List{New("a", 1, "")}).Constrain("a", "missing.key")
		}},
		{"unknown target", func() *Builder {
			return NewBuilder().Constrain("nope", "1")
		}},
		{"unknown free", func() *Builder {
			return NewBuilder().Free("nope", nil, nil)
		}},
		{"bad expression", func() *Builder {
			return NewBuilder().Add(List{New("a", 1, "")}).Constrain("a", "a +")
		}},
		{"free and constrained", func() *Builder {
			return NewBuilder().Add(cubicParams()).Free("p.cell.length_b", nil, nil)
		}},
		{"value outside bounds", func() *Builder {
			return NewBuilder().Add(List{Bounded("occ", 1.5, 0, 1, "")})
		}},
		{"inverted bounds", func() *Builder {
			return NewBuilder().Add(List{New("a", 1, "")}).Free("a", ptr(2), ptr(1))
		}},
		{"non-finite constraint", func() *Builder {
			return NewBuilder().Add(List{New("a", 0, ""), New("b", 0, "")}).Constrain("b", "1 / a")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			require.Error(t, err)
			assert.True(t, ir.IsModelValidation(err), "got %v", err)
		})
	}
}

func TestRegistrySnapshotRestore(t *testing.T) {
	reg, err := NewBuilder().Add(cubicParams()).Free("p.cell.length_a", nil, nil).Build()
	require.NoError(t, err)

	snap := reg.Snapshot()
	_, err = reg.Apply([]float64{6})
	require.NoError(t, err)
	reg.Restore(snap)

	for _, p := range reg.Parameters() {
		assert.Equal(t, 5.0, p.Value, p.Key)
	}
}

func TestRegistrySetUncertainties(t *testing.T) {
	reg, err := NewBuilder().
		Add(List{New("a", 1, ""), New("b", 2, "")}).
		Free("a", nil, nil).
		Free("b", nil, nil).
		Build()
	require.NoError(t, err)

	reg.SetUncertainties([]float64{0.1, math.NaN()})
	a, _ := reg.Get("a")
	b, _ := reg.Get("b")
	assert.True(t, a.HasUncertainty)
	assert.Equal(t, 0.1, a.Uncertainty)
	assert.False(t, b.HasUncertainty)

	reg.SetUncertainties(nil)
	assert.False(t, a.HasUncertainty)
}
