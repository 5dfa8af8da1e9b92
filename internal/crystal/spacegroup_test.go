package crystal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymOp(t *testing.T) {
	op, err := ParseSymOp("x-y, x, z+1/2")
	require.NoError(t, err)
	assert.Equal(t, [3][3]int{{1, -1, 0}, {1, 0, 0}, {0, 0, 1}}, op.R)
	assert.Equal(t, [3]int{0, 0, 6}, op.T)

	op, err = ParseSymOp("-x+2/3,1/3+y,-z-1/3")
	require.NoError(t, err)
	assert.Equal(t, [3]int{8, 4, 8}, op.T)
}

func TestParseSymOpRejects(t *testing.T) {
	for _, s := range []string{"x,y", "x,y,w", "x+1/5,y,z", "x,y,-", "x,y,z+1/0"} {
		_, err := ParseSymOp(s)
		assert.Error(t, err, s)
	}
}

func TestSymOpCompose(t *testing.T) {
	screw := MustParseSymOp("-x,y+1/2,-z")
	twice := screw.Compose(screw)
	// A 2₁ screw applied twice is a full lattice translation.
	assert.Equal(t, Identity, twice)
}

func TestSymOpApplyWraps(t *testing.T) {
	op := MustParseSymOp("-x,-y+1/2,z+1/2")
	got := op.Apply([3]float64{0.25, 0.75, 0.75})
	assert.InDeltaSlice(t, []float64{0.75, 0.75, 0.25}, got[:], 1e-12)
}

func TestSpaceGroupOrders(t *testing.T) {
	tests := []struct {
		name   string
		order  int
		system System
	}{
		{"P 1", 1, Triclinic},
		{"P -1", 2, Triclinic},
		{"P 21/c", 4, Monoclinic},
		{"C 2/c", 8, Monoclinic},
		{"P 21 21 21", 4, Orthorhombic},
		{"P m m m", 8, Orthorhombic},
		{"P n m a", 8, Orthorhombic},
		{"P 4/m m m", 16, Tetragonal},
		{"I 4/m m m", 32, Tetragonal},
		{"R -3 m", 36, Trigonal},
		{"P 6/m m m", 24, Hexagonal},
		{"P 63/m m c", 24, Hexagonal},
		{"P m -3 m", 48, Cubic},
		{"F m -3 m", 192, Cubic},
		{"I m -3 m", 96, Cubic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg, err := LookupSpaceGroup(tt.name)
			require.NoError(t, err)
			assert.Len(t, sg.Ops, tt.order)
			assert.Equal(t, tt.system, sg.System())
			assert.Equal(t, Identity, sg.Ops[0])
		})
	}
}

func TestLookupSpaceGroupNormalizesName(t *testing.T) {
	a, err := LookupSpaceGroup("Pm-3m")
	require.NoError(t, err)
	b, err := LookupSpaceGroup("p m -3 m")
	require.NoError(t, err)
	assert.Same(t, a, b)

	alias, err := LookupSpaceGroup("P 1 21/c 1")
	require.NoError(t, err)
	assert.Equal(t, "P 21/c", alias.Name)

	_, err = LookupSpaceGroup("P 42/n n m")
	assert.Error(t, err)
}

func TestSpaceGroupsSortedByNumber(t *testing.T) {
	groups := SpaceGroups()
	require.NotEmpty(t, groups)
	for i := 1; i < len(groups); i++ {
		assert.Less(t, groups[i-1].Number, groups[i].Number)
	}
}

func TestSystematicAbsences(t *testing.T) {
	tests := []struct {
		group  string
		hkl    HKL
		absent bool
	}{
		{"P m -3 m", HKL{1, 0, 0}, false},
		{"I m -3 m", HKL{1, 0, 0}, true},
		{"I m -3 m", HKL{1, 1, 0}, false},
		{"F m -3 m", HKL{1, 1, 0}, true},
		{"F m -3 m", HKL{1, 1, 1}, false},
		{"F m -3 m", HKL{2, 0, 0}, false},
		{"P 21/c", HKL{0, 1, 0}, true},
		{"P 21/c", HKL{0, 2, 0}, false},
		{"P 21/c", HKL{1, 0, 1}, true},
		{"P 21/c", HKL{1, 0, 2}, false},
		{"P 63/m m c", HKL{0, 0, 1}, true},
		{"P 63/m m c", HKL{0, 0, 2}, false},
		{"R -3 m", HKL{1, 0, 0}, true},
		{"R -3 m", HKL{1, 0, 1}, false},
		{"P 1", HKL{0, 0, 1}, false},
	}

	for _, tt := range tests {
		sg, err := LookupSpaceGroup(tt.group)
		require.NoError(t, err)
		assert.Equal(t, tt.absent, sg.IsAbsent(tt.hkl), "%s %v", tt.group, tt.hkl)
	}
}

func TestLaueMultiplicity(t *testing.T) {
	tests := []struct {
		group string
		hkl   HKL
		rep   HKL
		mult  int
	}{
		{"P m -3 m", HKL{1, 0, 0}, HKL{1, 0, 0}, 6},
		{"P m -3 m", HKL{0, -1, 1}, HKL{1, 1, 0}, 12},
		{"P m -3 m", HKL{1, 1, 1}, HKL{1, 1, 1}, 8},
		{"P m -3 m", HKL{1, 2, 3}, HKL{3, 2, 1}, 48},
		{"P 1", HKL{1, 2, 3}, HKL{1, 2, 3}, 2},
		{"P 1", HKL{-1, 2, 3}, HKL{1, -2, -3}, 2},
		{"P 4/m m m", HKL{0, 0, 1}, HKL{0, 0, 1}, 2},
		{"P 4/m m m", HKL{1, 0, 0}, HKL{1, 0, 0}, 4},
		{"P 6/m m m", HKL{1, 0, 0}, HKL{1, 0, 0}, 6},
	}

	for _, tt := range tests {
		sg, err := LookupSpaceGroup(tt.group)
		require.NoError(t, err)
		rep, mult := sg.Representative(tt.hkl)
		assert.Equal(t, tt.rep, rep, "%s %v", tt.group, tt.hkl)
		assert.Equal(t, tt.mult, mult, "%s %v", tt.group, tt.hkl)
	}
}
