package crystal

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// System is a crystal system.
type System string

const (
	Triclinic    System = "triclinic"
	Monoclinic   System = "monoclinic"
	Orthorhombic System = "orthorhombic"
	Tetragonal   System = "tetragonal"
	Trigonal     System = "trigonal"
	Hexagonal    System = "hexagonal"
	Cubic        System = "cubic"
)

// HKL is a set of Miller indices.
type HKL [3]int

// SpaceGroup is an expanded, read-only space group.
type SpaceGroup struct {
	Name   string
	Number int
	// Ops holds every operator including centering translations.
	// Ops[0] is the identity.
	Ops []SymOp

	laue []SymOp
}

// System returns the crystal system implied by the group number.
func (g *SpaceGroup) System() System {
	switch n := g.Number; {
	case n <= 2:
		return Triclinic
	case n <= 15:
		return Monoclinic
	case n <= 74:
		return Orthorhombic
	case n <= 142:
		return Tetragonal
	case n <= 167:
		return Trigonal
	case n <= 194:
		return Hexagonal
	default:
		return Cubic
	}
}

// Orbit returns the Laue-equivalent reflections of h, sorted descending.
// Friedel pairs are included.
func (g *SpaceGroup) Orbit(h HKL) []HKL {
	seen := make(map[HKL]bool, 2*len(g.laue))
	var orbit []HKL
	for _, op := range g.laue {
		e := op.TransformHKL(h)
		if !seen[e] {
			seen[e] = true
			orbit = append(orbit, e)
		}
	}
	slices.SortFunc(orbit, func(a, b HKL) int { return -compareHKL(a, b) })
	return orbit
}

// Representative returns the lexicographically largest member of h's
// orbit and the orbit size.
func (g *SpaceGroup) Representative(h HKL) (HKL, int) {
	orbit := g.Orbit(h)
	return orbit[0], len(orbit)
}

// IsAbsent reports whether h is systematically absent: some operator
// leaves h invariant while its translation shifts the phase by a
// non-integer amount.
func (g *SpaceGroup) IsAbsent(h HKL) bool {
	for _, op := range g.Ops {
		if op.TransformHKL(h) == h && op.PhaseShift(h) != 0 {
			return true
		}
	}
	return false
}

func compareHKL(a, b HKL) int {
	for i := range 3 {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

type groupDef struct {
	name       string
	number     int
	aliases    []string
	generators []string
}

// Generators follow the standard settings of International Tables Vol. A
// (unique axis b, origin choice 1, hexagonal axes for R groups).
var groupDefs = []groupDef{
	{"P 1", 1, nil, nil},
	{"P -1", 2, nil, []string{"-x,-y,-z"}},
	{"P 21/c", 14, []string{"P 1 21/c 1"}, []string{"-x,y+1/2,-z+1/2", "-x,-y,-z"}},
	{"C 2/c", 15, []string{"C 1 2/c 1"}, []string{"-x,y,-z+1/2", "-x,-y,-z", "x+1/2,y+1/2,z"}},
	{"P 21 21 21", 19, nil, []string{"-x+1/2,-y,z+1/2", "-x,y+1/2,-z+1/2"}},
	{"P m m m", 47, nil, []string{"-x,-y,z", "-x,y,-z", "-x,-y,-z"}},
	{"P n m a", 62, nil, []string{"-x+1/2,-y,z+1/2", "-x,y+1/2,-z", "-x,-y,-z"}},
	{"P 4/m m m", 123, nil, []string{"-y,x,z", "x,-y,-z", "-x,-y,-z"}},
	{"I 4/m m m", 139, nil, []string{"-y,x,z", "x,-y,-z", "-x,-y,-z", "x+1/2,y+1/2,z+1/2"}},
	{"R -3 m", 166, []string{"R -3 m :H"}, []string{"-y,x-y,z", "y,x,-z", "-x,-y,-z", "x+2/3,y+1/3,z+1/3"}},
	{"P 6/m m m", 191, nil, []string{"x-y,x,z", "y,x,-z", "-x,-y,-z"}},
	{"P 63/m m c", 194, nil, []string{"x-y,x,z+1/2", "y,x,-z", "-x,-y,-z"}},
	{"P m -3 m", 221, nil, []string{"z,x,y", "-y,x,z", "-x,-y,-z"}},
	{"F m -3 m", 225, nil, []string{"z,x,y", "-y,x,z", "-x,-y,-z", "x,y+1/2,z+1/2", "x+1/2,y,z+1/2"}},
	{"I m -3 m", 229, nil, []string{"z,x,y", "-y,x,z", "-x,-y,-z", "x+1/2,y+1/2,z+1/2"}},
}

var (
	tableOnce sync.Once
	table     map[string]*SpaceGroup
	tableList []*SpaceGroup
)

func loadTable() {
	table = make(map[string]*SpaceGroup)
	for _, def := range groupDefs {
		sg := expand(def)
		tableList = append(tableList, sg)
		table[normalizeName(def.name)] = sg
		for _, alias := range def.aliases {
			table[normalizeName(alias)] = sg
		}
	}
}

// expand closes the generator set under composition.
func expand(def groupDef) *SpaceGroup {
	gens := make([]SymOp, len(def.generators))
	for i, s := range def.generators {
		gens[i] = MustParseSymOp(s)
	}

	ops := []SymOp{Identity}
	seen := map[SymOp]bool{Identity: true}
	for i := 0; i < len(ops); i++ {
		for _, g := range gens {
			c := ops[i].Compose(g)
			if !seen[c] {
				seen[c] = true
				ops = append(ops, c)
			}
		}
	}

	// Laue class: distinct rotations plus their negatives.
	var laue []SymOp
	rots := make(map[[3][3]int]bool)
	for _, op := range ops {
		for _, sign := range []int{1, -1} {
			var r [3][3]int
			for i := range 3 {
				for j := range 3 {
					r[i][j] = sign * op.R[i][j]
				}
			}
			if !rots[r] {
				rots[r] = true
				laue = append(laue, SymOp{R: r})
			}
		}
	}

	return &SpaceGroup{Name: def.name, Number: def.number, Ops: ops, laue: laue}
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), ""))
}

// LookupSpaceGroup finds a group by Hermann–Mauguin name. Spaces and case
// are ignored, so "Pm-3m" and "P m -3 m" are the same group.
func LookupSpaceGroup(name string) (*SpaceGroup, error) {
	tableOnce.Do(loadTable)
	sg, ok := table[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("unknown space group %q", name)
	}
	return sg, nil
}

// SpaceGroups returns every group in the table in number order.
func SpaceGroups() []*SpaceGroup {
	tableOnce.Do(loadTable)
	return slices.Clone(tableList)
}
