package queryir

import "github.com/easyscience/EasyDiffractionLib/internal/ir"

// Query is the sealed interface for query nodes.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate is the sealed interface for filter conditions.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads rows from one table.
type Select struct {
	From    string    // Table name (e.g., "runs")
	Columns []string  // Explicit column list, in output order
	Filter  Predicate // WHERE conditions (nil = no filter)
	OrderBy []Order   // Primary ordering; backends append a stable tiebreaker
	Limit   int       // 0 = no limit
}

func (Select) queryNode() {}

// Order sorts by one column.
type Order struct {
	Field string
	Desc  bool
}

// Equals matches rows where Field equals Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Op is a comparison operator.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// Compare matches rows where Field Op Value holds.
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// And requires every predicate to hold (empty = always true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conj builds an And from non-nil predicates. It returns nil when none
// remain and the single predicate when only one does.
func Conj(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}
