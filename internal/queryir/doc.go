// Package queryir provides a small query intermediate representation for
// run-history lookups.
//
// Callers describe which runs they want (a table, a filter, an ordering
// and a limit) and a backend turns that into a concrete query:
//
//	[history filter] → [Query IR] → [SQL backend]
//
// Query and Predicate are sealed interfaces using the marker method
// pattern. Only types in this package implement them, so backends can
// switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	case And:
//	}
//
// Literal values are ir.IRValue types. Field names are checked against
// a table's column set by Validate before a backend ever sees them, so
// backends can splice field names into query text while still passing
// every literal as a parameter.
package queryir
