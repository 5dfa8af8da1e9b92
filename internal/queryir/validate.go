package queryir

import (
	"fmt"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// Schema lists the columns each table exposes to queries.
type Schema map[string][]string

// Validate checks every table and field name in q against schema and
// every literal for a usable type. Returns all problems found.
func Validate(q Query, schema Schema) []error {
	v := &validator{schema: schema}
	v.validateQuery(q)
	return v.errs
}

type validator struct {
	schema Schema
	cols   []string
	errs   []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	var sel Select
	switch query := q.(type) {
	case Select:
		sel = query
	case *Select:
		if query == nil {
			v.addError("nil query")
			return
		}
		sel = *query
	case nil:
		v.addError("nil query")
		return
	default:
		v.addError("unknown query type: %T", q)
		return
	}

	cols, ok := v.schema[sel.From]
	if !ok {
		v.addError("unknown table %q", sel.From)
		return
	}
	v.cols = cols

	if len(sel.Columns) == 0 {
		v.addError("select from %q needs an explicit column list", sel.From)
	}
	for _, c := range sel.Columns {
		v.checkField(c)
	}
	for _, o := range sel.OrderBy {
		v.checkField(o.Field)
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) checkField(field string) {
	if !slices.Contains(v.cols, field) {
		v.addError("unknown field %q", field)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.checkField(pred.Field)
		v.checkValue(pred.Field, pred.Value)
	case Compare:
		v.checkField(pred.Field)
		v.checkValue(pred.Field, pred.Value)
		switch pred.Op {
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		default:
			v.addError("field %q: unknown operator %q", pred.Field, pred.Op)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) checkValue(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRFloat, ir.IRBool:
	default:
		v.addError("field %q: unsupported value type %T", field, val)
	}
}
