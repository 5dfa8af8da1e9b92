package compiler

import (
	"cuelang.org/go/cue"
)

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", fieldError(field+"."+name, fv, "a string")
	}
	return s, nil
}

func optionalString(v cue.Value, name, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", fieldError(field+"."+name, fv, "a string")
	}
	return s, nil
}

func requiredFloat(v cue.Value, name, field string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, fieldError(field+"."+name, fv, "a number")
	}
	return f, nil
}

func optionalFloat(v cue.Value, name, field string, def float64) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return def, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, fieldError(field+"."+name, fv, "a number")
	}
	return f, nil
}

func optionalInt(v cue.Value, name, field string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, fieldError(field+"."+name, fv, "an integer")
	}
	return int(n), nil
}

func floatList(v cue.Value, field string) ([]float64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fieldError(field, v, "a list of numbers")
	}
	var out []float64
	for iter.Next() {
		f, err := iter.Value().Float64()
		if err != nil {
			return nil, fieldError(field, iter.Value(), "a number")
		}
		out = append(out, f)
	}
	return out, nil
}

func floatPairs(v cue.Value, field string) ([][2]float64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fieldError(field, v, "a list of [a, b] pairs")
	}
	var out [][2]float64
	for iter.Next() {
		pair, err := floatList(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		if len(pair) != 2 {
			return nil, &CompileError{Field: field, Message: "each entry must be a [a, b] pair", Pos: iter.Value().Pos()}
		}
		out = append(out, [2]float64{pair[0], pair[1]})
	}
	return out, nil
}
