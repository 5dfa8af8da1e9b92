package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// nullFloat maps non-finite values to NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// floatOrNaN maps NULL back to NaN.
func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func unixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// marshalFloats encodes a float slice as a JSON array TEXT value.
func marshalFloats(vals []float64) (string, error) {
	if vals == nil {
		vals = []float64{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

func unmarshalFloats(data string) ([]float64, error) {
	var vals []float64
	if err := json.Unmarshal([]byte(data), &vals); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return vals, nil
}

func marshalStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("marshal keys: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var vals []string
	if err := json.Unmarshal([]byte(data), &vals); err != nil {
		return nil, fmt.Errorf("unmarshal keys: %w", err)
	}
	return vals, nil
}
