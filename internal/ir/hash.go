package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys.
// Version suffix enables future algorithm migration.
const (
	DomainReflections = "easydiffraction/reflections/v1"
	DomainJob         = "easydiffraction/job/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ReflectionKey computes the cache key for a reflection list.
// A list holds every reflection down to dMin, so it depends only on the
// space group, the six cell constants and dMin.
func ReflectionKey(spaceGroup string, cell [6]float64, dMin float64) (string, error) {
	obj := IRObject{
		"space_group": IRString(spaceGroup),
		"cell":        Floats(cell[:]),
		"d_min":       IRFloat(dMin),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReflectionKey: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainReflections, canonical), nil
}

// JobHash computes a content hash of a compiled job.
// Stored with each run so history can be grouped by identical inputs.
func JobHash(spec *JobSpec) (string, error) {
	canonical, err := MarshalCanonical(spec.Canonical())
	if err != nil {
		return "", fmt.Errorf("JobHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainJob, canonical), nil
}
