package ir

// Version constants for the IR schema and engine.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// EngineVersion is the refinement engine version recorded with each run.
	EngineVersion = "0.3.0"
)
