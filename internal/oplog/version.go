package oplog

// Version constants for the record model and detection engine.
const (
	// SchemaVersion is the record model version stored alongside operations.
	SchemaVersion = "1"

	// EngineVersion is the metaop engine version.
	EngineVersion = "0.1.0"
)
