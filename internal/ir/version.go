package ir

// Version constants for the wire format and the persisted state layout.
const (
	// WireVersion is the version carried by every inbound and outbound envelope.
	WireVersion = 1

	// SchemaVersion is the current persisted state layout.
	SchemaVersion = 2

	// EngineVersion is the registry build version reported by the CLI.
	EngineVersion = "0.3.0"
)
