// Package codec translates between wire bytes and registry values.
//
// Inbound messages are versioned JSON envelopes:
//
//	{"version":1,"action":"transfer","payload":{"new_owner":"<hex>"}}
//
// Decode is strict: unknown fields, missing fields, trailing data, unknown
// action tags and version mismatches are all DecodeError. The decoded Action
// is a closed set of types the registry matches exhaustively.
//
// Replies are canonical JSON, versioned identically:
//
//	{"action":"query","result":{...},"status":"ok","version":1}
//	{"error":{"kind":"NotFound","message":"..."},"status":"error","version":1}
//
// EncodeReply never fails.
package codec
