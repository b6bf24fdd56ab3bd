// Package harness runs registry scenarios end to end through the host.
//
// A scenario is a YAML file listing invocations, each sent by a named
// caller, with the reply each one should produce:
//
//	name: transfer_then_update
//	description: "Ownership moves with a transfer"
//	steps:
//	  - caller: alice
//	    action: register
//	    payload: { attributes: { name: "QWxpY2U=" } }
//	  - caller: alice
//	    action: transfer
//	    payload: { new_owner: "@bob" }
//	  - caller: alice
//	    action: update
//	    payload: { subject: "@alice", attributes: {} }
//	    expect: { status: error, kind: Unauthorized }
//	assertions:
//	  - type: final_state
//	    account: alice
//	    expect: { owner: bob }
//
// Caller names map to fixed test accounts (testutil.Account). Inside a
// payload, a string of the form "@name" is replaced by that account's hex
// identifier. A step may instead carry a raw `message`, sent byte for byte,
// to exercise the decoder.
//
// # Assertion Types
//
//   - trace_contains: an action replied with the given status (and kind)
//   - trace_order: actions replied in the given order
//   - trace_count: an action replied exactly N times
//   - final_state: the stored record for an account, or its absence
//
// Independently of the assertions, every step that replies with an error
// must leave the state digest unchanged; the harness fails the scenario
// otherwise.
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory backend, a DeterministicClock and a fixed
// correlation token, so the reply trace of a scenario is byte-for-byte
// reproducible and can be compared against golden files:
//
//	go test ./internal/harness -update
package harness
