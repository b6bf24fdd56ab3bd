package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/idreg/internal/ir"
)

// Reply status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// fallbackReply is emitted when a reply cannot be encoded.
var fallbackReply = []byte(`{"error":{"kind":"Internal","message":"reply encoding failed"},"status":"error","version":1}`)

// Result is the outcome of one invocation, ready for encoding.
// Exactly one of Value or Err is meaningful: a non-nil Err makes it an
// error reply.
type Result struct {
	Action ActionKind
	Value  ir.Value
	Err    error
}

// OK builds a success result.
func OK(kind ActionKind, v ir.Value) Result {
	return Result{Action: kind, Value: v}
}

// Failed builds an error result.
func Failed(kind ActionKind, err error) Result {
	return Result{Action: kind, Err: err}
}

// EncodeReply renders r as a canonical reply. It never fails: anything that
// cannot be encoded becomes an Internal error reply.
func EncodeReply(r Result) []byte {
	var obj ir.Object
	if r.Err != nil {
		obj = errorObject(r.Err)
	} else {
		value := r.Value
		if value == nil {
			value = ir.Object{}
		}
		obj = ir.Object{
			"action":  ir.String(r.Action),
			"result":  value,
			"status":  ir.String(StatusOK),
			"version": ir.Int(ir.WireVersion),
		}
	}

	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return fallbackReply
	}
	return data
}

func errorObject(err error) ir.Object {
	kind := ir.KindOf(err)
	message := err.Error()
	detail := ir.Object{"kind": ir.String(kind)}

	var e *ir.Error
	if errors.As(err, &e) {
		message = e.Message
		if e.Account != nil {
			detail["account"] = ir.String(e.Account.String())
		}
	}
	if message == "" {
		message = string(kind)
	}
	detail["message"] = ir.String(message)

	return ir.Object{
		"error":   detail,
		"status":  ir.String(StatusError),
		"version": ir.Int(ir.WireVersion),
	}
}

// Reply is a decoded outbound message.
type Reply struct {
	Version int             `json:"version"`
	Status  string          `json:"status"`
	Action  ActionKind      `json:"action,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ReplyError     `json:"error,omitempty"`
}

// ReplyError is the error body of a failed reply.
type ReplyError struct {
	Kind    ir.ErrorKind `json:"kind"`
	Message string       `json:"message"`
	Account string       `json:"account,omitempty"`
}

// OK reports whether the reply is a success.
func (r Reply) OK() bool {
	return r.Status == StatusOK
}

// Err returns the reply's error as an *ir.Error, or nil on success.
func (r Reply) Err() error {
	if r.Error == nil {
		return nil
	}
	e := &ir.Error{Kind: r.Error.Kind, Message: r.Error.Message}
	if r.Error.Account != "" {
		if id, err := ir.ParseAccountID(r.Error.Account); err == nil {
			e.Account = &id
		}
	}
	return e
}

// DecodeReply parses reply bytes produced by EncodeReply.
func DecodeReply(raw []byte) (Reply, error) {
	var r Reply
	if err := decodeStrict(raw, &r); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	if r.Version != ir.WireVersion {
		return Reply{}, fmt.Errorf("decode reply: unsupported version %d", r.Version)
	}
	switch r.Status {
	case StatusOK:
		if len(r.Result) == 0 {
			return Reply{}, fmt.Errorf("decode reply: ok reply without result")
		}
	case StatusError:
		if r.Error == nil {
			return Reply{}, fmt.Errorf("decode reply: error reply without error body")
		}
	default:
		return Reply{}, fmt.Errorf("decode reply: unknown status %q", r.Status)
	}
	return r, nil
}
