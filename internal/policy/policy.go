// Package policy loads registry limits from a CUE file.
//
// A policy file looks like:
//
//	limits: {
//		max_records:    10000
//		max_attributes: 32
//	}
//	gas_limit: 1000000
//
// Every field is optional; omitted fields take the schema defaults, which
// match registry.DefaultLimits.
package policy

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/idreg/internal/registry"
)

//go:embed schema.cue
var schemaCUE string

// Policy is a validated limits policy.
type Policy struct {
	Limits   registry.Limits `json:"limits"`
	GasLimit uint64          `json:"gas_limit"`
}

// Error is a policy validation error with the offending position.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() Policy {
	p, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("policy schema defaults do not validate: %v", err))
	}
	return p
}

// Load reads and validates the policy file at path.
func Load(path string) (Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src against the schema. filename is used in error positions.
func Parse(filename string, src []byte) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy schema: %w", err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Policy{}, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Policy{}, formatCUEError(err)
	}

	var p Policy
	if err := unified.Decode(&p); err != nil {
		return Policy{}, formatCUEError(err)
	}
	return p, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	e := &Error{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
