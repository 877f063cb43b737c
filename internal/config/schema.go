package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError reports configuration values rejected by the schema.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "schema: " + strings.Join(e.Problems, "; ")
}

// checkSchema unifies the raw YAML document with #Config.
func checkSchema(raw map[string]any) error {
	if raw == nil {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data := ctx.Encode(raw)
	if err := data.Err(); err != nil {
		return &SchemaError{Problems: problems(err)}
	}

	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Problems: problems(err)}
	}
	return nil
}

// problems flattens a CUE error list into one message per error.
func problems(err error) []string {
	var out []string
	for _, e := range cueerrors.Errors(err) {
		out = append(out, e.Error())
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}
