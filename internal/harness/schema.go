package harness

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

var schema struct {
	once sync.Once
	ctx  *cue.Context
	def  cue.Value
	err  error
}

// loadSchema compiles the embedded scenario schema once per process.
func loadSchema() (*cue.Context, cue.Value, error) {
	schema.once.Do(func() {
		schema.ctx = cuecontext.New()
		v := schema.ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schema.err = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		schema.def = v.LookupPath(cue.ParsePath("#Scenario"))
	})
	return schema.ctx, schema.def, schema.err
}

// SchemaError reports where a scenario document violates the schema.
type SchemaError struct {
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s", e.Message)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Message)
}

// ValidateSchema checks a scenario YAML document against the #Scenario
// definition. Only the structure is checked; references between kinds and
// steps are checked by Validate.
func ValidateSchema(data []byte) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return &SchemaError{Message: "empty scenario document"}
	}

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return formatSchemaError(err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return formatSchemaError(err)
	}
	return nil
}

// formatSchemaError keeps the first CUE error with its value path.
func formatSchemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &SchemaError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}
