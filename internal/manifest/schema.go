package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zwilias/elm-json-go/internal/resolveerr"
)

//go:embed schema/application.schema.json
var applicationSchemaSource string

//go:embed schema/package.schema.json
var packageSchemaSource string

var (
	schemaOnce         sync.Once
	applicationSchema  *jsonschema.Schema
	packageSchema      *jsonschema.Schema
	schemaCompileError error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("application.schema.json", strings.NewReader(applicationSchemaSource)); err != nil {
		schemaCompileError = err
		return
	}
	if err := compiler.AddResource("package.schema.json", strings.NewReader(packageSchemaSource)); err != nil {
		schemaCompileError = err
		return
	}

	applicationSchema, schemaCompileError = compiler.Compile("application.schema.json")
	if schemaCompileError != nil {
		return
	}
	packageSchema, schemaCompileError = compiler.Compile("package.schema.json")
}

// validateSchema checks raw manifest bytes against the embedded JSON Schema
// for the given discriminator before any struct decoding happens, so a
// caller gets a MalformedManifest error with a field path rather than a Go
// zero-value silently standing in for a missing or mistyped field.
func validateSchema(kind string, data []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaCompileError != nil {
		return fmt.Errorf("internal error: compiling manifest schema: %w", schemaCompileError)
	}

	var schema *jsonschema.Schema
	switch kind {
	case "application":
		schema = applicationSchema
	case "package":
		schema = packageSchema
	default:
		return fmt.Errorf("%w: unknown manifest type %q", resolveerr.ErrMalformedManifest, kind)
	}

	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", resolveerr.ErrMalformedManifest, err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", resolveerr.ErrMalformedManifest, err)
	}
	return nil
}
