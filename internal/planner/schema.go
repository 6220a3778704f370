package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed response_schema.json
var responseSchemaJSON string

var (
	compileOnce    sync.Once
	responseSchema *jsonschema.Schema
	compileErr     error
)

// ResponseSchema returns the compiled JSON Schema for oracle planning
// responses.
func ResponseSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("response_schema.json", strings.NewReader(responseSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("response_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile response schema: %w", err)
			return
		}
		responseSchema = schema
	})
	return responseSchema, compileErr
}

// validateResponseDocument validates the provided JSON bytes against the
// response schema.
func validateResponseDocument(data []byte) error {
	schema, err := ResponseSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
