package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const descriptionSchemaURL = "map_description.schema.json"

//go:embed map_description.schema.json
var descriptionSchema string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileDescriptionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(descriptionSchemaURL, strings.NewReader(descriptionSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(descriptionSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ValidateDescription checks a YAML map description against the
// description schema. Structure is checked here; names and ids are
// resolved when the map is built.
func ValidateDescription(raw []byte) error {
	schema, err := compileDescriptionSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse map description: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	// The validator expects the value shapes produced by encoding/json.
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("parse map description: %w", err)
	}
	var payload any
	if err := json.Unmarshal(js, &payload); err != nil {
		return fmt.Errorf("parse map description: %w", err)
	}

	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid map description: %w", err)
	}
	return nil
}
