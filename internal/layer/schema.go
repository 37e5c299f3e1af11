package layer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"keebie/internal/docstore"
)

const schemaURL = "keebie://schema/layer.json"

// layerSchema describes a layer document: every binding is a string, vars
// maps names to strings and leds lists codes or LED_* names.
const layerSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "vars": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "leds": {
      "type": "array",
      "items": {
        "oneOf": [
          {"type": "integer", "minimum": 0, "maximum": 15},
          {"type": "string", "minLength": 1}
        ]
      }
    }
  },
  "additionalProperties": {"type": "string"}
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(layerSchema)); err != nil {
			compileErr = fmt.Errorf("add layer schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Validate checks doc against the layer schema.
func Validate(doc docstore.Document) error {
	s, err := schema()
	if err != nil {
		return err
	}
	return s.Validate(map[string]any(doc))
}
