package services

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// Per-stage response schemas, JSON Schema Draft 2020-12. Embedded as
// constants to avoid filesystem dependencies. A response that fails its
// stage schema is a malformed response, never retried.

const openCodingSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["codes"],
  "properties": {
    "codes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["code"],
        "properties": {
          "code": { "type": "string", "minLength": 1 },
          "span": { "type": "string" }
        }
      }
    }
  }
}`

const filteringSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["filtering"],
  "properties": {
    "filtering": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "retain"],
        "properties": {
          "id": { "type": "integer", "minimum": 1 },
          "retain": { "type": "boolean" },
          "exclude_reason": { "type": "string" }
        }
      }
    }
  }
}`

const axialCodingSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["axial_coding"],
  "properties": {
    "axial_coding": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["axial_code", "member_ids"],
        "properties": {
          "axial_code": { "type": "string", "minLength": 1 },
          "member_ids": {
            "type": "array",
            "minItems": 1,
            "items": { "type": "integer" }
          }
        }
      }
    }
  }
}`

const selectiveCodingSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["core_category", "aggregate_concepts"],
  "properties": {
    "core_category": { "type": "string", "minLength": 1 },
    "aggregate_concepts": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["concept", "covered_axial_codes"],
        "properties": {
          "concept": { "type": "string", "minLength": 1 },
          "definition": { "type": "string" },
          "covered_axial_codes": {
            "type": "array",
            "minItems": 1,
            "items": { "type": "string" }
          }
        }
      }
    }
  }
}`

const storylineSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["storyline", "anchors"],
  "properties": {
    "storyline": { "type": "string", "minLength": 1 },
    "anchors": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["concept", "axial_codes"],
        "properties": {
          "concept": { "type": "string", "minLength": 1 },
          "axial_codes": {
            "type": "array",
            "minItems": 1,
            "items": { "type": "string" }
          }
        }
      }
    }
  }
}`

var stageSchemaSources = map[domain.Stage]string{
	domain.StageOpenCoding:      openCodingSchemaJSON,
	domain.StageFiltering:       filteringSchemaJSON,
	domain.StageAxialCoding:     axialCodingSchemaJSON,
	domain.StageSelectiveCoding: selectiveCodingSchemaJSON,
	domain.StageStoryline:       storylineSchemaJSON,
}

// compiledSchemas holds one compiled schema per stage, built at package
// init. The sources are constants, so compilation cannot fail at runtime.
var compiledSchemas = mustCompileSchemas()

func mustCompileSchemas() map[domain.Stage]*jsonschema.Schema {
	out := make(map[domain.Stage]*jsonschema.Schema, len(stageSchemaSources))
	for stage, src := range stageSchemaSources {
		c := jsonschema.NewCompiler()
		url := fmt.Sprintf("https://strata-qda.dev/schemas/%s.json", stage)

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			panic(fmt.Sprintf("unmarshal %s schema: %v", stage, err))
		}
		if err := c.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("add %s schema resource: %v", stage, err))
		}
		sch, err := c.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("compile %s schema: %v", stage, err))
		}
		out[stage] = sch
	}
	return out
}

// StageSchema returns the compiled response schema for a stage.
func StageSchema(stage domain.Stage) *jsonschema.Schema {
	return compiledSchemas[stage]
}
