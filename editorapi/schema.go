package editorapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ggolani/streamline/errors"
)

// Request body schemas
const (
	createNodesSchema = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["parentType", "subType", "topologyComponentBundleId"],
        "properties": {
          "parentType": {"enum": ["SOURCE", "PROCESSOR", "SINK"]},
          "subType": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "topologyComponentBundleId": {"type": "integer", "minimum": 1},
          "nodeLabel": {"type": "string"},
          "x": {"type": "number"},
          "y": {"type": "number"}
        }
      }
    }
  }
}`

	createEdgeSchema = `{
  "type": "object",
  "required": ["sourceId", "targetId"],
  "properties": {
    "sourceId": {"type": "integer", "minimum": 1},
    "targetId": {"type": "integer", "minimum": 1}
  }
}`

	positionSchema = `{
  "type": "object",
  "required": ["x", "y"],
  "properties": {
    "x": {"type": "number"},
    "y": {"type": "number"}
  }
}`

	parallelismSchema = `{
  "type": "object",
  "required": ["count"],
  "properties": {
    "count": {"type": "integer", "minimum": 1}
  }
}`

	releaseSchema = `{
  "type": "object",
  "required": ["nodeId"],
  "properties": {
    "nodeId": {"type": "integer", "minimum": 1},
    "pointerDownId": {"type": "integer", "minimum": 0},
    "dragged": {"type": "boolean"},
    "click": {"enum": ["single", "double"]},
    "element": {"enum": ["rect", "circle"]}
  }
}`
)

// Validator checks request bodies against their schema
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles the request schemas
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: map[string]*gojsonschema.Schema{}}
	for name, src := range map[string]string{
		"create_nodes": createNodesSchema,
		"create_edge":  createEdgeSchema,
		"position":     positionSchema,
		"parallelism":  parallelismSchema,
		"release":      releaseSchema,
	} {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, errors.WrapFatal(err, "Validator", "NewValidator", "compile "+name+" schema")
		}
		v.schemas[name] = s
	}
	return v, nil
}

// Validate checks body against the named schema. A violation is an
// Invalid error listing every failed field.
func (v *Validator) Validate(name string, body []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return errors.WrapFatal(errors.ErrMissingConfig, "Validator", "Validate", "unknown schema "+name)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Validator", "Validate", "parse body")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(msgs, "; ")),
		"Validator", "Validate", "validate "+name)
}
