package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	reflectschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StructuredSchema is the wire contract paired with one structured provider call.
// Definition is a JSON Schema document; Version moves with the prompt template.
type StructuredSchema struct {
	Name        string
	Version     string
	Description string
	Definition  map[string]any

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

func NewSchema(name, version, description string, definition map[string]any) *StructuredSchema {
	return &StructuredSchema{Name: name, Version: version, Description: description, Definition: definition}
}

// SchemaFor reflects a closed schema from a Go type.
func SchemaFor[T any](name, version, description string) *StructuredSchema {
	r := &reflectschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	var v T
	s := r.Reflect(v)
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("reflect schema %s: %v", name, err))
	}
	var def map[string]any
	if err := json.Unmarshal(b, &def); err != nil {
		panic(fmt.Sprintf("reflect schema %s: %v", name, err))
	}
	// the provider-side schema dialects reject meta keywords
	delete(def, "$schema")
	delete(def, "$id")
	return NewSchema(name, version, description, def)
}

// Closed reports whether the root object rejects unknown fields.
func (s *StructuredSchema) Closed() bool {
	v, ok := s.Definition["additionalProperties"].(bool)
	return ok && !v
}

// JSON renders the definition for prompts and provider requests.
func (s *StructuredSchema) JSON() string {
	b, err := json.Marshal(s.Definition)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (s *StructuredSchema) compile() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		b, err := json.Marshal(s.Definition)
		if err != nil {
			s.err = fmt.Errorf("marshal schema %s: %w", s.Name, err)
			return
		}
		url := fmt.Sprintf("mem://schemas/%s/%s.json", s.Name, s.Version)
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			s.err = fmt.Errorf("add schema %s: %w", s.Name, err)
			return
		}
		s.compiled, s.err = c.Compile(url)
	})
	return s.compiled, s.err
}
