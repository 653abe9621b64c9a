// Package validate checks backend payloads against embedded JSON schemas
// before they are decoded. Checks are shape level only.
package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names one of the embedded schemas.
type Schema string

const (
	SearchPlan     Schema = "search_plan"
	ModelResponse  Schema = "model_response"
	SplitResponse  Schema = "split_response"
	UploadResponse Schema = "upload_response"
	MiningResult   Schema = "mining_result"
)

var allSchemas = []Schema{SearchPlan, ModelResponse, SplitResponse, UploadResponse, MiningResult}

var (
	// ErrInvalidPayload wraps every validation failure.
	ErrInvalidPayload = errors.New("invalid backend payload")

	// ErrUnknownSchema is returned for a schema name that was never compiled.
	ErrUnknownSchema = errors.New("unknown schema")
)

// Validator holds the compiled schemas. A nil Validator accepts everything.
type Validator struct {
	schemas  map[Schema]*jsonschema.Schema
	logger   *slog.Logger
	observer func(Schema)
}

// New compiles the embedded schemas. observer, if set, is called for every
// rejected payload.
func New(logger *slog.Logger, observer func(Schema)) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	v := &Validator{
		schemas:  make(map[Schema]*jsonschema.Schema, len(allSchemas)),
		logger:   logger,
		observer: observer,
	}
	for _, name := range allSchemas {
		url := string(name) + ".json"
		data, err := schemaFS.ReadFile("schemas/" + url)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}

	logger.Debug("schema validator initialized", "schemas", len(v.schemas))
	return v, nil
}

// Validate checks payload against the named schema.
func (v *Validator) Validate(name Schema, payload []byte) error {
	if v == nil {
		return nil
	}
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		v.reject(name, err)
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
	}
	if err := schema.Validate(doc); err != nil {
		v.reject(name, err)
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
	}
	return nil
}

func (v *Validator) reject(name Schema, err error) {
	v.logger.Warn("backend payload failed validation", "schema", string(name), "error", err.Error())
	if v.observer != nil {
		v.observer(name)
	}
}
