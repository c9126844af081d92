// Package schema validates response bodies against JSON Schema files kept
// under responseSchemas/{category}/{name}_schema.json and can regenerate
// those files from a sample body.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// DefaultDir is the conventional schema root, relative to the module root.
const DefaultDir = "responseSchemas"

// Store resolves, loads, writes and applies schema files under one directory.
// It does not lock files; concurrent regeneration of one schema is a race.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the schema root.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing (category, name).
func (s *Store) Path(category, name string) string {
	return filepath.Join(s.dir, category, name+"_schema.json")
}

// Validate checks body against the stored schema. When regenerate is set the
// schema is first rebuilt from body and written to disk.
func (s *Store) Validate(category, name string, body any, regenerate bool) error {
	instance, raw, err := normalize(body)
	if err != nil {
		return fmt.Errorf("failed to encode response body: %w", err)
	}

	if regenerate {
		if err := s.write(category, name, Generate(instance)); err != nil {
			return err
		}
	}

	compiled, err := s.Load(category, name)
	if err != nil {
		return err
	}

	if err := compiled.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("schema validation of %s: %w", s.Path(category, name), err)
		}
		pretty, _ := json.MarshalIndent(instance, "", "  ")
		if len(pretty) == 0 {
			pretty = raw
		}
		return &MismatchError{
			Path:       s.Path(category, name),
			Violations: flatten(verr),
			Body:       string(pretty),
		}
	}
	return nil
}

// Generate writes a schema inferred from body, creating directories as needed.
func (s *Store) Generate(category, name string, body any) error {
	instance, _, err := normalize(body)
	if err != nil {
		return fmt.Errorf("failed to encode response body: %w", err)
	}
	return s.write(category, name, Generate(instance))
}

// Load reads and compiles the schema with format assertions enabled.
func (s *Store) Load(category, name string) (*jsonschema.Schema, error) {
	path := s.Path(category, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if !json.Valid(data) {
		var syntax any
		return nil, &LoadError{Path: path, Err: json.Unmarshal(data, &syntax)}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true
	if err := compiler.AddResource(abs, bytes.NewReader(data)); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	compiled, err := compiler.Compile(abs)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return compiled, nil
}

func (s *Store) write(category, name string, doc *Document) error {
	path := s.Path(category, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write schema %s: %w", path, err)
	}
	s.logger.Info("Schema generated", zap.String("path", path))
	return nil
}

// normalize turns any Go value into the generic shape produced by
// encoding/json so that typed structs and decoded bodies validate alike.
func normalize(body any) (any, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, err
	}
	return out, raw, nil
}

func flatten(err *jsonschema.ValidationError) []Violation {
	if len(err.Causes) == 0 {
		return []Violation{{
			InstanceLocation: err.InstanceLocation,
			KeywordLocation:  err.KeywordLocation,
			Message:          err.Message,
		}}
	}
	var out []Violation
	for _, cause := range err.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
