package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const logSchemaURL = "https://clientdb.example.com/schemas/migration-log.json"

const logSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["sql", "bps", "folderMillis", "hash"],
		"properties": {
			"sql": {"type": "array", "items": {"type": "string"}},
			"bps": {"type": "boolean"},
			"folderMillis": {"type": "integer", "minimum": 0},
			"hash": {"type": "string", "minLength": 1}
		}
	}
}`

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(logSchema))
		if err != nil {
			compileErr = fmt.Errorf("decode migration log schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(logSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add migration log schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(logSchemaURL)
	})
	return compiledSchema, compileErr
}

// ParseLog validates raw JSON against the migration log schema and decodes
// it. Schema violations are reported as a *ValidationError.
func ParseLog(raw []byte) (Log, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		verr := &ValidationError{}
		verr.add("malformed JSON: %v", err)
		return nil, verr
	}
	if err := sch.Validate(inst); err != nil {
		verr := &ValidationError{}
		verr.add("%s", strings.TrimSpace(err.Error()))
		return nil, verr
	}

	var log Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("decode migration log: %w", err)
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

// Validate checks the invariants the schema cannot express. It is also used
// for logs built in code rather than parsed.
func (l Log) Validate() error {
	verr := &ValidationError{}
	if len(l) == 0 {
		verr.add("log is empty")
		return verr
	}
	for i, step := range l {
		if step.Hash == "" {
			verr.add("step %d: hash is empty", i)
		}
		if step.FolderMillis < 0 {
			verr.add("step %d: folderMillis is negative", i)
		}
	}
	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}
