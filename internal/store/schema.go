package store

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/amirbrooks/tasker-today/internal/model"
)

// ErrInvalidRecord marks a persisted record that does not match its schema.
var ErrInvalidRecord = errors.New("invalid record")

var (
	//go:embed schema/task.schema.json
	taskSchemaJSON string
	//go:embed schema/today.schema.json
	todaySchemaJSON string
)

var (
	taskSchema  = mustCompileSchema("task.schema.json", taskSchemaJSON)
	todaySchema = mustCompileSchema("today.schema.json", todaySchemaJSON)
)

func mustCompileSchema(url, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", url, err))
	}
	return compiler.MustCompile(url)
}

func validateTask(t model.Task) error {
	return validateAgainst(taskSchema, t)
}

// validateTodayJSON checks a raw today.json document. Legacy queues that
// stored bare task ids fail here.
func validateTodayJSON(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return validateDoc(todaySchema, doc)
}

// validateAgainst checks the JSON form of v, which is what the schema
// describes regardless of how the record was stored.
func validateAgainst(schema *jsonschema.Schema, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return validateDoc(schema, doc)
}

func validateDoc(schema *jsonschema.Schema, doc any) error {
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, schemaErrorText(err))
	}
	return nil
}

// schemaErrorText reports the first leaf cause of a schema failure.
func schemaErrorText(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
