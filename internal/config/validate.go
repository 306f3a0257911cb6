package config

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed scoring.schema.json
var scoringSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func scoringSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(scoringSchemaJSON))
	})
	return schema, schemaErr
}

type messageKey struct {
	kind  string
	field string
}

// schemaMessages rewrites validator output into something a profile author
// can act on. "*" matches any field.
var schemaMessages = map[messageKey]string{
	{"additional_property_not_allowed", "(root)"}:     "unknown top-level key; expected weights, thresholds, fallback_weight or disabled",
	{"additional_property_not_allowed", "thresholds"}: "only platinum, gold and silver are allowed",
	{"required", "thresholds"}:                        "platinum, gold and silver must all be set",
	{"invalid_type", "weights"}:                       "must be a map of assessor id to weight",
	{"invalid_type", "disabled"}:                      "must be a list of assessor ids",
	{"invalid_type", "*"}:                             "has the wrong type",
	{"number_gte", "*"}:                               "is below the minimum",
	{"number_lte", "*"}:                               "is above the maximum",
	{"number_gt", "fallback_weight"}:                  "must be greater than 0",
	{"unique", "disabled"}:                            "lists an assessor more than once",
	{"string_gte", "*"}:                               "must not be empty",
}

func describe(kind, field, fallback string) string {
	if msg, ok := schemaMessages[messageKey{kind, field}]; ok {
		return msg
	}
	if msg, ok := schemaMessages[messageKey{kind, "*"}]; ok {
		return msg
	}
	return fallback
}

// validateSchema returns one message per offending field
func validateSchema(doc []byte) (map[string]string, error) {
	s, err := scoringSchema()
	if err != nil {
		return nil, fmt.Errorf("load scoring schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate scoring profile: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	fields := make(map[string]string, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if _, seen := fields[field]; seen {
			continue
		}
		fields[field] = describe(desc.Type(), field, desc.Description())
	}
	return fields, nil
}
