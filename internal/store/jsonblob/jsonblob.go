// Package jsonblob validates the free-form JSON strings the store persists
// as opaque TEXT columns (NotificationChannel.Config is the one this
// repository actually decodes; models.go's field comments mark
// App.Domains/PortMappings as opaque at the store layer too, written and
// read only by the HTTP API layer this
// repository doesn't implement). Parsing failures are validation errors,
// not storage errors: a malformed blob should never reach the code that
// assumes it decodes cleanly.
package jsonblob

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

var channelConfigSchemas = map[string]string{
	"slack":   `{"type":"object","required":["webhook_url"],"properties":{"webhook_url":{"type":"string","minLength":1}}}`,
	"discord": `{"type":"object","required":["webhook_url"],"properties":{"webhook_url":{"type":"string","minLength":1}}}`,
	"webhook": `{"type":"object","required":["url"],"properties":{"url":{"type":"string","minLength":1}}}`,
	"email":   `{"type":"object","required":["recipients"],"properties":{"recipients":{"type":"array","items":{"type":"string"},"minItems":1}}}`,
}

// ValidateChannelConfig checks a NotificationChannel's Config JSON against
// the schema for its channel type before the dispatcher decodes it into a
// concrete struct, matching spec.md §9's "persisted JSON blobs are parsed
// into strongly typed variants; parsing failures map to Validation errors"
// design note.
func ValidateChannelConfig(channelType, config string) error {
	schema, ok := channelConfigSchemas[channelType]
	if !ok {
		return fmt.Errorf("unknown channel type %q", channelType)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(config), &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(parsed),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("config does not match %s channel schema: %s", channelType, result.Errors()[0])
	}
	return nil
}
