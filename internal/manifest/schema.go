package manifest

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// The manifest document schema. Readers validate against this before
// decoding so a malformed or truncated manifest fails with a field-level
// message instead of a zero-valued struct.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["build", "artifacts"],
  "properties": {
    "build": {
      "type": "object",
      "required": ["target", "profile", "run_id", "timestamp"],
      "properties": {
        "target": {"type": "string", "minLength": 1},
        "profile": {"type": "string", "minLength": 1},
        "run_id": {"type": "string", "minLength": 1},
        "timestamp": {"type": "string", "minLength": 1}
      }
    },
    "artifacts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["package", "target", "bin", "bin_path", "sha256", "crate", "version", "crate_lock_sha256", "rust_digest"],
        "properties": {
          "package": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "bin": {"type": "string", "minLength": 1},
          "bin_path": {"type": "string", "minLength": 1},
          "sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "crate": {"type": "string", "minLength": 1},
          "version": {"type": "string", "minLength": 1},
          "crate_lock_sha256": {"type": "string"},
          "rust_digest": {"type": "string"}
        }
      }
    }
  }
}`

// ValidateSchema checks raw manifest bytes against the document schema.
func ValidateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("manifest schema violations: %s", strings.Join(msgs, "; "))
}
