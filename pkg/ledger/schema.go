package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// atRestSchema pins the shape of the ledger file:
// policy -> "<month>/<year>" -> environment -> list of serial numbers.
const atRestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "additionalProperties": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": { "type": "string" }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://certscan.schemas.local/ledger.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(atRestSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile(schemaURL)
}

// validateAtRest checks that raw ledger bytes conform to the expected shape
// before they are trusted for dedup decisions.
func validateAtRest(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: ledger file is not valid JSON: %v", ErrLedgerIO, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: ledger file violates schema: %v", ErrLedgerIO, err)
	}
	return nil
}
