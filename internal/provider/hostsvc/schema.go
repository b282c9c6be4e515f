package hostsvc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// historicalSchema pins the wire contract for POST /data/historical: each row
// is [open_time, open, high, low, close, volume]. Validating up front turns a
// malformed payload into one classifiable data-quality error instead of
// garbage rows scattered through storage.
const historicalSchema = `{
	"type": "object",
	"required": ["rows"],
	"properties": {
		"rows": {
			"type": "array",
			"items": {
				"type": "array",
				"minItems": 6,
				"items": {"type": "number"}
			}
		}
	}
}`

var compiledHistoricalSchema = mustCompileSchema(historicalSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("historical.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("historical.json")
}

// ErrMalformedResponse wraps schema violations so callers can classify them
// as data-quality problems.
type ErrMalformedResponse struct {
	Reason string
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("malformed historical response: %s", e.Reason)
}

func validateHistoricalBody(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return &ErrMalformedResponse{Reason: err.Error()}
	}
	if err := compiledHistoricalSchema.Validate(doc); err != nil {
		return &ErrMalformedResponse{Reason: err.Error()}
	}
	return nil
}
