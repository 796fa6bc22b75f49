package template

import (
	"encoding/json"
	"fmt"
)

// stringifyFallback handles composite values (maps, slices) by rendering
// them as JSON, so a template referencing a structured trigger payload still
// produces something readable.
func stringifyFallback(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	return string(data)
}
