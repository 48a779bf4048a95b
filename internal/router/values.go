package router

import (
	"encoding/json"
	"fmt"
)

// formatValue renders a parameter value as text for query strings and
// command-line arguments. Objects and arrays are rendered as JSON.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
