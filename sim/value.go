package sim

// AsFloat coerces the numeric types that appear in token values and
// metadata into a float64. JSON-decoded numbers arrive as float64; values
// built in Go code may be any integer type.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case Tick:
		return float64(n), true
	default:
		return 0, false
	}
}

// Field looks a named field up in a map-shaped value.
func Field(value any, field string) (any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}

	v, ok := m[field]

	return v, ok
}
