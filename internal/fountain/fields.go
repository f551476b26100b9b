package fountain

// Typed accessors for parser output. Parsers emit int, float64, uint64,
// string and []byte values.

func intField(proj, key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case uint8:
		return int(n), nil
	default:
		return 0, &FieldTypeError{Projection: proj, Key: key, Want: "int", Got: v}
	}
}

func floatField(proj, key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, &FieldTypeError{Projection: proj, Key: key, Want: "float64", Got: v}
	}
}

func uint64Field(proj, key string, v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	}
	return 0, &FieldTypeError{Projection: proj, Key: key, Want: "uint64", Got: v}
}

func stringField(proj, key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &FieldTypeError{Projection: proj, Key: key, Want: "string", Got: v}
	}
	return s, nil
}

func bytesField(proj, key string, v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, &FieldTypeError{Projection: proj, Key: key, Want: "[]byte", Got: v}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}
