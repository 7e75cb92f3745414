package ingest

import (
	"fmt"
	"math"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// ValidateParams checks raw caller-supplied parameters against a plugin's
// schema and returns a normalized Params map with defaults applied. A
// missing required parameter, an unknown parameter, or a value that violates
// its declared type or enum fails with an INVALID_PARAMETERS error naming
// the offending key.
func ValidateParams(schema Schema, raw map[string]any) (Params, error) {
	out := make(Params, len(schema))

	for key := range raw {
		if _, ok := schema[key]; !ok {
			return nil, invalidParam(key, "parameter is not declared by this plugin")
		}
	}

	for key, spec := range schema {
		value, present := raw[key]
		if !present || value == nil {
			if spec.Required {
				return nil, invalidParam(key, "required parameter is missing")
			}
			if spec.Default != nil {
				normalized, err := normalizeValue(key, spec, spec.Default)
				if err != nil {
					return nil, err
				}
				out[key] = normalized
			}
			continue
		}

		normalized, err := normalizeValue(key, spec, value)
		if err != nil {
			return nil, err
		}
		out[key] = normalized
	}

	return out, nil
}

func normalizeValue(key string, spec ParamSpec, value any) (any, error) {
	switch spec.Type {
	case ParamString:
		s, ok := value.(string)
		if !ok {
			return nil, invalidParam(key, fmt.Sprintf("expected string, got %T", value))
		}
		return s, nil

	case ParamEnum:
		s, ok := value.(string)
		if !ok {
			return nil, invalidParam(key, fmt.Sprintf("expected string, got %T", value))
		}
		for _, allowed := range spec.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, invalidParam(key, fmt.Sprintf("value %q not in enum %v", s, spec.Enum))

	case ParamInteger:
		// JSON decoding produces float64 for all numbers; accept both.
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, invalidParam(key, fmt.Sprintf("expected integer, got %v", v))
			}
			return int(v), nil
		default:
			return nil, invalidParam(key, fmt.Sprintf("expected integer, got %T", value))
		}

	case ParamNumber:
		switch v := value.(type) {
		case int:
			return float64(v), nil
		case float64:
			return v, nil
		default:
			return nil, invalidParam(key, fmt.Sprintf("expected number, got %T", value))
		}

	case ParamBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, invalidParam(key, fmt.Sprintf("expected boolean, got %T", value))
		}
		return b, nil

	case ParamArray:
		switch v := value.(type) {
		case []string:
			return v, nil
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, invalidParam(key, fmt.Sprintf("expected array of strings, got element %T", item))
				}
				items = append(items, s)
			}
			return items, nil
		default:
			return nil, invalidParam(key, fmt.Sprintf("expected array, got %T", value))
		}

	default:
		return nil, invalidParam(key, fmt.Sprintf("unsupported parameter type %q", spec.Type))
	}
}

func invalidParam(key, detail string) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeInvalidParameters,
		fmt.Sprintf("parameter %q: %s", key, detail), domain.ErrInvalidParameters)
}
