package schema

import "sort"

// Schema is a map of field names to their expected types.
type Schema map[string]Type

// Coerce returns a copy of data where every declared field has been converted to
// its type. Undeclared fields and nil values pass through unchanged. Fields that
// fail coercion are omitted from the result and reported in an *AggregateError;
// the returned map is always usable.
func (s Schema) Coerce(data map[string]any) (map[string]any, error) {
	if len(data) == 0 {
		return data, nil
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(data))
	var errs []error
	for _, key := range keys {
		value := data[key]
		fieldType, ok := s[key]
		if !ok || value == nil {
			out[key] = value
			continue
		}
		coerced, err := fieldType.Coerce(value)
		if err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
			continue
		}
		out[key] = coerced
	}

	if len(errs) > 0 {
		return out, &AggregateError{Errors: errs}
	}
	return out, nil
}
