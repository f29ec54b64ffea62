// Package schema provides typing for conversation context fields.
//
// LLMs report the same fact in many shapes: a caller saying the dog is secured may
// arrive as true, "yes" or "Yes". A Schema maps field names to types and coerces
// incoming values into the declared type so that presence checks and case records
// see a single representation.
//
// Basic usage:
//
//	s, err := schema.ParseTypeMap(map[string]string{
//	    "animal_contained": "bool",
//	    "animal_weight":    "number",
//	})
//
//	clean, err := s.Coerce(map[string]any{"animal_contained": "yes"})
//	// clean["animal_contained"] == true
//
// Fields not declared in the schema pass through untouched. Values that cannot be
// coerced are left out of the result and reported as an *AggregateError.
package schema
