package conversation

import (
	"github.com/aretw0/intake/pkg/domain"
)

// Missing returns the required fields not yet collected, in order.
// A field is collected when it holds a present value, or when every key of one
// of its satisfying groups does.
func Missing(required []string, view domain.View, satisfies map[string][][]string) []string {
	var out []string
	for _, f := range required {
		if !Satisfied(f, view, satisfies) {
			out = append(out, f)
		}
	}
	return out
}

// Satisfied reports whether a single field counts as collected.
func Satisfied(field string, view domain.View, satisfies map[string][][]string) bool {
	if present(view, field) {
		return true
	}
	for _, group := range satisfies[field] {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, k := range group {
			if !present(view, k) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func present(view domain.View, key string) bool {
	v, ok := view.Get(key)
	return ok && domain.IsPresent(v)
}
