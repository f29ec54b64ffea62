package domain

import (
	"reflect"
	"testing"
)

func TestDelta(t *testing.T) {
	tests := []struct {
		name string
		old  map[string]any
		new  map[string]any
		want map[string]any
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  map[string]any{"a": 1},
			want: map[string]any{"a": 1},
		},
		{
			name: "No Changes",
			old:  map[string]any{"a": 1},
			new:  map[string]any{"a": 1},
			want: nil,
		},
		{
			name: "Modified and Added",
			old:  map[string]any{"a": 1, "b": "x"},
			new:  map[string]any{"a": 2, "b": "x", "c": true},
			want: map[string]any{"a": 2, "c": true},
		},
		{
			name: "Deleted Key",
			old:  map[string]any{"a": 1, "message": "hi"},
			new:  map[string]any{"a": 1},
			want: map[string]any{"message": nil},
		},
		{
			name: "Nested Change",
			old:  map[string]any{"d": map[string]any{"k": 1}},
			new:  map[string]any{"d": map[string]any{"k": 2}},
			want: map[string]any{"d": map[string]any{"k": 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Delta(tt.old, tt.new)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Delta() = %v, want %v", got, tt.want)
			}
		})
	}
}
