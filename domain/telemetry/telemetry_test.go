package telemetry

import "testing"

func TestAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attr Attribute
		key  string
		want any
	}{
		{String("state", "responded"), "state", "responded"},
		{Int("subtasks", 3), "subtasks", 3},
		{Float64("confidence", 0.8), "confidence", 0.8},
		{Bool("degraded", true), "degraded", true},
	}
	for _, tt := range tests {
		if tt.attr.Key != tt.key || tt.attr.Value != tt.want {
			t.Errorf("attribute = %+v, want %s=%v", tt.attr, tt.key, tt.want)
		}
	}
}
