package tool

import (
	"encoding/json"
	"time"
)

// Result contains the output of a tool execution.
type Result struct {
	// Output is the primary result data.
	Output json.RawMessage `json:"output"`

	// Duration is how long the execution took.
	Duration time.Duration `json:"duration"`
}

// NewResult creates a successful result with the given output.
func NewResult(output json.RawMessage) Result {
	return Result{Output: output}
}

// TextResult creates a result whose output is a JSON string.
func TextResult(text string) Result {
	raw, _ := json.Marshal(text)
	return Result{Output: raw}
}

// OutputString returns the output as text. JSON strings are unquoted.
func (r Result) OutputString() string {
	var s string
	if err := json.Unmarshal(r.Output, &s); err == nil {
		return s
	}
	return string(r.Output)
}
