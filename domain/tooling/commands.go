package tooling

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Built-in command tool names.
const (
	CommandFileRead    = "file_read"
	CommandCurrentTime = "current_time"
	CommandAdd         = "add"
	CommandEcho        = "echo"
)

var (
	quotedPathRe  = regexp.MustCompile(`["'“‘]([^"'”’]+\.[a-zA-Z0-9]+)["'”’]`)
	unixPathRe    = regexp.MustCompile(`(/[^\s"'，。]+\.[a-zA-Z0-9]+)`)
	windowsPathRe = regexp.MustCompile(`([A-Za-z]:[^\s"'，。]+\.[a-zA-Z0-9]+)`)
	numberRe      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// CommandsFor picks the command tools a message asks for, each with its
// arguments. A file read without a recognizable path and an addition with
// fewer than two numbers are skipped.
func CommandsFor(text string) []Args {
	lower := strings.ToLower(text)
	var calls []Args

	if strings.Contains(text, "读取文件") || strings.Contains(lower, "file_read") || strings.Contains(lower, "read file") {
		if path := ExtractPath(text); path != "" {
			input, _ := json.Marshal(map[string]string{"file_path": path})
			calls = append(calls, Args{Name: CommandFileRead, Input: input})
		}
	}
	if strings.Contains(text, "时间") || strings.Contains(text, "现在几点") || strings.Contains(lower, "what time") {
		calls = append(calls, Args{Name: CommandCurrentTime, Input: []byte(`{}`)})
	}
	if strings.Contains(text, "加法") || strings.Contains(text, "计算") || strings.Contains(lower, "calculate") || strings.Contains(lower, "add ") {
		if nums := ExtractNumbers(text); len(nums) >= 2 {
			input, _ := json.Marshal(map[string]float64{"a": nums[0], "b": nums[1]})
			calls = append(calls, Args{Name: CommandAdd, Input: input})
		}
	}
	return calls
}

// ExtractPath returns the first quoted, Unix or Windows file path in text.
func ExtractPath(text string) string {
	for _, re := range []*regexp.Regexp{quotedPathRe, unixPathRe, windowsPathRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// ExtractNumbers returns every decimal number in text, in order.
func ExtractNumbers(text string) []float64 {
	var out []float64
	for _, m := range numberRe.FindAllString(text, -1) {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}
