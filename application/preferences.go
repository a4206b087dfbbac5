package application

import (
	"regexp"
	"strings"
)

// preferencePatterns map a stated preference to its key. Order matters:
// negative forms are matched before the positive ones they contain.
var preferencePatterns = []struct {
	key string
	re  *regexp.Regexp
}{
	{"dislikes", regexp.MustCompile(`我(?:不喜欢|讨厌|不想要)([^，。,.!！？?；;]+)`)},
	{"likes", regexp.MustCompile(`我(?:更|比较|很|最)?(?:喜欢|偏好)([^，。,.!！？?；;]+)`)},
	{"language", regexp.MustCompile(`(?:请|以后)?用(中文|英文|英语|日语)(?:回答|回复|交流)`)},
	{"name", regexp.MustCompile(`(?:我叫|我的名字是)([^，。,.!！？?；;\s]+)`)},
}

// ExtractPreferences returns the user preferences stated in text.
func ExtractPreferences(text string) map[string]string {
	out := make(map[string]string)
	rest := text
	for _, p := range preferencePatterns {
		m := p.re.FindStringSubmatchIndex(rest)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(rest[m[2]:m[3]])
		if value == "" {
			continue
		}
		out[p.key] = value
		// A matched span is not read again by later patterns.
		rest = rest[:m[0]] + rest[m[1]:]
	}
	return out
}
