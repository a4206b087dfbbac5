package search

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

var (
	tagRe          = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
	scriptRe       = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe        = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLines = regexp.MustCompile(`\n{3,}`)
)

// SnippetCleaner turns HTML-bearing snippets into compact markdown.
type SnippetCleaner struct {
	converter *md.Converter
}

// NewSnippetCleaner creates a cleaner with GitHub-flavored output.
func NewSnippetCleaner() *SnippetCleaner {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &SnippetCleaner{converter: converter}
}

// Clean returns the snippet as markdown. Plain text passes through with
// whitespace collapsed.
func (c *SnippetCleaner) Clean(snippet string) string {
	snippet = strings.TrimSpace(snippet)
	if !tagRe.MatchString(snippet) {
		return collapse(snippet)
	}
	snippet = scriptRe.ReplaceAllString(snippet, "")
	snippet = styleRe.ReplaceAllString(snippet, "")
	out, err := c.converter.ConvertString(snippet)
	if err != nil {
		return collapse(tagRe.ReplaceAllString(snippet, ""))
	}
	return collapse(out)
}

func collapse(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = excessiveLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
