package render

import (
	"html"
	"regexp"
	"strings"
)

var (
	styleBlock  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	lineBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText derives a plain-text body from an HTML email.
// Styles, scripts and tags are dropped, entities decoded, lines trimmed
// and runs of blank lines collapsed into one.
// The result is free of markup only for tags the templates emit: escaped
// user input such as &lt;b&gt; is decoded back to "<b>".
func HTMLToText(s string) string {
	s = styleBlock.ReplaceAllString(s, "")
	s = scriptBlock.ReplaceAllString(s, "")
	s = lineBreak.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
