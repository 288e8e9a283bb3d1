package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Rule is one pure rewrite step of the pipeline.
type Rule struct {
	Name  string
	Apply func(string) (string, error)
}

// Rules is the pipeline in application order. Later rules rely on the
// shapes produced by earlier ones, so the order must not change.
var Rules = []Rule{
	{Name: "unescape-asterisks", Apply: infallible(unescapeAsterisks)},
	{Name: "bullets", Apply: infallible(bullets)},
	{Name: "glyph-bold-spacing", Apply: glyphBoldSpacing},
	{Name: "colon-out-of-bold", Apply: infallible(colonOutOfBold)},
	{Name: "bold-runs", Apply: infallible(boldRuns)},
	{Name: "bold-inner-space", Apply: infallible(boldInnerSpace)},
	{Name: "heading-break", Apply: infallible(headingBreak)},
	{Name: "colon-spacing", Apply: infallible(colonSpacing)},
}

var (
	bulletLine     = regexp.MustCompile(`(?m)^([ \t]*)•\s+`)
	colonInBold    = regexp.MustCompile(`\*\*(.*?)(:)(\s*)\*\*`)
	boldPairRun    = regexp.MustCompile(`\*{3,}(.+?)\*{3,}`)
	asteriskRun    = regexp.MustCompile(`\*{3,}`)
	boldInner      = regexp.MustCompile(`\*\*\s*(.*?)\s*\*\*`)
	inlineHeading  = regexp.MustCompile(`([^\n\r#])(#+[ \t]+[^\n\r]+)`)
	colonThenAlnum = regexp.MustCompile(`:([A-Za-z0-9])`)

	// RE2 has no look-ahead; the opening marker must not be consumed together
	// with the character after it or adjacent spans would be skipped.
	glyphBeforeBold = func() *regexp2.Regexp {
		re := regexp2.MustCompile(`([^\s*])(\*\*(?=[^*]))`, regexp2.None)
		re.MatchTimeout = time.Second
		return re
	}()
)

func infallible(f func(string) string) func(string) (string, error) {
	return func(s string) (string, error) { return f(s), nil }
}

func unescapeAsterisks(s string) string {
	return strings.ReplaceAll(s, `\*`, "*")
}

func bullets(s string) string {
	return bulletLine.ReplaceAllString(s, "${1}* ")
}

// glyphBoldSpacing turns "💡**Bold**" into "💡 **Bold**".
func glyphBoldSpacing(s string) (string, error) {
	return glyphBeforeBold.Replace(s, "$1 $2", -1, -1)
}

// colonOutOfBold turns "**Label:  **" into "**Label**:  ".
func colonOutOfBold(s string) string {
	return replaceSubmatches(colonInBold, s, func(groups []string) string {
		text := strings.TrimSpace(groups[1])
		if text == "" {
			return groups[0]
		}
		return "**" + text + "**" + groups[2] + groups[3]
	})
}

func boldRuns(s string) string {
	s = boldPairRun.ReplaceAllString(s, "**${1}**")
	return asteriskRun.ReplaceAllString(s, "**")
}

func boldInnerSpace(s string) string {
	return boldInner.ReplaceAllString(s, "**${1}**")
}

func headingBreak(s string) string {
	return inlineHeading.ReplaceAllString(s, "${1}\n${2}")
}

func colonSpacing(s string) string {
	return colonThenAlnum.ReplaceAllString(s, ": ${1}")
}

// replaceSubmatches is ReplaceAllStringFunc with access to capture groups.
// groups[0] is the whole match.
func replaceSubmatches(re *regexp.Regexp, s string, repl func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = s[m[2*i]:m[2*i+1]]
			}
		}
		b.WriteString(repl(groups))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
