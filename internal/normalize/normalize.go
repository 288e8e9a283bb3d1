// Package normalize repairs the Markdown that language models tend to emit
// (stray bold markers, glued emoji, odd bullets, inline headings) before it
// reaches a Markdown renderer.
package normalize

import (
	"github.com/strrl/ragchat/internal/system"
)

// Step records the output of one rule, for diagnostics.
type Step struct {
	Rule    string
	Output  string
	Changed bool
}

// Normalize runs every rule over text in order. It never fails: a rule
// whose engine errors out leaves its input untouched.
func Normalize(text string) string {
	for _, r := range Rules {
		text = apply(r, text)
	}
	return text
}

// NormalizeValue normalizes v when it is a string and returns "" otherwise.
func NormalizeValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}

// Steps runs the pipeline and returns every intermediate result.
func Steps(text string) []Step {
	steps := make([]Step, 0, len(Rules))
	for _, r := range Rules {
		out := apply(r, text)
		steps = append(steps, Step{Rule: r.Name, Output: out, Changed: out != text})
		text = out
	}
	return steps
}

func apply(r Rule, text string) string {
	out, err := r.Apply(text)
	if err != nil {
		system.Logger.Debug("normalize rule skipped", "rule", r.Name, "err", err)
		return text
	}
	return out
}
