package sessions

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

type entryTitles []Entry

func (e entryTitles) String(i int) string { return e[i].Title }
func (e entryTitles) Len() int            { return len(e) }

// FilterSessions returns the sessions whose titles fuzzy-match query,
// keeping the newest-first order. An empty query returns every session.
func (c *Controller) FilterSessions(query string) []Entry {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.Sessions()
	}
	matches := fuzzy.FindFrom(query, entryTitles(c.entries))
	idx := make([]int, 0, len(matches))
	for _, m := range matches {
		idx = append(idx, m.Index)
	}
	sort.Ints(idx)

	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.entries[i])
	}
	return out
}
