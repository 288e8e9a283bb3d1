package sessions

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/strrl/ragchat/pkg/models"
)

// EntryState tracks where a session list entry is in its round trip to the backend
type EntryState int

const (
	// Confirmed entries match the last known backend state.
	Confirmed EntryState = iota
	// Creating entries are provisional until the create call settles.
	Creating
	// Renaming entries show an optimistic title; the prior snapshot is kept for rollback.
	Renaming
)

func (s EntryState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Creating:
		return "creating"
	case Renaming:
		return "renaming"
	}
	return fmt.Sprintf("EntryState(%d)", int(s))
}

// Entry is one row of the session list.
type Entry struct {
	models.ChatSession
	State EntryState

	prior models.ChatSession // last confirmed snapshot while Renaming
	op    uint64             // latest rename issued for this entry
}

// tombstone holds a session removed optimistically until its delete settles.
type tombstone struct {
	entry      Entry
	wasCurrent bool
	fallback   string // session auto-selected in its place
}

// sortEntries orders by UpdatedAt, newest first. Ties keep their relative order.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
}

// IsSorted reports whether entries are ordered newest first.
func IsSorted(entries []Entry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].UpdatedAt.After(entries[i-1].UpdatedAt) {
			return false
		}
	}
	return true
}

func (c *Controller) index(id string) int {
	for i := range c.entries {
		if c.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) find(id string) *Entry {
	if i := c.index(id); i >= 0 {
		return &c.entries[i]
	}
	return nil
}

// lookup finds an entry in the list or among pending deletes.
func (c *Controller) lookup(id string) *Entry {
	if e := c.find(id); e != nil {
		return e
	}
	if ts, ok := c.tombstones[id]; ok {
		return &ts.entry
	}
	return nil
}

func (c *Controller) insert(e Entry) {
	c.entries = append(c.entries, e)
	sortEntries(c.entries)
}

func (c *Controller) remove(i int) Entry {
	e := c.entries[i]
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	return e
}

// provisionalID derives a chat_<unix-ms> id, bumped until nothing known uses it.
func (c *Controller) provisionalID(now time.Time) string {
	ms := now.UnixMilli()
	for {
		id := fmt.Sprintf("chat_%d", ms)
		if c.lookup(id) == nil {
			return id
		}
		ms++
	}
}

// defaultTitle numbers new sessions by counting titles that already use the
// prefix. Renames can make the result collide with an existing title.
func (c *Controller) defaultTitle() string {
	n := 0
	for _, e := range c.entries {
		if strings.HasPrefix(e.Title, c.titlePrefix) {
			n++
		}
	}
	return fmt.Sprintf("%s %d", c.titlePrefix, n+1)
}
