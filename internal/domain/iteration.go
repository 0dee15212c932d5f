package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Week is the length of one iteration week.
const Week = 7 * 24 * time.Hour

// Iteration is one scheduling period identified by its path.
type Iteration struct {
	Path      string
	StartDate time.Time
	EndDate   time.Time
}

// NewIteration validates one iteration.
func NewIteration(path string, start, end time.Time) (Iteration, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Iteration{}, ErrInvalidPath
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Iteration{}, ErrInvalidDateRange
	}
	return Iteration{Path: path, StartDate: start.UTC(), EndDate: end.UTC()}, nil
}

// IsZero reports whether the iteration is unset.
func (it Iteration) IsZero() bool {
	return it.Path == ""
}

// Weeks returns the number of weeks the iteration spans; a partial trailing week counts.
func (it Iteration) Weeks() int {
	span := it.EndDate.Sub(it.StartDate)
	if span <= 0 {
		return 1
	}
	weeks := int(span / Week)
	if span%Week != 0 {
		weeks++
	}
	return weeks
}

// WeekOf returns the week index of t, clamped to the iteration's duration.
func (it Iteration) WeekOf(t time.Time) int {
	if !t.After(it.StartDate) {
		return 0
	}
	week := int(t.Sub(it.StartDate) / Week)
	if last := it.Weeks() - 1; week > last {
		return last
	}
	return week
}

// WeekStart returns the first instant of week w.
func (it Iteration) WeekStart(w int) time.Time {
	if w <= 0 {
		return it.StartDate
	}
	return it.StartDate.Add(time.Duration(w) * Week)
}

// WeekEnd returns the instant week w ends; the last week ends with the iteration.
func (it Iteration) WeekEnd(w int) time.Time {
	if w >= it.Weeks()-1 {
		return it.EndDate
	}
	return it.WeekStart(w + 1)
}

// Contains reports whether t falls inside [StartDate, EndDate).
func (it Iteration) Contains(t time.Time) bool {
	return !t.Before(it.StartDate) && t.Before(it.EndDate)
}

// Calendar is the ordered set of known iterations.
type Calendar struct {
	iterations []Iteration
	index      map[string]int
}

// NewCalendar orders iterations by end date and rejects duplicates and overlaps.
func NewCalendar(iterations []Iteration) (Calendar, error) {
	ordered := append([]Iteration(nil), iterations...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].EndDate.Equal(ordered[j].EndDate) {
			return ordered[i].Path < ordered[j].Path
		}
		return ordered[i].EndDate.Before(ordered[j].EndDate)
	})

	index := make(map[string]int, len(ordered))
	for i, it := range ordered {
		if it.Path == "" {
			return Calendar{}, ErrInvalidPath
		}
		if _, ok := index[it.Path]; ok {
			return Calendar{}, fmt.Errorf("%w: duplicate path %q", ErrInvalidPath, it.Path)
		}
		if i > 0 && it.StartDate.Before(ordered[i-1].EndDate) {
			return Calendar{}, fmt.Errorf("%w: %q starts before %q ends", ErrOverlappingRange, it.Path, ordered[i-1].Path)
		}
		index[it.Path] = i
	}
	return Calendar{iterations: ordered, index: index}, nil
}

// Iterations returns all iterations ordered by end date ascending.
func (c Calendar) Iterations() []Iteration {
	return append([]Iteration(nil), c.iterations...)
}

// Len returns the number of iterations.
func (c Calendar) Len() int {
	return len(c.iterations)
}

// Find looks up one iteration by path.
func (c Calendar) Find(path string) (Iteration, bool) {
	i, ok := c.index[strings.TrimSpace(path)]
	if !ok {
		return Iteration{}, false
	}
	return c.iterations[i], true
}

// Position returns the ordinal of the iteration in end-date order.
func (c Calendar) Position(path string) (int, bool) {
	i, ok := c.index[strings.TrimSpace(path)]
	return i, ok
}

// At returns the iteration containing t.
func (c Calendar) At(t time.Time) (Iteration, bool) {
	for _, it := range c.iterations {
		if it.Contains(t) {
			return it, true
		}
	}
	return Iteration{}, false
}

// Prior returns the iterations that ended on or before it started, ordered by end date.
func (c Calendar) Prior(it Iteration) []Iteration {
	out := make([]Iteration, 0)
	for _, candidate := range c.iterations {
		if !candidate.EndDate.After(it.StartDate) {
			out = append(out, candidate)
		}
	}
	return out
}

// Span returns the iterations whose end date lies in (start, end].
func (c Calendar) Span(start, end time.Time) []Iteration {
	out := make([]Iteration, 0)
	for _, it := range c.iterations {
		if !it.EndDate.After(start) {
			continue
		}
		if it.EndDate.After(end) {
			break
		}
		out = append(out, it)
	}
	return out
}

// Slot addresses one week of one iteration.
type Slot struct {
	Iteration Iteration
	Week      int
}

// SlotBefore reports whether s precedes other in calendar order.
func (c Calendar) SlotBefore(s, other Slot) bool {
	si, _ := c.Position(s.Iteration.Path)
	oi, _ := c.Position(other.Iteration.Path)
	if si != oi {
		return si < oi
	}
	return s.Week < other.Week
}

// NextSlot returns the week following s, crossing into the next iteration when needed.
func (c Calendar) NextSlot(s Slot) (Slot, bool) {
	if s.Week+1 < s.Iteration.Weeks() {
		return Slot{Iteration: s.Iteration, Week: s.Week + 1}, true
	}
	pos, ok := c.Position(s.Iteration.Path)
	if !ok || pos+1 >= len(c.iterations) {
		return Slot{}, false
	}
	return Slot{Iteration: c.iterations[pos+1], Week: 0}, true
}
