package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ChangeEvent records one dated mutation of a tracked field.
type ChangeEvent[T any] struct {
	ChangedDate time.Time
	PreValue    T
	PostValue   T
}

// History is an append-only, change-date ordered log of one field's mutations.
// The zero value is an empty history.
type History[T any] struct {
	events []ChangeEvent[T]
}

// NewHistory copies events and orders them by change date.
// Events sharing a change date keep their recorded order, so the last recorded wins.
func NewHistory[T any](events ...ChangeEvent[T]) History[T] {
	if len(events) == 0 {
		return History[T]{}
	}
	out := make([]ChangeEvent[T], len(events))
	copy(out, events)
	for i := range out {
		out[i].ChangedDate = out[i].ChangedDate.UTC()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChangedDate.Before(out[j].ChangedDate)
	})
	return History[T]{events: out}
}

// Len returns the number of recorded changes.
func (h History[T]) Len() int {
	return len(h.events)
}

// Events returns a copy of the ordered change events.
func (h History[T]) Events() []ChangeEvent[T] {
	return append([]ChangeEvent[T](nil), h.events...)
}

// First returns the earliest recorded change.
func (h History[T]) First() (ChangeEvent[T], bool) {
	if len(h.events) == 0 {
		var zero ChangeEvent[T]
		return zero, false
	}
	return h.events[0], true
}

// Last returns the latest recorded change.
func (h History[T]) Last() (ChangeEvent[T], bool) {
	if len(h.events) == 0 {
		var zero ChangeEvent[T]
		return zero, false
	}
	return h.events[len(h.events)-1], true
}

// Current returns the field's present value: the post-change value of the last event,
// or the zero value of T when the field never changed.
func (h History[T]) Current() T {
	last, ok := h.Last()
	if !ok {
		var zero T
		return zero
	}
	return last.PostValue
}

// ValueAsOf returns the post-change value of the last event with ChangedDate <= cutoff,
// or the zero value of T when no event qualifies.
func (h History[T]) ValueAsOf(cutoff time.Time) T {
	// idx is the first event strictly after cutoff.
	idx := sort.Search(len(h.events), func(i int) bool {
		return h.events[i].ChangedDate.After(cutoff)
	})
	if idx == 0 {
		var zero T
		return zero
	}
	return h.events[idx-1].PostValue
}

// ValueBefore returns the value held immediately before t (events at t excluded).
func (h History[T]) ValueBefore(t time.Time) T {
	return h.ValueAsOf(t.Add(-time.Nanosecond))
}

// ChangedAfter reports whether the first recorded change happened strictly after t.
// An empty history never changed, so it reports false.
func (h History[T]) ChangedAfter(t time.Time) bool {
	first, ok := h.First()
	if !ok {
		return false
	}
	return first.ChangedDate.After(t)
}

// LastTransitionTo returns the date of the latest change whose post-value satisfies match.
func (h History[T]) LastTransitionTo(match func(T) bool) (time.Time, bool) {
	for i := len(h.events) - 1; i >= 0; i-- {
		if match(h.events[i].PostValue) {
			return h.events[i].ChangedDate, true
		}
	}
	return time.Time{}, false
}

// FirstTransitionTo returns the date of the earliest change whose post-value satisfies match.
func (h History[T]) FirstTransitionTo(match func(T) bool) (time.Time, bool) {
	for _, event := range h.events {
		if match(event.PostValue) {
			return event.ChangedDate, true
		}
	}
	return time.Time{}, false
}

// ParseNumeric converts a raw text history into hour values.
// Blank values parse as 0 since the tracker clears numeric fields to empty.
func ParseNumeric(raw History[string]) (History[float64], error) {
	if raw.Len() == 0 {
		return History[float64]{}, nil
	}
	out := make([]ChangeEvent[float64], 0, raw.Len())
	for i, event := range raw.events {
		pre, err := parseHours(event.PreValue)
		if err != nil {
			return History[float64]{}, fmt.Errorf("change %d pre value: %w", i, err)
		}
		post, err := parseHours(event.PostValue)
		if err != nil {
			return History[float64]{}, fmt.Errorf("change %d post value: %w", i, err)
		}
		out = append(out, ChangeEvent[float64]{
			ChangedDate: event.ChangedDate,
			PreValue:    pre,
			PostValue:   post,
		})
	}
	// raw is already ordered.
	return History[float64]{events: out}, nil
}

// parseHours parses one numeric field value.
func parseHours(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHours, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHours, raw)
	}
	return v, nil
}
