package domain

import (
	"errors"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2026, 2, d, 12, 0, 0, 0, time.UTC)
}

func TestHistoryValueAsOf(t *testing.T) {
	h := NewHistory(
		ChangeEvent[string]{ChangedDate: day(10), PreValue: "a", PostValue: "b"},
		ChangeEvent[string]{ChangedDate: day(2), PreValue: "", PostValue: "a"},
		ChangeEvent[string]{ChangedDate: day(20), PreValue: "b", PostValue: "c"},
	)
	cases := []struct {
		at   time.Time
		want string
	}{
		{day(1), ""},
		{day(2), "a"},
		{day(9), "a"},
		{day(10), "b"},
		{day(25), "c"},
	}
	for _, tc := range cases {
		if got := h.ValueAsOf(tc.at); got != tc.want {
			t.Fatalf("ValueAsOf(%s) = %q, want %q", tc.at.Format(time.DateOnly), got, tc.want)
		}
	}
	if got := h.ValueBefore(day(10)); got != "a" {
		t.Fatalf("ValueBefore() = %q, want a", got)
	}
	if got := h.Current(); got != "c" {
		t.Fatalf("Current() = %q, want c", got)
	}
}

func TestHistorySameDateLastRecordedWins(t *testing.T) {
	h := NewHistory(
		ChangeEvent[string]{ChangedDate: day(3), PostValue: "first"},
		ChangeEvent[string]{ChangedDate: day(3), PostValue: "second"},
	)
	if got := h.ValueAsOf(day(3)); got != "second" {
		t.Fatalf("ValueAsOf() = %q, want second", got)
	}
}

func TestHistoryEmpty(t *testing.T) {
	var h History[float64]
	if h.Current() != 0 || h.ValueAsOf(day(5)) != 0 {
		t.Fatal("expected zero values from empty history")
	}
	if h.ChangedAfter(day(1)) {
		t.Fatal("expected empty history to report no change")
	}
	if _, ok := h.LastTransitionTo(func(float64) bool { return true }); ok {
		t.Fatal("expected no transition in empty history")
	}
}

func TestHistoryTransitions(t *testing.T) {
	h := NewHistory(
		ChangeEvent[string]{ChangedDate: day(1), PreValue: "New", PostValue: "Active"},
		ChangeEvent[string]{ChangedDate: day(4), PreValue: "Active", PostValue: "Closed"},
		ChangeEvent[string]{ChangedDate: day(6), PreValue: "Closed", PostValue: "Active"},
		ChangeEvent[string]{ChangedDate: day(8), PreValue: "Active", PostValue: "Closed"},
	)
	isClosed := func(v string) bool { return v == StateClosed }
	got, ok := h.LastTransitionTo(isClosed)
	if !ok || !got.Equal(day(8)) {
		t.Fatalf("LastTransitionTo() = %v %v, want %v", got, ok, day(8))
	}
	got, ok = h.FirstTransitionTo(func(v string) bool { return v == StateActive })
	if !ok || !got.Equal(day(1)) {
		t.Fatalf("FirstTransitionTo() = %v %v, want %v", got, ok, day(1))
	}
	if !h.ChangedAfter(day(0)) || h.ChangedAfter(day(1)) {
		t.Fatal("unexpected ChangedAfter() result")
	}
}

func TestParseNumeric(t *testing.T) {
	raw := NewHistory(
		ChangeEvent[string]{ChangedDate: day(1), PreValue: "", PostValue: "8"},
		ChangeEvent[string]{ChangedDate: day(2), PreValue: "8", PostValue: "5.5"},
	)
	h, err := ParseNumeric(raw)
	if err != nil {
		t.Fatalf("ParseNumeric() error = %v", err)
	}
	first, _ := h.First()
	if first.PreValue != 0 || first.PostValue != 8 {
		t.Fatalf("unexpected first event %+v", first)
	}
	if h.Current() != 5.5 {
		t.Fatalf("Current() = %v, want 5.5", h.Current())
	}

	bad := NewHistory(ChangeEvent[string]{ChangedDate: day(1), PostValue: "-2"})
	if _, err := ParseNumeric(bad); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
	bad = NewHistory(ChangeEvent[string]{ChangedDate: day(1), PostValue: "lots"})
	if _, err := ParseNumeric(bad); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
}
