package app

import "github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"

// projector spreads open remaining work over the current and future iteration weeks.
// Capacity is tracked per task, not per developer, so two tasks owned by the same
// developer may both fill the same week.
type projector struct {
	calendar    domain.Calendar
	currentSlot domain.Slot
	capacity    float64
}

type slotShare struct {
	slot  domain.Slot
	hours float64
}

// project fills the projected fields of every commitment. Actual-hours commitments
// project exactly what they record; open ones may add carryover commitments.
func (p projector) project(in []domain.TaskCommitment) []domain.TaskCommitment {
	out := make([]domain.TaskCommitment, 0, len(in))
	for _, c := range in {
		if c.UsesActualHours() {
			c.ProjectedCompletedWork = c.CompletedWork
			c.ProjectedRemainingWork = c.RemainingWork
			out = append(out, c)
			continue
		}
		out = append(out, p.spread(c)...)
	}
	return out
}

func (p projector) spread(c domain.TaskCommitment) []domain.TaskCommitment {
	start := c.Slot()
	inPast := p.calendar.SlotBefore(start, p.currentSlot)
	if inPast {
		start = p.currentSlot
	}
	shares := p.fill(c.RemainingWork, start)
	left := c.RemainingWork

	primary := c
	primary.ProjectedCompletedWork = c.ActualHours()
	if !inPast && len(shares) > 0 {
		primary.ProjectedCompletedWork += shares[0].hours
		left -= shares[0].hours
		shares = shares[1:]
	}
	primary.ProjectedRemainingWork = left

	out := []domain.TaskCommitment{primary}
	for _, share := range shares {
		left -= share.hours
		carry := c
		carry.CommittedIteration = share.slot.Iteration
		carry.CommittedIterationWeek = share.slot.Week
		carry.CompletedWork = 0
		carry.CarriedOverWork = 0
		carry.IsProjectedCarryover = true
		carry.ProjectedCompletedWork = share.hours
		carry.ProjectedRemainingWork = left
		out = append(out, carry)
	}
	return out
}

// fill greedily assigns hours to consecutive weeks from start. The last week of the
// calendar absorbs whatever capacity could not place.
func (p projector) fill(hours float64, start domain.Slot) []slotShare {
	out := make([]slotShare, 0, 1)
	slot := start
	for hours > 0 {
		take := hours
		if p.capacity > 0 && take > p.capacity {
			take = p.capacity
		}
		next, ok := p.calendar.NextSlot(slot)
		if !ok {
			take = hours
		}
		out = append(out, slotShare{slot: slot, hours: take})
		hours -= take
		slot = next
	}
	return out
}
