package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// materializer turns tasks into commitments against one build environment.
type materializer struct {
	opts Options
	env  buildEnv
}

// iterationSegment is one span of time a task spent assigned to an iteration path.
type iterationSegment struct {
	path     string
	from, to time.Time
	it       domain.Iteration
}

// materialize returns the task's primary commitment followed by generated preceding
// commitments in calendar order. The returned notes are data-consistency warnings.
func (m materializer) materialize(task domain.Task, story domain.UserStory) ([]domain.TaskCommitment, []string, error) {
	iteration, ok := m.env.calendar.Find(task.IterationPath)
	if !ok {
		return nil, nil, fmt.Errorf("%w: iteration %q of task %s", ErrLookupNotFound, task.IterationPath, task.ID)
	}
	developer, err := m.currentDeveloper(task.AssignedTo)
	if err != nil {
		return nil, nil, fmt.Errorf("task %s: %w", task.ID, err)
	}

	closed := task.State == m.opts.ClosedState
	primary := domain.TaskCommitment{
		TaskID:             task.ID,
		TaskTitle:          task.Title,
		TaskState:          task.State,
		OriginalEstimate:   task.OriginalEstimate.Current(),
		CompletedWork:      task.CompletedWork.Current(),
		RemainingWork:      task.RemainingWork.Current(),
		CommittedDeveloper: developer,
		CommittedIteration: iteration,
		ParentUserStory:    story,
		HoursAgainstBudget: task.HoursAgainstBudget(),
		Closed:             closed,
		Task:               task,
	}
	if activated, ok := task.StateChanges.FirstTransitionTo(equals(m.opts.ActiveState)); ok {
		primary.ActivatedDate = activated
	}
	if closed {
		if completedAt, ok := task.StateChanges.LastTransitionTo(equals(m.opts.ClosedState)); ok {
			primary.CompletedDate = completedAt
			primary.IterationCompleted = task.IterationChanges.ValueAsOf(completedAt)
			if primary.IterationCompleted == "" {
				if first, ok := task.IterationChanges.First(); ok && first.ChangedDate.After(completedAt) {
					primary.IterationCompleted = strings.TrimSpace(first.PreValue)
				}
			}
		}
		if primary.IterationCompleted == "" {
			primary.IterationCompleted = iteration.Path
		}
	}
	primary.CommittedIterationWeek = m.primaryWeek(iteration, primary)

	preceding, notes := m.preceding(task, primary)
	for _, c := range preceding {
		primary.CarriedOverWork += c.CompletedWork
	}
	return append([]domain.TaskCommitment{primary}, preceding...), notes, nil
}

func (m materializer) primaryWeek(it domain.Iteration, c domain.TaskCommitment) int {
	switch {
	case c.Closed && !c.CompletedDate.IsZero():
		return it.WeekOf(c.CompletedDate)
	case c.Closed:
		return it.Weeks() - 1
	case it.Path == m.env.current.Path:
		return m.env.currentWeek
	case !it.EndDate.After(m.env.current.StartDate):
		return it.Weeks() - 1
	default:
		return 0
	}
}

// preceding reconstructs one commitment per earlier iteration week in which the task's
// completed work grew. A history that moves back in the calendar yields none.
func (m materializer) preceding(task domain.Task, primary domain.TaskCommitment) ([]domain.TaskCommitment, []string) {
	segments, notes, err := m.segments(task)
	if err != nil {
		return nil, append(notes, err.Error())
	}

	primarySlot := primary.Slot()
	out := make([]domain.TaskCommitment, 0)
	for _, seg := range segments {
		it := seg.it
		last := it.Weeks() - 1
		for w := 0; w <= last; w++ {
			slot := domain.Slot{Iteration: it, Week: w}
			if !m.env.calendar.SlotBefore(slot, primarySlot) {
				break
			}
			// Work logged before the iteration starts lands in week 0, after it ends in the last week.
			lo, hi := it.WeekStart(w), it.WeekEnd(w)
			if w == 0 {
				lo = time.Time{}
			}
			if w == last {
				hi = seg.to
			}
			lo, hi = later(lo, seg.from), earlier(hi, seg.to)
			if !hi.After(lo) {
				continue
			}
			delta := task.CompletedWork.ValueBefore(hi) - task.CompletedWork.ValueBefore(lo)
			if delta <= 0 {
				continue
			}

			developer, note := m.historicalDeveloper(task, hi, primary.CommittedDeveloper)
			if note != "" {
				notes = append(notes, note)
			}
			remaining := task.RemainingWork.ValueBefore(hi)
			out = append(out, domain.TaskCommitment{
				TaskID:                   task.ID,
				TaskTitle:                task.Title,
				TaskState:                m.opts.ActiveState,
				OriginalEstimate:         task.OriginalEstimate.ValueBefore(hi),
				CompletedWork:            delta,
				RemainingWork:            remaining,
				ActivatedDate:            primary.ActivatedDate,
				CommittedDeveloper:       developer,
				CommittedIteration:       it,
				CommittedIterationWeek:   w,
				ParentUserStory:          primary.ParentUserStory,
				ProjectedCompletedWork:   delta,
				ProjectedRemainingWork:   remaining,
				HoursAgainstBudget:       delta + remaining,
				IsGeneratedPrecedingTask: true,
				Task:                     task,
			})
		}
	}
	return out, notes
}

// segments splits the task's iteration history into assignment spans ending at the
// evaluation time. Spans on unknown paths are skipped with a note.
func (m materializer) segments(task domain.Task) ([]iterationSegment, []string, error) {
	raw := make([]iterationSegment, 0)
	events := task.IterationChanges.Events()
	if len(events) == 0 {
		raw = append(raw, iterationSegment{path: task.IterationPath, to: m.env.asOf})
	} else {
		if first := strings.TrimSpace(events[0].PreValue); first != "" {
			raw = append(raw, iterationSegment{path: first, to: events[0].ChangedDate})
		}
		for i, event := range events {
			to := m.env.asOf
			if i+1 < len(events) {
				to = events[i+1].ChangedDate
			}
			raw = append(raw, iterationSegment{path: strings.TrimSpace(event.PostValue), from: event.ChangedDate, to: to})
		}
	}

	var notes []string
	out := make([]iterationSegment, 0, len(raw))
	for _, seg := range raw {
		if seg.path == "" {
			continue
		}
		it, ok := m.env.calendar.Find(seg.path)
		if !ok {
			notes = append(notes, fmt.Sprintf("task %s history references unknown iteration %q", task.ID, seg.path))
			continue
		}
		if n := len(out); n > 0 && it.EndDate.Before(out[n-1].it.EndDate) {
			return nil, notes, fmt.Errorf("%w: task %s moves from %q back to %q", ErrInconsistentHistory, task.ID, out[n-1].path, seg.path)
		}
		seg.it = it
		out = append(out, seg)
	}
	return out, notes, nil
}

func (m materializer) sentinel() domain.Developer {
	return domain.Developer{Name: m.opts.SentinelDeveloper}
}

func (m materializer) currentDeveloper(name string) (domain.Developer, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == m.opts.SentinelDeveloper {
		return m.sentinel(), nil
	}
	developer, ok := m.env.roster.Lookup(name)
	if !ok {
		return domain.Developer{}, fmt.Errorf("%w: developer %q", ErrLookupNotFound, name)
	}
	return developer, nil
}

// historicalDeveloper resolves who owned the task just before t.
func (m materializer) historicalDeveloper(task domain.Task, t time.Time, fallback domain.Developer) (domain.Developer, string) {
	if task.AssignedToChanges.Len() == 0 {
		return fallback, ""
	}
	name := strings.TrimSpace(task.AssignedToChanges.ValueBefore(t))
	if name == "" || name == m.opts.SentinelDeveloper {
		return m.sentinel(), ""
	}
	developer, ok := m.env.roster.Lookup(name)
	if !ok {
		return m.sentinel(), fmt.Sprintf("task %s history references unknown developer %q", task.ID, name)
	}
	return developer, ""
}

func equals(want string) func(string) bool {
	return func(v string) bool { return v == want }
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
