package app

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// IDGenerator returns unique identifiers for report runs.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Logger receives engine diagnostics.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Default engine option values.
const (
	DefaultAuditKeyword = "audit"
	DefaultDateLayout   = "1/2/2006"
)

// Options tunes the engine's workflow vocabulary and projection policy.
type Options struct {
	// WeeklyCapacityHours caps projected hours per task per week; 0 leaves weeks unbounded.
	WeeklyCapacityHours float64
	SentinelDeveloper   string
	ClosedState         string
	ActiveState         string
	NewState            string
	AuditKeyword        string
	// IsAuditTask overrides the keyword match when set.
	IsAuditTask func(title string) bool
	DateLayout  string
	Workers     int
}

func (o Options) withDefaults() Options {
	if o.WeeklyCapacityHours < 0 {
		o.WeeklyCapacityHours = 0
	}
	if strings.TrimSpace(o.SentinelDeveloper) == "" {
		o.SentinelDeveloper = domain.DefaultSentinelDeveloper
	}
	if strings.TrimSpace(o.ClosedState) == "" {
		o.ClosedState = domain.StateClosed
	}
	if strings.TrimSpace(o.ActiveState) == "" {
		o.ActiveState = domain.StateActive
	}
	if strings.TrimSpace(o.NewState) == "" {
		o.NewState = domain.StateNew
	}
	if strings.TrimSpace(o.AuditKeyword) == "" {
		o.AuditKeyword = DefaultAuditKeyword
	}
	if o.IsAuditTask == nil {
		keyword := strings.ToLower(o.AuditKeyword)
		o.IsAuditTask = func(title string) bool {
			return strings.Contains(strings.ToLower(title), keyword)
		}
	}
	if strings.TrimSpace(o.DateLayout) == "" {
		o.DateLayout = DefaultDateLayout
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Engine is the aggregation context for one work-item source.
type Engine struct {
	source WorkItemSource
	logger Logger
	clock  Clock
	idGen  IDGenerator
	opts   Options
}

// NewEngine constructs an engine. A nil logger discards diagnostics.
func NewEngine(source WorkItemSource, logger Logger, clock Clock, idGen IDGenerator, opts Options) *Engine {
	if logger == nil {
		logger = nopLogger{}
	}
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = func() string { return "" }
	}
	return &Engine{
		source: source,
		logger: logger,
		clock:  clock,
		idGen:  idGen,
		opts:   opts.withDefaults(),
	}
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// buildEnv holds the read-only lookup tables shared by every feature of one run.
type buildEnv struct {
	asOf        time.Time
	calendar    domain.Calendar
	current     domain.Iteration
	currentWeek int
	roster      domain.Roster
}

type storyInput struct {
	story        domain.UserStory
	tasks        []domain.Task
	childStories int
}

type featureInput struct {
	feature domain.Feature
	stories []storyInput
	err     error
}

type featureResult struct {
	timeline FeatureTimeline
	warnings []Warning
	err      error
}

// Build fetches everything from the source once, then materializes, projects and
// summarizes every feature. A feature that fails is reported in Failures and the
// rest of the run continues.
func (e *Engine) Build(ctx context.Context) (*Timeline, error) {
	runID := e.idGen()
	asOf := e.clock().UTC()
	e.logger.Info("timeline build start", "run_id", runID, "as_of", asOf.Format(time.RFC3339))

	env, err := e.loadEnv(ctx, asOf)
	if err != nil {
		return nil, err
	}
	features, err := e.source.Features(ctx)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	inputs := make([]featureInput, 0, len(features))
	for _, feature := range features {
		in, err := e.loadFeature(ctx, feature)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			in = featureInput{feature: feature, err: err}
		}
		inputs = append(inputs, in)
	}

	results := make([]featureResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = e.computeFeature(env, in)
			return nil
		})
	}
	_ = g.Wait()

	tl := &Timeline{
		runID:       runID,
		asOf:        asOf,
		opts:        e.opts,
		current:     env.current,
		currentWeek: env.currentWeek,
		calendar:    env.calendar,
		roster:      env.roster,
		features:    make([]FeatureTimeline, 0, len(results)),
	}
	for i, result := range results {
		tl.warnings = append(tl.warnings, result.warnings...)
		if result.err != nil {
			failure := FeatureFailure{FeatureID: inputs[i].feature.ID, Title: inputs[i].feature.Title, Err: result.err}
			e.logger.Error("feature aggregation failed", "feature", failure.FeatureID, "err", result.err)
			tl.failures = append(tl.failures, failure)
			continue
		}
		tl.features = append(tl.features, result.timeline)
	}
	sort.SliceStable(tl.features, func(i, j int) bool {
		if tl.features[i].Feature.Title == tl.features[j].Feature.Title {
			return tl.features[i].Feature.ID < tl.features[j].Feature.ID
		}
		return tl.features[i].Feature.Title < tl.features[j].Feature.Title
	})

	e.logger.Info(
		"timeline build complete",
		"run_id", runID,
		"features", len(tl.features),
		"failures", len(tl.failures),
		"warnings", len(tl.warnings),
	)
	return tl, nil
}

func (e *Engine) loadEnv(ctx context.Context, asOf time.Time) (buildEnv, error) {
	iterations, err := e.source.Iterations(ctx)
	if err != nil {
		return buildEnv{}, fmt.Errorf("list iterations: %w", err)
	}
	calendar, err := domain.NewCalendar(iterations)
	if err != nil {
		return buildEnv{}, fmt.Errorf("build iteration calendar: %w", err)
	}
	reported, err := e.source.CurrentIteration(ctx)
	if err != nil {
		return buildEnv{}, fmt.Errorf("resolve current iteration: %w", err)
	}
	current, ok := calendar.Find(reported.Path)
	if !ok {
		return buildEnv{}, fmt.Errorf("%w: current iteration %q", ErrLookupNotFound, reported.Path)
	}
	roster, err := e.source.Developers(ctx)
	if err != nil {
		return buildEnv{}, fmt.Errorf("list developers: %w", err)
	}
	if roster == nil {
		roster = domain.Roster{}
	}
	return buildEnv{
		asOf:        asOf,
		calendar:    calendar,
		current:     current,
		currentWeek: current.WeekOf(asOf),
		roster:      roster,
	}, nil
}

func (e *Engine) loadFeature(ctx context.Context, feature domain.Feature) (featureInput, error) {
	in := featureInput{feature: feature, stories: make([]storyInput, 0, len(feature.UserStories))}
	for _, story := range feature.UserStories {
		tasks, err := e.source.ChildTasks(ctx, story)
		if err != nil {
			return featureInput{}, fmt.Errorf("list tasks of story %s: %w", story.ID, err)
		}
		children, err := e.source.ChildUserStories(ctx, story)
		if err != nil {
			return featureInput{}, fmt.Errorf("list child stories of story %s: %w", story.ID, err)
		}
		in.stories = append(in.stories, storyInput{story: story, tasks: tasks, childStories: len(children)})
	}
	e.logger.Debug("feature loaded", "feature", feature.ID, "stories", len(in.stories))
	return in, nil
}

// computeFeature runs materialize, project and aggregate for one feature, in that order.
func (e *Engine) computeFeature(env buildEnv, in featureInput) featureResult {
	if in.err != nil {
		return featureResult{err: in.err}
	}
	m := materializer{opts: e.opts, env: env}
	commitments := make([]domain.TaskCommitment, 0)
	childCounts := make(map[string]int, len(in.stories))
	var warnings []Warning

	for _, si := range in.stories {
		childCounts[si.story.ID] = len(si.tasks) + si.childStories
		for _, task := range si.tasks {
			story, ok := in.feature.Story(task.ParentStoryID)
			if !ok {
				return featureResult{err: fmt.Errorf("%w: parent user story %q of task %s", ErrLookupNotFound, task.ParentStoryID, task.ID)}
			}
			materialized, notes, err := m.materialize(task, story)
			if err != nil {
				return featureResult{err: err}
			}
			for _, note := range notes {
				e.logger.Warn("data consistency", "feature", in.feature.ID, "task", task.ID, "detail", note)
				warnings = append(warnings, Warning{FeatureID: in.feature.ID, TaskID: task.ID, Message: note})
			}
			commitments = append(commitments, materialized...)
		}
	}

	p := projector{
		calendar:    env.calendar,
		currentSlot: domain.Slot{Iteration: env.current, Week: env.currentWeek},
		capacity:    e.opts.WeeklyCapacityHours,
	}
	commitments = p.project(commitments)

	return featureResult{
		timeline: FeatureTimeline{
			Feature:     in.feature,
			Commitments: commitments,
			Summary:     SummarizeFeature(in.feature, commitments, childCounts, e.opts),
			Grid:        BuildIterationGrid(commitments, env.calendar, env.roster, e.opts.SentinelDeveloper),
		},
		warnings: warnings,
	}
}
