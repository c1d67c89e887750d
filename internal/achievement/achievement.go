// Package achievement evaluates the fixed achievement catalog against a
// learner's counters. Nothing is stored; every report is recomputed.
package achievement

// Category groups achievements in the UI.
type Category string

const (
	CategoryMilestone  Category = "milestone"
	CategoryProgress   Category = "progress"
	CategoryStreak     Category = "streak"
	CategoryTime       Category = "time"
	CategoryCompletion Category = "completion"
)

// Counters are the inputs of an evaluation.
type Counters struct {
	Completed    int // lessons completed in the course
	Total        int // lessons in the course
	StreakDays   int
	WatchMinutes int
}

// Definition is a catalog entry. Metric extracts the measured value from the
// counters and Threshold returns the value needed to unlock. A threshold of
// zero or less can never be reached.
type Definition struct {
	ID          string
	Title       string
	Description string
	Category    Category
	Points      int
	Metric      func(Counters) int
	Threshold   func(Counters) int
}

// Achievement is the evaluated state of one definition.
type Achievement struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Points      int      `json:"points"`
	Unlocked    bool     `json:"unlocked"`
	Current     int      `json:"current"`
	Target      int      `json:"target"`
}

// Report is the outcome of evaluating the whole catalog.
type Report struct {
	Achievements   []Achievement `json:"achievements"`
	UnlockedCount  int           `json:"unlocked_count"`
	TotalPoints    int           `json:"total_points"`
	Next           *Achievement  `json:"next,omitempty"`
	ProgressToNext float64       `json:"progress_to_next"`
}

func completed(c Counters) int    { return c.Completed }
func streakDays(c Counters) int   { return c.StreakDays }
func watchMinutes(c Counters) int { return c.WatchMinutes }

func fixed(n int) func(Counters) int {
	return func(Counters) int { return n }
}

// ceilPercent returns ceil(total*pct/100).
func ceilPercent(pct int) func(Counters) int {
	return func(c Counters) int {
		return (c.Total*pct + 99) / 100
	}
}

func courseTotal(c Counters) int { return c.Total }

var catalog = []Definition{
	{ID: "first-lesson", Title: "First Step", Description: "Started your learning journey", Category: CategoryMilestone, Points: 10, Metric: completed, Threshold: fixed(1)},
	{ID: "quick-learner", Title: "Quick Learner", Description: "Completed 3 lessons", Category: CategoryProgress, Points: 25, Metric: completed, Threshold: fixed(3)},
	{ID: "dedicated", Title: "Dedicated Student", Description: "Completed 5 lessons", Category: CategoryProgress, Points: 50, Metric: completed, Threshold: fixed(5)},
	{ID: "streak-master", Title: "On Fire!", Description: "3-day learning streak", Category: CategoryStreak, Points: 30, Metric: streakDays, Threshold: fixed(3)},
	{ID: "time-master", Title: "Time Master", Description: "2+ hours of learning", Category: CategoryTime, Points: 40, Metric: watchMinutes, Threshold: fixed(120)},
	{ID: "halfway-hero", Title: "Halfway Hero", Description: "Reached 50% completion", Category: CategoryMilestone, Points: 75, Metric: completed, Threshold: ceilPercent(50)},
	{ID: "almost-there", Title: "Almost There", Description: "80% course completion", Category: CategoryMilestone, Points: 100, Metric: completed, Threshold: ceilPercent(80)},
	{ID: "course-master", Title: "Course Master", Description: "Completed the entire course", Category: CategoryCompletion, Points: 200, Metric: completed, Threshold: courseTotal},
}

// Catalog returns a copy of the built-in definitions in evaluation order.
func Catalog() []Definition {
	defs := make([]Definition, len(catalog))
	copy(defs, catalog)
	return defs
}

// Evaluate runs the built-in catalog against c.
func Evaluate(c Counters) Report {
	return EvaluateWith(catalog, c)
}

// EvaluateWith runs defs against c. Next is the first locked definition in
// order; ProgressToNext is 100 once everything is unlocked.
func EvaluateWith(defs []Definition, c Counters) Report {
	r := Report{Achievements: make([]Achievement, 0, len(defs))}
	next := -1
	for _, d := range defs {
		current, target := d.Metric(c), d.Threshold(c)
		a := Achievement{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Category:    d.Category,
			Points:      d.Points,
			Unlocked:    target > 0 && current >= target,
			Current:     current,
			Target:      target,
		}
		if a.Unlocked {
			r.UnlockedCount++
			r.TotalPoints += a.Points
		} else if next < 0 {
			next = len(r.Achievements)
		}
		r.Achievements = append(r.Achievements, a)
	}

	if next < 0 {
		r.ProgressToNext = 100
		return r
	}
	n := r.Achievements[next]
	r.Next = &n
	r.ProgressToNext = progressTo(n)
	return r
}

func progressTo(a Achievement) float64 {
	if a.Target <= 0 || a.Current <= 0 {
		return 0
	}
	return min(100, 100*float64(a.Current)/float64(a.Target))
}
