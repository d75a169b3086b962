package stats

import (
	"sort"
	"sync"

	"github.com/mind-engage/coursestats/internal/survey"
)

// Aggregator folds classified groups into candidate records. It keeps a
// ledger of the highest cumulative count known per key so regenerated
// rows never shrink it. The ledger only moves through Seed and Commit.
type Aggregator struct {
	mu         sync.Mutex
	cumulative map[Key]int
}

func NewAggregator() *Aggregator {
	return &Aggregator{cumulative: map[Key]int{}}
}

// Aggregate produces exactly one candidate for g.
func (a *Aggregator) Aggregate(g *Group) Candidate {
	c := Candidate{
		Key:    g.Key,
		Status: groupStatus(g.Surveys),
	}
	c.StartDate, c.EndDate = dateRange(g.Surveys)

	c.EnrolledCount = g.Responses
	if c.EnrolledCount <= 0 {
		c.EnrolledCount = 0
		for _, sv := range g.Surveys {
			if sv.ExpectedParticipants > 0 {
				c.EnrolledCount += sv.ExpectedParticipants
			}
		}
	}
	c.CumulativeCount = a.cumulativeFor(g.Key, c.EnrolledCount)

	c.CourseSatisfaction = mean(g.Scores[DimCourse])
	c.InstructorSatisfaction = mean(g.Scores[DimInstructor])
	c.OperationSatisfaction = mean(g.Scores[DimOperation])
	c.TotalSatisfaction = OverallSatisfaction(c.CourseSatisfaction, c.InstructorSatisfaction, c.OperationSatisfaction)

	c.CourseDays = 1
	if p := primary(g.Surveys); p != nil {
		if p.EducationDays != nil && *p.EducationDays > 0 {
			c.CourseDays = *p.EducationDays
		}
		if p.EducationHours != nil && *p.EducationHours > 0 {
			h := *p.EducationHours
			c.EducationHours = &h
		}
	}
	days := c.CourseDays
	c.EducationDays = &days
	return c
}

// AggregateAll aggregates groups in order.
func (a *Aggregator) AggregateAll(groups []*Group) []Candidate {
	out := make([]Candidate, 0, len(groups))
	for _, g := range groups {
		out = append(out, a.Aggregate(g))
	}
	return out
}

func (a *Aggregator) cumulativeFor(k Key, enrolled int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev := a.cumulative[k]; prev > enrolled {
		return prev
	}
	return enrolled
}

// Seed raises the ledger for k to n, typically the count already stored.
func (a *Aggregator) Seed(k Key, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.cumulative[k] {
		a.cumulative[k] = n
	}
}

// Commit records the cumulative counts of rows that were written.
func (a *Aggregator) Commit(rows []Candidate) {
	for _, c := range rows {
		a.Seed(c.Key, c.CumulativeCount)
	}
}

// OverallSatisfaction averages the present dimension scores. Missing
// dimensions are left out of the denominator rather than counted as zero.
func OverallSatisfaction(scores ...*float64) *float64 {
	var sum float64
	var n int
	for _, s := range scores {
		if s == nil {
			continue
		}
		sum += *s
		n++
	}
	if n == 0 {
		return nil
	}
	v := round2(sum / float64(n))
	return &v
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	v := round2(sum / float64(len(xs)))
	return &v
}

// groupStatus shows a pooled group as in progress while any of its surveys is.
func groupStatus(surveys []survey.Survey) Status {
	for _, sv := range surveys {
		if StatusFromSurvey(sv.Status) == StatusInProgress {
			return StatusInProgress
		}
	}
	if p := primary(surveys); p != nil {
		return StatusFromSurvey(p.Status)
	}
	return DefaultStatus
}

// dateRange spans the earliest start and latest end of the pooled surveys.
// Dates are YYYY-MM-DD so string order is date order.
func dateRange(surveys []survey.Survey) (start, end string) {
	for _, sv := range surveys {
		if sv.StartDate != "" && (start == "" || sv.StartDate < start) {
			start = sv.StartDate
		}
		if sv.EndDate != "" && sv.EndDate > end {
			end = sv.EndDate
		}
	}
	return start, end
}

// primary picks the survey whose metadata describes the group: the one
// starting first, ties broken by id.
func primary(surveys []survey.Survey) *survey.Survey {
	if len(surveys) == 0 {
		return nil
	}
	ordered := make([]survey.Survey, len(surveys))
	copy(ordered, surveys)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := ordered[i].StartDate, ordered[j].StartDate
		if si != sj {
			if si == "" {
				return false
			}
			if sj == "" {
				return true
			}
			return si < sj
		}
		return ordered[i].ID < ordered[j].ID
	})
	return &ordered[0]
}
