package stats

import (
	"sort"
	"strings"

	"github.com/mind-engage/coursestats/internal/survey"
)

// Dimension is a satisfaction category a question can be tagged with.
type Dimension int

const (
	DimCourse Dimension = iota
	DimInstructor
	DimOperation
	numDimensions
)

func (d Dimension) String() string {
	switch d {
	case DimCourse:
		return survey.DimensionCourse
	case DimInstructor:
		return survey.DimensionInstructor
	case DimOperation:
		return survey.DimensionOperation
	default:
		return "unknown"
	}
}

// ParseDimension maps a question tag to a Dimension.
func ParseDimension(tag string) (Dimension, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case survey.DimensionCourse:
		return DimCourse, true
	case survey.DimensionInstructor:
		return DimInstructor, true
	case survey.DimensionOperation:
		return DimOperation, true
	default:
		return 0, false
	}
}

// Group is the pooled, classified input for one statistics row.
type Group struct {
	Key     Key
	Surveys []survey.Survey // metadata of every pooled survey, responses stripped

	// Responses counts pooled non-test responses.
	Responses int
	// Scores holds normalized scores per dimension in input order.
	Scores [numDimensions][]float64
}

// Rejected is a survey that could not form a valid group key.
type Rejected struct {
	SurveyID string `json:"survey_id"`
	Reason   string `json:"reason"`
}

// Classify pools surveys by natural key and buckets their scale answers
// by dimension. Test surveys, test responses and test answers contribute
// nothing. Groups are returned in key order.
func Classify(surveys []survey.Survey) ([]*Group, []Rejected) {
	groups := map[Key]*Group{}
	var rejected []Rejected

	for _, sv := range surveys {
		if sv.IsTest {
			continue
		}
		key, reason := groupKey(sv)
		if reason != "" {
			rejected = append(rejected, Rejected{SurveyID: sv.ID, Reason: reason})
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &Group{Key: key}
			groups[key] = g
		}
		meta := sv
		meta.Responses = nil
		g.Surveys = append(g.Surveys, meta)

		for _, resp := range sv.Responses {
			if resp.IsTest {
				continue
			}
			g.Responses++
			for _, ans := range resp.Answers {
				classifyAnswer(g, ans)
			}
		}
	}

	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, rejected
}

func classifyAnswer(g *Group, ans survey.Answer) {
	if ans.IsTest || !strings.EqualFold(strings.TrimSpace(ans.QuestionType), survey.QuestionTypeScale) {
		return
	}
	dim, ok := ParseDimension(ans.Dimension)
	if !ok {
		return
	}
	score, ok := Normalize(ans.Value)
	if !ok {
		return
	}
	g.Scores[dim] = append(g.Scores[dim], score)
}

func groupKey(sv survey.Survey) (Key, string) {
	name := strings.TrimSpace(sv.CourseName)
	switch {
	case sv.Year <= 0:
		return Key{}, "missing year"
	case sv.Round <= 0:
		return Key{}, "missing round"
	case name == "":
		return Key{}, "empty course name"
	}
	return Key{Year: sv.Year, Round: sv.Round, CourseName: name}, ""
}
